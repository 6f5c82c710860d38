// Package obs はログ出力まわり。
package obs

import (
	"log/slog"
	"os"
)

// Logger はサービス全体で使う構造化ロガー。
// InitLogger を呼ぶまでは slog.Default() を使う。
var Logger = slog.Default()

// InitLogger はJSON形式のロガーに差し替える。
func InitLogger(goEnv string) {
	level := slog.LevelInfo
	if goEnv == "dev" {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	Logger = slog.New(h)
	slog.SetDefault(Logger)
}
