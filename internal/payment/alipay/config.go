package alipay

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultTimeout = 5 * time.Second

type Config struct {
	AppID      string
	Production bool // false ならサンドボックスのゲートウェイ
	NotifyURL  string
	ReturnURL  string

	PrivateKeyPath string // 加盟店の秘密鍵
	PublicKeyPath  string // Alipayの公開鍵

	Timeout    time.Duration
	HTTPClient *http.Client // nilなら Timeout 付きで作る
}

// readKeys は鍵ファイルを読む。中身（PEMでもヘッダなしのbase64でもよい）はSDKが解釈する。
func (c Config) readKeys() (privateKey, publicKey string, err error) {
	priv, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return "", "", fmt.Errorf("read private key: %w", err)
	}
	pub, err := os.ReadFile(c.PublicKeyPath)
	if err != nil {
		return "", "", fmt.Errorf("read public key: %w", err)
	}
	return strings.TrimSpace(string(priv)), strings.TrimSpace(string(pub)), nil
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.timeout()}
}
