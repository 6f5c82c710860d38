package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Configはアプリ全体の設定
// 起動時に一度だけ読み込み、以後は変更しない。
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL      string // あれば最優先
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5432）
	PostgresSSLMode  string

	JWTSecret string // JWT署名シークレット
	GoEnv     string // dev/prod

	RedisAddr string // 空ならキャッシュなし

	EventBroker       string   // kafka / rabbitmq / none
	KafkaBrokers      []string // カンマ区切り
	KafkaPaymentTopic string
	KafkaGroupID      string
	RabbitMQURL       string

	AlipayAppID          string
	AlipayProduction     bool   // false ならサンドボックス
	AlipayPrivateKeyPath string // 加盟店の秘密鍵（PEM）
	AlipayPublicKeyPath  string // プロバイダの公開鍵（PEM）
	AlipayNotifyURL      string
	AlipayReturnURL      string

	ProviderTimeout        time.Duration // 外部決済APIのタイムアウト
	PaymentReferencePrefix string
}

// Loadは環境変数
func Load() (Config, error) {
	pgPort, err := atoiDefault("POSTGRES_PORT", 5432)
	if err != nil {
		return Config{}, err
	}
	timeoutMS, err := atoiDefault("PROVIDER_TIMEOUT_MS", 5000)
	if err != nil {
		return Config{}, err
	}
	alipayProd := false
	if v := os.Getenv("ALIPAY_PRODUCTION"); v != "" {
		if alipayProd, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("ALIPAY_PRODUCTION must be a bool")
		}
	}

	cfg := Config{
		Port: getenv("PORT", "8080"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresPort:     pgPort,
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		GoEnv:     getenv("GO_ENV", "dev"),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		EventBroker:       strings.ToLower(getenv("EVENT_BROKER", "none")),
		KafkaBrokers:      splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaPaymentTopic: getenv("KAFKA_PAYMENT_TOPIC", "payment.events"),
		KafkaGroupID:      getenv("KAFKA_GROUP_ID", "order-service"),
		RabbitMQURL:       os.Getenv("RABBITMQ_URL"),

		AlipayAppID:          os.Getenv("ALIPAY_APP_ID"),
		AlipayProduction:     alipayProd,
		AlipayPrivateKeyPath: os.Getenv("ALIPAY_PRIVATE_KEY_PATH"),
		AlipayPublicKeyPath:  os.Getenv("ALIPAY_PUBLIC_KEY_PATH"),
		AlipayNotifyURL:      os.Getenv("ALIPAY_NOTIFY_URL"),
		AlipayReturnURL:      os.Getenv("ALIPAY_RETURN_URL"),

		ProviderTimeout:        time.Duration(timeoutMS) * time.Millisecond,
		PaymentReferencePrefix: getenv("PAYMENT_REFERENCE_PREFIX", "PAY"),
	}

	//必須チェック
	if cfg.DatabaseURL == "" {
		if cfg.PostgresUser == "" {
			return Config{}, fmt.Errorf("POSTGRES_USER is required")
		}
		if cfg.PostgresPassword == "" {
			return Config{}, fmt.Errorf("POSTGRES_PASSWORD is required")
		}
		if cfg.PostgresDB == "" {
			return Config{}, fmt.Errorf("POSTGRES_DB is required")
		}
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.ProviderTimeout <= 0 {
		return Config{}, fmt.Errorf("PROVIDER_TIMEOUT_MS must be > 0")
	}

	switch cfg.EventBroker {
	case "none":
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return Config{}, fmt.Errorf("KAFKA_BROKERS is required when EVENT_BROKER=kafka")
		}
	case "rabbitmq":
		if cfg.RabbitMQURL == "" {
			return Config{}, fmt.Errorf("RABBITMQ_URL is required when EVENT_BROKER=rabbitmq")
		}
	default:
		return Config{}, fmt.Errorf("EVENT_BROKER must be kafka, rabbitmq or none")
	}

	// 支払い（ALIPAY）を使うなら鍵は必須
	if cfg.AlipayAppID != "" {
		if cfg.AlipayPrivateKeyPath == "" {
			return Config{}, fmt.Errorf("ALIPAY_PRIVATE_KEY_PATH is required")
		}
		if cfg.AlipayPublicKeyPath == "" {
			return Config{}, fmt.Errorf("ALIPAY_PUBLIC_KEY_PATH is required")
		}
	}

	return cfg, nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
