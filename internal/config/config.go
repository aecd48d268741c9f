package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Configはアプリ全体の設定
type Config struct {
	App       AppConfig       `koanf:"app"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	JWT       JWTConfig       `koanf:"jwt"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Notify    NotifyConfig    `koanf:"notify"`
	Payment   PaymentConfig   `koanf:"payment"`
	Log       LogConfig       `koanf:"log"`
}

type AppConfig struct {
	Name string `koanf:"name"`
	Port string `koanf:"port"` // サーバーポート（8080）
	Env  string `koanf:"env"`  // dev/prod
}

// URLが空ならHost等から組み立てる。両方空ならインメモリで動かす。
type DatabaseConfig struct {
	URL      string `koanf:"url"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"sslmode"`
}

func (d DatabaseConfig) Enabled() bool {
	return d.URL != "" || d.Host != ""
}

// Addrが空ならレート制限はfail-open（全部通す）
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type JWTConfig struct {
	Secret string `koanf:"secret"` // JWT署名シークレット
}

// 1ルート種別あたりの上限
type Budget struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
}

type RateLimitConfig struct {
	Checkout    Budget `koanf:"checkout"`
	Coupon      Budget `koanf:"coupon"`
	OrderLookup Budget `koanf:"order_lookup"`
}

type NotifyConfig struct {
	KafkaBrokers   []string `koanf:"kafka_brokers"`
	KafkaTopic     string   `koanf:"kafka_topic"`
	RabbitURL      string   `koanf:"rabbit_url"`
	RabbitExchange string   `koanf:"rabbit_exchange"`
	QueueSize      int      `koanf:"queue_size"`
}

type PaymentConfig struct {
	CheckoutBaseURL string `koanf:"checkout_base_url"`
	WebhookSecret   string `koanf:"webhook_secret"`
}

type LogConfig struct {
	File  string `koanf:"file"`
	Level string `koanf:"level"`
}

const envPrefix = "STOREFRONT_"

var defaults = map[string]interface{}{
	"app.name": "storefront",
	"app.port": "8080",
	"app.env":  "dev",

	"database.port":    5432,
	"database.sslmode": "disable",

	"ratelimit.checkout.limit":      10,
	"ratelimit.checkout.window":     "1m",
	"ratelimit.coupon.limit":        20,
	"ratelimit.coupon.window":       "1m",
	"ratelimit.order_lookup.limit":  30,
	"ratelimit.order_lookup.window": "1m",

	"notify.kafka_topic":     "storefront.notifications",
	"notify.rabbit_exchange": "storefront.notifications",
	"notify.queue_size":      256,

	"payment.checkout_base_url": "http://localhost:3000/checkout",

	"log.file":  "./logs/app.log",
	"log.level": "info",
}

// 従来の環境変数名（.envに書かれているもの）
var plainEnv = map[string]string{
	"PORT":              "app.port",
	"GO_ENV":            "app.env",
	"DATABASE_URL":      "database.url",
	"POSTGRES_HOST":     "database.host",
	"POSTGRES_PORT":     "database.port",
	"POSTGRES_USER":     "database.user",
	"POSTGRES_PASSWORD": "database.password",
	"POSTGRES_DB":       "database.name",
	"POSTGRES_SSLMODE":  "database.sslmode",
	"REDIS_ADDR":        "redis.addr",
	"REDIS_PASSWORD":    "redis.password",
	"JWT_SECRET":        "jwt.secret",
	"KAFKA_BROKERS":     "notify.kafka_brokers",
	"RABBITMQ_URL":      "notify.rabbit_url",
	"WEBHOOK_SECRET":    "payment.webhook_secret",
}

// Loadは 既定値 → YAML(任意) → 環境変数 の順で上書きして読む。
// yamlPathが空ならファイルは読まない。
func Load(yamlPath string) (Config, error) {
	//.envは無くてもよい
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if yamlPath != "" {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", yamlPath, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", func(key string, value string) (string, interface{}) {
		path := plainEnv[key]
		if path == "notify.kafka_brokers" {
			return path, splitCSV(value)
		}
		return path, value
	}), nil); err != nil {
		return Config{}, fmt.Errorf("plain env overlay: %w", err)
	}

	// 例: STOREFRONT_RATELIMIT__CHECKOUT__LIMIT=20
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// 必須チェック
func (c Config) Validate() error {
	if c.App.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.App.Env == "prod" && !c.Database.Enabled() {
		return errors.New("DATABASE_URL or POSTGRES_HOST is required in prod")
	}
	if c.App.Env == "prod" && c.Payment.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET is required in prod")
	}

	budgets := map[string]Budget{
		"checkout":     c.RateLimit.Checkout,
		"coupon":       c.RateLimit.Coupon,
		"order_lookup": c.RateLimit.OrderLookup,
	}
	for name, b := range budgets {
		if b.Limit <= 0 {
			return fmt.Errorf("ratelimit.%s.limit must be positive", name)
		}
		if b.Window <= 0 {
			return fmt.Errorf("ratelimit.%s.window must be positive", name)
		}
	}
	return nil
}

// Addrは ":8080" 形式で返す
func (c Config) Addr() string {
	if strings.HasPrefix(c.App.Port, ":") {
		return c.App.Port
	}
	return ":" + c.App.Port
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CONFIG_FILE があればそのパスのYAMLを読む
func FilePathFromEnv() string {
	return os.Getenv("CONFIG_FILE")
}
