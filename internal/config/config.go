package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverRecordStore = "recordstore"
	DriverMongo       = "mongo"
	DriverMemory      = "memory"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env:"LISTEN_BIND_IP" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env:"LISTEN_PORT" env-default:"8080"`

	// RequestTimeout bounds each request, including upstream calls
	RequestTimeout time.Duration `yaml:"request_timeout" env:"LISTEN_REQUEST_TIMEOUT" env-default:"30s"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" env:"STORE_DRIVER" env-default:"recordstore"`
}

// RecordStoreConfig points at the LeanCloud-style REST record store.
type RecordStoreConfig struct {
	Endpoint  string        `yaml:"endpoint" env:"RECORD_STORE_ENDPOINT" env-default:""`
	AppID     string        `yaml:"app_id" env:"RECORD_STORE_APP_ID" env-default:""`
	AppKey    string        `yaml:"app_key" env:"RECORD_STORE_APP_KEY" env-default:""`
	MasterKey string        `yaml:"master_key" env:"RECORD_STORE_MASTER_KEY" env-default:""`
	Timeout   time.Duration `yaml:"timeout" env:"RECORD_STORE_TIMEOUT" env-default:"10s"`
}

type MongoConfig struct {
	Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
	User     string `yaml:"user" env:"MONGO_USER" env-default:""`
	Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:""`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"larder"`
}

type RegistrationConfig struct {
	MaxUsers int `yaml:"max_users" env:"MAX_USERS" env-default:"20"`
}

type OcrConfig struct {
	ClientID        string        `yaml:"client_id" env:"OCR_CLIENT_ID" env-default:""`
	ClientSecret    string        `yaml:"client_secret" env:"OCR_CLIENT_SECRET" env-default:""`
	OAuthURL        string        `yaml:"oauth_url" env:"OCR_OAUTH_URL" env-default:"https://aip.baidubce.com/oauth/2.0/token"`
	APIURL          string        `yaml:"api_url" env:"OCR_API_URL" env-default:"https://aip.baidubce.com/rest/2.0/ocr/v1"`
	Timeout         time.Duration `yaml:"timeout" env:"OCR_TIMEOUT" env-default:"15s"`
	MonthlyLimit    int           `yaml:"monthly_limit" env:"OCR_MONTHLY_LIMIT" env-default:"40"`
	AnonymousPolicy string        `yaml:"anonymous_policy" env:"OCR_ANONYMOUS_POLICY" env-default:"allow"`
	AnonymousLimit  int           `yaml:"anonymous_limit" env:"OCR_ANONYMOUS_LIMIT" env-default:"5"`
	AnonymousWindow time.Duration `yaml:"anonymous_window" env:"OCR_ANONYMOUS_WINDOW" env-default:"24h"`
}

type PlanPrice struct {
	Name     string `yaml:"name"`
	Amount   int64  `yaml:"amount"`
	Currency string `yaml:"currency"`
}

type StripeConfig struct {
	APIKey        string               `yaml:"api_key" env:"STRIPE_API_KEY" env-default:""`
	SuccessURL    string               `yaml:"success_url" env:"STRIPE_SUCCESS_URL" env-default:""`
	CancelURL     string               `yaml:"cancel_url" env:"STRIPE_CANCEL_URL" env-default:""`
	WebhookSecret string               `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET" env-default:""`
	Plans         map[string]PlanPrice `yaml:"plans"`
}

type TelegramConfig struct {
	Enabled  bool    `yaml:"enabled" env:"TELEGRAM_ENABLED" env-default:"false"`
	ApiKey   string  `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
	AdminIds []int64 `yaml:"admin_ids" env:"TELEGRAM_ADMIN_IDS" env-separator:","`
	MinLevel string  `yaml:"min_level" env:"TELEGRAM_MIN_LEVEL" env-default:"error"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"METRICS_PATH" env-default:"/metrics"`
}

type Config struct {
	Env          string             `yaml:"env" env:"ENV" env-default:"local"`
	Listen       Listen             `yaml:"listen"`
	Store        StoreConfig        `yaml:"store"`
	RecordStore  RecordStoreConfig  `yaml:"record_store"`
	Mongo        MongoConfig        `yaml:"mongo"`
	Registration RegistrationConfig `yaml:"registration"`
	Ocr          OcrConfig          `yaml:"ocr"`
	Stripe       StripeConfig       `yaml:"stripe"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
		if err = instance.Validate(); err != nil {
			instance = nil
			log.Fatal(fmt.Errorf("config: %w", err))
		}
	})
	return instance
}

// Validate checks enum values and the settings each store driver needs.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverRecordStore:
		if c.RecordStore.Endpoint == "" || c.RecordStore.AppID == "" {
			return fmt.Errorf("record_store: endpoint and app_id are required")
		}
		if c.RecordStore.MasterKey == "" {
			return fmt.Errorf("record_store: master_key is required")
		}
	case DriverMongo:
		if c.Mongo.Database == "" {
			return fmt.Errorf("mongo: database is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store: unknown driver %q", c.Store.Driver)
	}

	switch c.Ocr.AnonymousPolicy {
	case "reject", "allow":
	case "limit":
		if c.Ocr.AnonymousLimit <= 0 || c.Ocr.AnonymousWindow <= 0 {
			return fmt.Errorf("ocr: anonymous_limit and anonymous_window must be positive for policy limit")
		}
	default:
		return fmt.Errorf("ocr: unknown anonymous_policy %q", c.Ocr.AnonymousPolicy)
	}

	if c.Registration.MaxUsers < 0 {
		return fmt.Errorf("registration: max_users must not be negative")
	}
	if c.Ocr.MonthlyLimit < 0 {
		return fmt.Errorf("ocr: monthly_limit must not be negative")
	}
	if c.Telegram.Enabled && c.Telegram.ApiKey == "" {
		return fmt.Errorf("telegram: api_key is required when enabled")
	}
	return nil
}
