package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	Marketplace MarketplaceConfig
	Sellers     SellersConfig
	Telegram    TelegramConfig
	Queue       QueueConfig
	Ledger      LedgerConfig
	Settlement  SettlementConfig
	Reports     ReportsConfig
	DB          DBConfig
	Redis       RedisConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Sellers.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Telegram.validate(); err != nil {
		return nil, err
	}
	if err := cfg.DB.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MELIRELAY_APP_ENV" required:"true"`
	Port         string `envconfig:"MELIRELAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MELIRELAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MELIRELAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// MarketplaceConfig holds the Mercado Libre application credentials shared by
// every managed seller account.
type MarketplaceConfig struct {
	AppID       string        `envconfig:"MELIRELAY_MELI_APP_ID" required:"true"`
	AppSecret   string        `envconfig:"MELIRELAY_MELI_APP_SECRET" required:"true"`
	BaseURL     string        `envconfig:"MELIRELAY_MELI_BASE_URL" default:"https://api.mercadolibre.com"`
	HTTPTimeout time.Duration `envconfig:"MELIRELAY_MELI_HTTP_TIMEOUT" default:"10s"`
}

// SellersConfig maps each managed seller id to its refresh token plus optional
// display metadata used by notifications.
type SellersConfig struct {
	RefreshTokens map[int64]string `envconfig:"MELIRELAY_SELLER_REFRESH_TOKENS" required:"true"`
	Nicknames     map[int64]string `envconfig:"MELIRELAY_SELLER_NICKNAMES"`
	Emojis        map[int64]string `envconfig:"MELIRELAY_SELLER_EMOJIS"`
}

func (s SellersConfig) validate() error {
	if len(s.RefreshTokens) == 0 {
		return fmt.Errorf("%s must list at least one seller", EnvSellerRefreshTokens)
	}
	for sellerID, token := range s.RefreshTokens {
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("empty refresh token for seller %d", sellerID)
		}
	}
	return nil
}

// Nickname returns the display name configured for a seller, or its id.
func (s SellersConfig) Nickname(sellerID int64) string {
	if nick, ok := s.Nicknames[sellerID]; ok && nick != "" {
		return nick
	}
	return fmt.Sprintf("ID %d", sellerID)
}

// Emoji returns the badge configured for a seller, or a generic storefront.
func (s SellersConfig) Emoji(sellerID int64) string {
	if emoji, ok := s.Emojis[sellerID]; ok && emoji != "" {
		return emoji
	}
	return "🏪"
}

type TelegramConfig struct {
	BotToken    string        `envconfig:"MELIRELAY_TELEGRAM_BOT_TOKEN" required:"true"`
	ChatIDs     []string      `envconfig:"MELIRELAY_TELEGRAM_CHAT_IDS" required:"true"`
	DebugChatID string        `envconfig:"MELIRELAY_TELEGRAM_DEBUG_CHAT_ID" required:"true"`
	BaseURL     string        `envconfig:"MELIRELAY_TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	HTTPTimeout time.Duration `envconfig:"MELIRELAY_TELEGRAM_HTTP_TIMEOUT" default:"10s"`
}

func (t TelegramConfig) validate() error {
	if len(t.ChatIDs) == 0 {
		return fmt.Errorf("%s must list at least one recipient", EnvTelegramChatIDs)
	}
	return nil
}

type QueueConfig struct {
	Path string `envconfig:"MELIRELAY_QUEUE_PATH" default:"pending_orders.json"`
}

type LedgerConfig struct {
	Path string `envconfig:"MELIRELAY_LEDGER_PATH" default:"daily_ledger.json"`
}

type SettlementConfig struct {
	MaturationWindow time.Duration `envconfig:"MELIRELAY_MATURATION_WINDOW" default:"5m"`
	PollInterval     time.Duration `envconfig:"MELIRELAY_POLL_INTERVAL" default:"30s"`
	FetchAttempts    int           `envconfig:"MELIRELAY_FETCH_ATTEMPTS" default:"3"`
	FetchRetryDelay  time.Duration `envconfig:"MELIRELAY_FETCH_RETRY_DELAY" default:"15s"`
}

type ReportsConfig struct {
	Interval time.Duration `envconfig:"MELIRELAY_REPORT_INTERVAL" default:"24h"`
}

// DBConfig selects the store backend. The default "file" driver keeps the
// queue and ledger as whole-document JSON files; "sqlite" and "postgres"
// switch both stores onto GORM repositories.
type DBConfig struct {
	Driver      string `envconfig:"MELIRELAY_DB_DRIVER" default:"file"`
	DSN         string `envconfig:"MELIRELAY_DB_DSN"`
	AutoMigrate bool   `envconfig:"MELIRELAY_DB_AUTO_MIGRATE" default:"true"`
}

func (db DBConfig) validate() error {
	switch db.Driver {
	case DBDriverFile:
		return nil
	case DBDriverSQLite, DBDriverPostgres:
		if db.DSN == "" {
			return fmt.Errorf("%s is required for driver %q", EnvDBDSN, db.Driver)
		}
		return nil
	default:
		return fmt.Errorf("unknown db driver %q", db.Driver)
	}
}

// UsesSQL reports whether the GORM backend is selected.
func (db DBConfig) UsesSQL() bool {
	return db.Driver == DBDriverSQLite || db.Driver == DBDriverPostgres
}

type RedisConfig struct {
	URL          string        `envconfig:"MELIRELAY_REDIS_URL"`
	DialTimeout  time.Duration `envconfig:"MELIRELAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MELIRELAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MELIRELAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured. Redis only backs
// the report-scheduler lock for multi-instance deployments; it is optional.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}
