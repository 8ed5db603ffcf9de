package config

// EnvPrefix is intentionally empty; every field carries its full env name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverFile     = "file"
	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"
)

const (
	EnvSellerRefreshTokens = "MELIRELAY_SELLER_REFRESH_TOKENS"
	EnvTelegramChatIDs     = "MELIRELAY_TELEGRAM_CHAT_IDS"
	EnvDBDSN               = "MELIRELAY_DB_DSN"
)
