package config

// EnvPrefix namespaces every environment variable consumed by the engine.
const EnvPrefix = "STARLIFT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv = "STARLIFT_APP_ENV"

	EnvDBDSN  = "STARLIFT_DB_DSN"
	EnvDBHost = "STARLIFT_DB_HOST"
	EnvDBUser = "STARLIFT_DB_USER"
	EnvDBName = "STARLIFT_DB_NAME"

	EnvRedisURL = "STARLIFT_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
