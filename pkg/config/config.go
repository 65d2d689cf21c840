package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	apperrors "github.com/starlift/starlift/pkg/errors"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Pipeline PipelineConfig
	Quality  QualityConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Pipeline.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Quality.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STARLIFT_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"STARLIFT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STARLIFT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STARLIFT_DB_DSN"`
	Driver string `envconfig:"STARLIFT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STARLIFT_DB_HOST"`
	LegacyPort     int    `envconfig:"STARLIFT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STARLIFT_DB_USER"`
	LegacyPassword string `envconfig:"STARLIFT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STARLIFT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STARLIFT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STARLIFT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STARLIFT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STARLIFT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STARLIFT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STARLIFT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STARLIFT_REDIS_ADDR"`
	Password     string        `envconfig:"STARLIFT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STARLIFT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STARLIFT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STARLIFT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STARLIFT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STARLIFT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STARLIFT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PipelineConfig tunes the load engine itself.
type PipelineConfig struct {
	Workers          int           `envconfig:"STARLIFT_PIPELINE_WORKERS" default:"8"`
	MaxRetryAttempts int           `envconfig:"STARLIFT_PIPELINE_MAX_RETRY_ATTEMPTS" default:"3"`
	BackoffBase      time.Duration `envconfig:"STARLIFT_PIPELINE_BACKOFF_BASE" default:"500ms"`
	BackoffCap       time.Duration `envconfig:"STARLIFT_PIPELINE_BACKOFF_CAP" default:"10s"`

	// PriceTolerance bounds the accepted drift between the supplied
	// total_price and quantity * unit_price.
	PriceTolerance string `envconfig:"STARLIFT_PIPELINE_PRICE_TOLERANCE" default:"0.01"`

	// FatalFailureRatio is the proportion of exhausted-retry operations
	// within a stage that converts record trouble into a run failure.
	FatalFailureRatio float64 `envconfig:"STARLIFT_PIPELINE_FATAL_FAILURE_RATIO" default:"0.05"`

	CacheTTL  time.Duration `envconfig:"STARLIFT_PIPELINE_CACHE_TTL" default:"1h"`
	ReportTTL time.Duration `envconfig:"STARLIFT_PIPELINE_REPORT_TTL" default:"24h"`

	// Date dimension horizon used when a batch carries no dates at all.
	DateRangeStart string `envconfig:"STARLIFT_PIPELINE_DATE_RANGE_START" default:"2023-01-01"`
	DateRangeEnd   string `envconfig:"STARLIFT_PIPELINE_DATE_RANGE_END" default:"2024-12-31"`
}

func (p PipelineConfig) validate() error {
	if p.Workers <= 0 {
		return apperrors.New(apperrors.CodeConfiguration, "pipeline worker count must be positive")
	}
	if p.MaxRetryAttempts < 0 {
		return apperrors.New(apperrors.CodeConfiguration, "max retry attempts must not be negative")
	}
	if p.BackoffBase <= 0 {
		return apperrors.New(apperrors.CodeConfiguration, "backoff base must be positive")
	}
	if p.BackoffCap < p.BackoffBase {
		return apperrors.New(apperrors.CodeConfiguration, "backoff cap must be >= backoff base")
	}
	if p.FatalFailureRatio < 0 || p.FatalFailureRatio > 1 {
		return apperrors.New(apperrors.CodeConfiguration, "fatal failure ratio must be within [0,1]")
	}
	if _, err := time.Parse("2006-01-02", p.DateRangeStart); err != nil {
		return apperrors.Wrap(apperrors.CodeConfiguration, err, "invalid date range start")
	}
	if _, err := time.Parse("2006-01-02", p.DateRangeEnd); err != nil {
		return apperrors.Wrap(apperrors.CodeConfiguration, err, "invalid date range end")
	}
	return nil
}

// QualityConfig holds per-check thresholds for the quality gate.
type QualityConfig struct {
	PaymentSuccessRateMin float64 `envconfig:"STARLIFT_QUALITY_PAYMENT_SUCCESS_MIN" default:"0.5"`
	PaymentSuccessRateMax float64 `envconfig:"STARLIFT_QUALITY_PAYMENT_SUCCESS_MAX" default:"1.0"`

	// MaxReferentialFailures above which the distribution check degrades
	// the run instead of merely warning.
	MaxReferentialFailures int `envconfig:"STARLIFT_QUALITY_MAX_REFERENTIAL_FAILURES" default:"0"`

	RowCountSeverity     string `envconfig:"STARLIFT_QUALITY_ROW_COUNT_SEVERITY" default:"error"`
	NullCheckSeverity    string `envconfig:"STARLIFT_QUALITY_NULL_CHECK_SEVERITY" default:"error"`
	OrphanSeverity       string `envconfig:"STARLIFT_QUALITY_ORPHAN_SEVERITY" default:"error"`
	RangeSeverity        string `envconfig:"STARLIFT_QUALITY_RANGE_SEVERITY" default:"error"`
	DistributionSeverity string `envconfig:"STARLIFT_QUALITY_DISTRIBUTION_SEVERITY" default:"warning"`
}

func (q QualityConfig) validate() error {
	if q.PaymentSuccessRateMin < 0 || q.PaymentSuccessRateMax > 1 {
		return apperrors.New(apperrors.CodeConfiguration, "payment success band must be within [0,1]")
	}
	if q.PaymentSuccessRateMin > q.PaymentSuccessRateMax {
		return apperrors.New(apperrors.CodeConfiguration, "payment success band min exceeds max")
	}
	if q.MaxReferentialFailures < 0 {
		return apperrors.New(apperrors.CodeConfiguration, "max referential failures must not be negative")
	}
	return nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
