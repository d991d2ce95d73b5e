package config // package config loads application configuration from environment variables

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; nested groups share the parent's lookup so the
// variable names below are the full names.
type Config struct {
	Env  string `env:"APP_ENV" envDefault:"dev"`   // application environment (e.g. "dev", "prod")
	Port string `env:"APP_PORT" envDefault:"8080"` // HTTP port to listen on

	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","` // origins allowed to call the API from a browser

	DB DBConfig

	JWTSecret      string `env:"JWT_SECRET,required,notEmpty"`          // secret used to sign JWTs
	AccessTTLMin   int    `env:"ACCESS_TOKEN_TTL_MIN" envDefault:"15"`  // access token time-to-live in minutes
	RefreshTTLDays int    `env:"REFRESH_TOKEN_TTL_DAYS" envDefault:"7"` // refresh token time-to-live in days
	BcryptCost     int    `env:"BCRYPT_COST" envDefault:"12"`           // bcrypt cost for password hashing

	AdminEmail    string `env:"ADMIN_EMAIL"`    // seeded administrator account (optional)
	AdminPassword string `env:"ADMIN_PASSWORD"` // password for the seeded administrator

	Engine EngineConfig
	Queue  QueueConfig

	// ReconcileSchedule is a cron spec for the enrolled-count reconciliation
	// job.  Empty disables it.
	ReconcileSchedule string `env:"RECONCILE_SCHEDULE" envDefault:"@every 10m"`
}

// DBConfig selects and configures the backing database.  Driver is
// "mysql" in production; "sqlite" runs against a local file.
type DBConfig struct {
	Driver      string `env:"DB_DRIVER" envDefault:"mysql"`
	User        string `env:"DB_USER"`
	Pass        string `env:"DB_PASS"`
	Host        string `env:"DB_HOST" envDefault:"127.0.0.1"`
	Port        string `env:"DB_PORT" envDefault:"3306"`
	Name        string `env:"DB_NAME" envDefault:"course_enrollment"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/enrollment.db"`
	MaxAttempts int    `env:"DB_TX_MAX_ATTEMPTS" envDefault:"3"` // retries of a unit of work on deadlock/busy
}

// EngineConfig carries the enrollment and course lifecycle policy knobs.
type EngineConfig struct {
	RequireFutureDates   bool `env:"COURSE_REQUIRE_FUTURE_DATES" envDefault:"true"`
	AllowLateEnrollment  bool `env:"ENROLL_ALLOW_AFTER_START" envDefault:"false"`
	FreeSeatOnCompletion bool `env:"ENROLL_FREE_SEAT_ON_COMPLETION" envDefault:"false"`
	AutoActivate         bool `env:"ENROLL_AUTO_ACTIVATE" envDefault:"false"`
	MaxCapacity          int  `env:"COURSE_MAX_CAPACITY" envDefault:"1000"`
	OptimisticRetries    int  `env:"COURSE_OPTIMISTIC_RETRIES" envDefault:"5"`
}

// QueueConfig configures the RabbitMQ event publisher and the audit
// consumer.  An empty URL disables publishing.
type QueueConfig struct {
	URL           string `env:"RABBITMQ_URL"`
	AuditConsumer bool   `env:"AUDIT_CONSUMER_ENABLED" envDefault:"false"`
	AuditLogPath  string `env:"AUDIT_LOG_PATH" envDefault:"logs/enrollment.log"`
}

// Load reads an optional .env file and then parses the environment into a
// Config.  A missing required variable is returned as an error so main
// can report it before exiting.
func Load() (Config, error) {
	_ = godotenv.Load() // .env is optional; real environment wins
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DB.Driver != "mysql" && cfg.DB.Driver != "sqlite" {
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}
	if cfg.DB.Driver == "mysql" && cfg.DB.User == "" {
		return Config{}, fmt.Errorf("missing required env var: DB_USER")
	}
	return cfg, nil
}
