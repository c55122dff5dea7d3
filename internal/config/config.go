// Package config provides configuration structures and validation for the
// reconciliation engine. It handles environment-based configuration for all
// major components: the HTTP server, the remote ledger API, the datastores,
// the audit event stream and the batch executor's pacing parameters.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration. Each field represents
// a major subsystem's configuration and is validated during startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Ledger      LedgerConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Kafka       KafkaConfig
	Executor    ExecutorConfig
	Reconciler  ReconcilerConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// LedgerConfig contains the remote accounting ledger API configuration
type LedgerConfig struct {
	BaseURL           string        // Root of the remote ledger REST API
	TokenURL          string        // OAuth token endpoint
	ClientID          string
	ClientSecret      string
	RefreshToken      string        // Refresh-token grant credential; client-credentials grant is used when empty
	Timeout           time.Duration // Per-request HTTP timeout
	ClearingAccountID string        // Intermediate clearing account holding unsettled patient payments
	BankAccountID     string        // Real bank account the clearing balance settles into
}

// PostgresConfig contains the practice-management mirror database configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains the audit log store configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// KafkaConfig contains the audit event stream configuration
type KafkaConfig struct {
	Brokers           string
	AuditTopic        string
	NumPartitions     int // Number of partitions for topic creation
	ReplicationFactor int // Replication factor for topic creation
	MaxWait           time.Duration
}

// ExecutorConfig contains the batch executor's sizing and pacing parameters.
// PacingDelay must stay tuned to the remote API's requests-per-minute
// ceiling; UnpayCap bounds wall-clock time per invocation.
type ExecutorConfig struct {
	VoidBatchSize   int           // Invoices per batched void request
	DeleteBatchSize int           // Invoices per batched delete request
	UnpayCap        int           // Maximum un-pay operations per invocation
	PacingDelay     time.Duration // Delay after each batch or payment deletion
}

// ReconcilerConfig contains the three-way reconciler's fee model and matching
// parameters
type ReconcilerConfig struct {
	FeePercentBps     int64 // Processor percentage fee in basis points
	FeeFixedCents     int64 // Processor fixed fee per payment, in cents
	DateToleranceDays int   // Window for the amount+date manual-entry heuristic
	FetchPoolSize     int   // Worker pool size for the read-only source fetches
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Ledger config
	if c.Ledger.BaseURL == "" {
		validationErrors = append(validationErrors, "LEDGER_BASE_URL is required")
	}
	if c.Ledger.TokenURL == "" {
		validationErrors = append(validationErrors, "LEDGER_TOKEN_URL is required")
	}
	if c.Ledger.ClientID == "" {
		validationErrors = append(validationErrors, "LEDGER_CLIENT_ID is required")
	}
	if c.Ledger.ClientSecret == "" {
		validationErrors = append(validationErrors, "LEDGER_CLIENT_SECRET is required")
	}
	if c.Ledger.Timeout <= 0 {
		validationErrors = append(validationErrors, "LEDGER_TIMEOUT must be greater than 0")
	}
	if c.Ledger.ClearingAccountID == "" {
		validationErrors = append(validationErrors, "LEDGER_CLEARING_ACCOUNT_ID is required")
	}
	if c.Ledger.BankAccountID == "" {
		validationErrors = append(validationErrors, "LEDGER_BANK_ACCOUNT_ID is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.AuditTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_AUDIT_TOPIC is required")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_MAX_WAIT must be greater than 0")
	}

	// Validate Executor config
	if c.Executor.VoidBatchSize <= 0 {
		validationErrors = append(validationErrors, "EXECUTOR_VOID_BATCH_SIZE must be greater than 0")
	}
	if c.Executor.DeleteBatchSize <= 0 {
		validationErrors = append(validationErrors, "EXECUTOR_DELETE_BATCH_SIZE must be greater than 0")
	}
	if c.Executor.UnpayCap <= 0 {
		validationErrors = append(validationErrors, "EXECUTOR_UNPAY_CAP must be greater than 0")
	}
	if c.Executor.PacingDelay <= 0 {
		validationErrors = append(validationErrors, "EXECUTOR_PACING_DELAY must be greater than 0")
	}

	// Validate Reconciler config
	if c.Reconciler.FeePercentBps < 0 {
		validationErrors = append(validationErrors, "RECONCILER_FEE_PERCENT_BPS must not be negative")
	}
	if c.Reconciler.FeeFixedCents < 0 {
		validationErrors = append(validationErrors, "RECONCILER_FEE_FIXED_CENTS must not be negative")
	}
	if c.Reconciler.DateToleranceDays <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_DATE_TOLERANCE_DAYS must be greater than 0")
	}
	if c.Reconciler.FetchPoolSize <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_FETCH_POOL_SIZE must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
