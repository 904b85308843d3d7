// Package container provides dependency injection and lifecycle management
// for the fulfillment engine.
package container

import (
	"fmt"
	"time"
)

// Instance storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"

	// DriverMemory keeps instances in process memory. Nothing survives a
	// restart; the invoice sequence still lives in SQLite.
	DriverMemory = "memory"
)

// Config holds all configuration for the Container.
type Config struct {
	Database   DatabaseConfig
	DynamoDB   DynamoDBConfig
	Lark       LarkConfig
	Invoice    InvoiceConfig
	MasterData MasterDataConfig
	Workflow   WorkflowConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects where instances are stored
	Driver string

	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MigrationsDir overrides the embedded schema
	MigrationsDir string
}

// DynamoDBConfig holds DynamoDB settings, used with the dynamodb driver.
type DynamoDBConfig struct {
	Table           string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string

	// CreateTable creates the table on start when it is missing
	CreateTable bool
}

// LarkConfig holds Lark API settings. Notifications fall back to the log
// when ChatID is empty.
type LarkConfig struct {
	AppID     string
	AppSecret string
	ChatID    string
}

// InvoiceConfig holds invoice numbering and rendering settings.
type InvoiceConfig struct {
	Prefix      string
	SellerName  string
	SellerGSTIN string
}

// MasterDataConfig selects the master data source: a remote service, a
// JSON seed file, or none.
type MasterDataConfig struct {
	BaseURL  string
	Timeout  time.Duration
	SeedFile string
}

// WorkflowConfig holds workflow policy.
type WorkflowConfig struct {
	AllowOverpayment bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			Path:            "data/fulfillment.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		DynamoDB: DynamoDBConfig{
			Table:  "fulfillment_instances",
			Region: "us-east-1",
		},
		Invoice: InvoiceConfig{
			Prefix:     "INV",
			SellerName: "Fulfillment Engine",
		},
		MasterData: MasterDataConfig{
			Timeout: 5 * time.Second,
		},
		Workflow: WorkflowConfig{
			AllowOverpayment: true,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverMemory:
	case DriverDynamoDB:
		if c.DynamoDB.Table == "" {
			return fmt.Errorf("dynamodb.table is required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Lark.ChatID != "" && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret are required when lark.chat_id is set")
	}

	return nil
}
