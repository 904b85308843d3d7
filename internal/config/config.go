package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Supported storage backends for workflow instances
const (
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"
	DriverMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	DynamoDB   DynamoDBConfig   `mapstructure:"dynamodb"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Invoice    InvoiceConfig    `mapstructure:"invoice"`
	MasterData MasterDataConfig `mapstructure:"masterdata"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration. The SQLite file also hosts
// the invoice number sequence when instances live in DynamoDB.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"` // empty uses the embedded schema
}

// DynamoDBConfig holds DynamoDB configuration
type DynamoDBConfig struct {
	Table           string `mapstructure:"table"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	CreateTable     bool   `mapstructure:"create_table"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	ChatID    string `mapstructure:"chat_id"`
}

// Enabled reports whether notifications go to Lark
func (c LarkConfig) Enabled() bool {
	return c.ChatID != ""
}

// InvoiceConfig holds invoice numbering and document configuration
type InvoiceConfig struct {
	Prefix      string `mapstructure:"prefix"`
	SellerName  string `mapstructure:"seller_name"`
	SellerGSTIN string `mapstructure:"seller_gstin"`
}

// MasterDataConfig selects the customer/product/technician source
type MasterDataConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	SeedFile string        `mapstructure:"seed_file"`
}

// WorkflowConfig holds workflow policy
type WorkflowConfig struct {
	AllowOverpayment bool `mapstructure:"allow_overpayment"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from an optional .env file, the config file and
// environment variables, in increasing order of precedence
func Load(configPath string) (*Config, error) {
	return LoadWithEnv(configPath, ".env")
}

// LoadWithEnv is Load with an explicit .env path. A missing .env is ignored.
func LoadWithEnv(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := gotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/fulfillment.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("dynamodb.table", "fulfillment_instances")
	v.SetDefault("dynamodb.region", "us-east-1")

	v.SetDefault("invoice.prefix", "INV")
	v.SetDefault("masterdata.timeout", 5*time.Second)
	v.SetDefault("workflow.allow_overpayment", true)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.chat_id", "LARK_CHAT_ID")
	_ = v.BindEnv("dynamodb.access_key_id", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("dynamodb.secret_access_key", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("dynamodb.endpoint", "DYNAMODB_ENDPOINT")
	_ = v.BindEnv("invoice.seller_gstin", "SELLER_GSTIN")
	_ = v.BindEnv("masterdata.base_url", "MASTERDATA_BASE_URL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverMemory:
	case DriverDynamoDB:
		if c.DynamoDB.Table == "" {
			return fmt.Errorf("dynamodb.table is required for the dynamodb driver")
		}
		if (c.DynamoDB.AccessKeyID == "") != (c.DynamoDB.SecretAccessKey == "") {
			return fmt.Errorf("dynamodb.access_key_id and dynamodb.secret_access_key must be set together")
		}
	default:
		return fmt.Errorf("database.driver must be %q, %q or %q, got %q", DriverSQLite, DriverDynamoDB, DriverMemory, c.Database.Driver)
	}
	// The invoice sequence always lives in SQLite
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Lark.Enabled() {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark.chat_id is set")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark.chat_id is set")
		}
	}

	if c.Invoice.SellerName == "" {
		return fmt.Errorf("invoice.seller_name is required")
	}

	if c.MasterData.BaseURL != "" && c.MasterData.SeedFile != "" {
		return fmt.Errorf("masterdata.base_url and masterdata.seed_file are mutually exclusive")
	}

	return nil
}
