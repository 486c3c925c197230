package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Chain      ChainConfig      `json:"chain"`
	Images     ImagesConfig     `json:"images"`
	Reconciler ReconcilerConfig `json:"reconciler"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

// DatabaseConfig represents the document store configuration
type DatabaseConfig struct {
	URI            string        `json:"uri"`
	Name           string        `json:"name"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	OpTimeout      time.Duration `json:"op_timeout"`
}

// RedisConfig backs the submission journal and the idempotency guard
type RedisConfig struct {
	Addr     string        `json:"addr"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	GuardTTL time.Duration `json:"guard_ttl"`
}

// ChainConfig contains EVM network configuration
type ChainConfig struct {
	RPCURL             string        `json:"rpc_url"`
	ChainID            int64         `json:"chain_id"`
	ContractAddress    string        `json:"contract_address"`
	PrivateKey         string        `json:"private_key"`
	KeystorePath       string        `json:"keystore_path"`
	KeystorePassphrase string        `json:"keystore_passphrase"`
	SubmitTimeout      time.Duration `json:"submit_timeout"`
}

// ImagesConfig configures cover image generation and hosting
type ImagesConfig struct {
	GeminiAPIKey      string        `json:"gemini_api_key"`
	Model             string        `json:"model"`
	Timeout           time.Duration `json:"timeout"`
	PlaceholderURL    string        `json:"placeholder_url"`
	S3Bucket          string        `json:"s3_bucket"`
	S3Region          string        `json:"s3_region"`
	S3Endpoint        string        `json:"s3_endpoint"`
	S3AccessKeyID     string        `json:"s3_access_key_id"` // empty uses the default AWS credential chain
	S3SecretAccessKey string        `json:"s3_secret_access_key"`
	PublicBaseURL     string        `json:"public_base_url"`
}

// ReconcilerConfig configures the chain/store reconciliation worker
type ReconcilerConfig struct {
	Schedule      string        `json:"schedule"`
	BatchSize     int           `json:"batch_size"`
	MaxPendingAge time.Duration `json:"max_pending_age"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			URI:            "mongodb://localhost:27017",
			Name:           "crowdfund",
			ConnectTimeout: 10 * time.Second,
			OpTimeout:      5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			GuardTTL: 15 * time.Minute,
		},
		Chain: ChainConfig{
			RPCURL:        "http://localhost:8545",
			SubmitTimeout: 30 * time.Second,
		},
		Images: ImagesConfig{
			Model:          "gemini-2.0-flash-preview-image-generation",
			Timeout:        45 * time.Second,
			PlaceholderURL: "https://placehold.co/800x400?text=Project",
			S3Region:       "us-east-1",
		},
		Reconciler: ReconcilerConfig{
			Schedule:      "@every 1m",
			BatchSize:     100,
			MaxPendingAge: time.Hour,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
// A .env file in the working directory is loaded first when present.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	config := defaults()

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func overrideWithEnv(config *Config) error {
	setString(&config.Server.Host, "SERVER_HOST")
	if err := setInt(&config.Server.Port, "SERVER_PORT"); err != nil {
		return err
	}

	setString(&config.Database.URI, "MONGODB_URI")
	setString(&config.Database.Name, "MONGODB_DATABASE")
	if err := setDuration(&config.Database.OpTimeout, "MONGODB_OP_TIMEOUT"); err != nil {
		return err
	}

	setString(&config.Redis.Addr, "REDIS_ADDR")
	setString(&config.Redis.Password, "REDIS_PASSWORD")
	if err := setInt(&config.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	if err := setDuration(&config.Redis.GuardTTL, "SUBMISSION_GUARD_TTL"); err != nil {
		return err
	}

	setString(&config.Chain.RPCURL, "CHAIN_RPC_URL")
	setString(&config.Chain.ContractAddress, "CONTRACT_ADDRESS")
	setString(&config.Chain.PrivateKey, "SIGNER_PRIVATE_KEY")
	setString(&config.Chain.KeystorePath, "SIGNER_KEYSTORE_PATH")
	setString(&config.Chain.KeystorePassphrase, "SIGNER_KEYSTORE_PASSPHRASE")
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid CHAIN_ID: %w", err)
		}
		config.Chain.ChainID = id
	}
	if err := setDuration(&config.Chain.SubmitTimeout, "CHAIN_SUBMIT_TIMEOUT"); err != nil {
		return err
	}

	setString(&config.Images.GeminiAPIKey, "GOOGLE_API_KEY")
	setString(&config.Images.Model, "IMAGE_MODEL")
	setString(&config.Images.PlaceholderURL, "PLACEHOLDER_IMAGE_URL")
	setString(&config.Images.S3Bucket, "IMAGE_S3_BUCKET")
	setString(&config.Images.S3Region, "AWS_REGION")
	setString(&config.Images.S3Endpoint, "IMAGE_S3_ENDPOINT")
	setString(&config.Images.S3AccessKeyID, "IMAGE_S3_ACCESS_KEY_ID")
	setString(&config.Images.S3SecretAccessKey, "IMAGE_S3_SECRET_ACCESS_KEY")
	setString(&config.Images.PublicBaseURL, "IMAGE_PUBLIC_BASE_URL")

	setString(&config.Reconciler.Schedule, "RECONCILE_SCHEDULE")
	if err := setDuration(&config.Reconciler.MaxPendingAge, "RECONCILE_MAX_PENDING_AGE"); err != nil {
		return err
	}

	setString(&config.Logging.Level, "LOG_LEVEL")
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

// Validate checks the settings every process needs
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server port must be positive")
	}
	if c.Database.URI == "" {
		return fmt.Errorf("database uri is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Chain.PrivateKey != "" && c.Chain.KeystorePath != "" {
		return fmt.Errorf("configure either a signer private key or a keystore, not both")
	}
	if c.Images.PlaceholderURL == "" {
		return fmt.Errorf("images placeholder url is required")
	}
	if (c.Images.S3AccessKeyID == "") != (c.Images.S3SecretAccessKey == "") {
		return fmt.Errorf("s3 access key id and secret access key must be set together")
	}
	return nil
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
