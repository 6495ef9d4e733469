package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds infrastructure-level configuration.
// All values come from environment variables; contract addresses
// default to the Sepolia deployment of the market.
type Config struct {
	// Database (empty DSN falls back to the in-memory store)
	PostgresDSN string

	// Chain
	RPCURL       string
	CometAddress string
	USDCAddress  string
	WETHAddress  string
	CallTimeout  time.Duration

	// Master key provider: local, aws-kms or vault
	MasterKeyProvider   string
	MasterKeyHex        string
	KMSKeyID            string
	KMSRegion           string
	KMSEncryptedKeyB64  string
	VaultAddress        string
	VaultToken          string
	VaultSecretPath     string

	// Messaging webhook
	VerifyToken    string
	AppSecret      string
	GraphAPIToken  string
	GraphAPIURL    string
	PhoneNumberID  string
	ExplorerTxURL  string

	// Server
	Port int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		PostgresDSN:        getEnv("POSTGRES_DSN", ""),
		RPCURL:             getEnv("RPC_URL", ""),
		CometAddress:       getEnv("COMET_ADDRESS", "0xAec1F48e02Cfb822Be958B68C7957156EB3F0b6e"),
		USDCAddress:        getEnv("USDC_ADDRESS", "0x94a9D9AC8a22534E3FaCa9F4e7F2E2cf85d5E4C8"),
		WETHAddress:        getEnv("WETH_ADDRESS", "0x7b79995e5f793A07Bc00c21412e50Ecae098E7f9"),
		CallTimeout:        getEnvDuration("CHAIN_CALL_TIMEOUT", 90*time.Second),
		MasterKeyProvider:  getEnv("MASTER_KEY_PROVIDER", "local"),
		MasterKeyHex:       getEnv("MASTER_ENCRYPTION_KEY", ""),
		KMSKeyID:           getEnv("KMS_KEY_ID", ""),
		KMSRegion:          getEnv("KMS_REGION", ""),
		KMSEncryptedKeyB64: getEnv("KMS_ENCRYPTED_MASTER_KEY", ""),
		VaultAddress:       getEnv("VAULT_ADDR", ""),
		VaultToken:         getEnv("VAULT_TOKEN", ""),
		VaultSecretPath:    getEnv("VAULT_SECRET_PATH", "secret/data/lendchat/master-key"),
		VerifyToken:        getEnv("WEBHOOK_VERIFY_TOKEN", ""),
		AppSecret:          getEnv("WEBHOOK_APP_SECRET", ""),
		GraphAPIToken:      getEnv("GRAPH_API_TOKEN", ""),
		GraphAPIURL:        getEnv("GRAPH_API_URL", "https://graph.facebook.com/v18.0"),
		PhoneNumberID:      getEnv("PHONE_NUMBER_ID", ""),
		ExplorerTxURL:      getEnv("EXPLORER_TX_URL", "https://sepolia.etherscan.io/tx/"),
		Port:               getEnvInt("PORT", 8080),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	switch c.MasterKeyProvider {
	case "local":
		if c.MasterKeyHex == "" {
			return fmt.Errorf("MASTER_ENCRYPTION_KEY is required when MASTER_KEY_PROVIDER is 'local'")
		}
	case "aws-kms":
		if c.KMSKeyID == "" || c.KMSEncryptedKeyB64 == "" {
			return fmt.Errorf("KMS_KEY_ID and KMS_ENCRYPTED_MASTER_KEY are required when MASTER_KEY_PROVIDER is 'aws-kms'")
		}
	case "vault":
		if c.VaultAddress == "" {
			return fmt.Errorf("VAULT_ADDR is required when MASTER_KEY_PROVIDER is 'vault'")
		}
	default:
		return fmt.Errorf("MASTER_KEY_PROVIDER must be 'local', 'aws-kms' or 'vault', got: %s", c.MasterKeyProvider)
	}

	if c.CallTimeout <= 0 {
		return fmt.Errorf("CHAIN_CALL_TIMEOUT must be positive")
	}

	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
