package keys

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	vault "github.com/hashicorp/vault/api"

	"github.com/lendchat/lendchat/internal/config"
)

// MasterKeyProvider resolves the process-wide master encryption key at
// startup. Different backends (local env key, AWS KMS, HashiCorp
// Vault) implement this interface.
type MasterKeyProvider interface {
	// MasterKey returns the 32-byte master key
	MasterKey(ctx context.Context) ([]byte, error)

	// Provider returns the provider name (e.g., "local", "aws-kms", "vault")
	Provider() string
}

// NewMasterKeyProvider selects a provider from configuration.
func NewMasterKeyProvider(cfg *config.Config) (MasterKeyProvider, error) {
	switch cfg.MasterKeyProvider {
	case "local":
		return &LocalMasterKeyProvider{keyHex: cfg.MasterKeyHex}, nil
	case "aws-kms":
		return &KMSMasterKeyProvider{
			keyID:           cfg.KMSKeyID,
			region:          cfg.KMSRegion,
			encryptedKeyB64: cfg.KMSEncryptedKeyB64,
		}, nil
	case "vault":
		return NewVaultMasterKeyProvider(cfg.VaultAddress, cfg.VaultToken, cfg.VaultSecretPath)
	default:
		return nil, fmt.Errorf("unknown master key provider: %s", cfg.MasterKeyProvider)
	}
}

// LocalMasterKeyProvider reads the master key directly from a
// hex-encoded environment value. Suitable for development or simple
// self-hosted deployments.
type LocalMasterKeyProvider struct {
	keyHex string
}

// MasterKey decodes the configured hex key.
func (p *LocalMasterKeyProvider) MasterKey(ctx context.Context) ([]byte, error) {
	key, err := hex.DecodeString(p.keyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Provider returns the provider name
func (p *LocalMasterKeyProvider) Provider() string {
	return "local"
}

// KMSMasterKeyProvider holds the master key as a KMS-encrypted blob and
// decrypts it once at startup via AWS KMS.
type KMSMasterKeyProvider struct {
	keyID           string
	region          string
	encryptedKeyB64 string
}

// MasterKey decrypts the configured ciphertext blob with AWS KMS.
func (p *KMSMasterKeyProvider) MasterKey(ctx context.Context) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(p.encryptedKeyB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted master key: %w", err)
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if p.region != "" {
		opts = append(opts, awsconfig.WithRegion(p.region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := kms.NewFromConfig(awsCfg)
	out, err := client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: blob,
		KeyId:          aws.String(p.keyID),
	})
	if err != nil {
		return nil, fmt.Errorf("KMS decrypt failed: %w", err)
	}
	if len(out.Plaintext) != 32 {
		return nil, fmt.Errorf("KMS-decrypted master key must be 32 bytes, got %d", len(out.Plaintext))
	}

	return out.Plaintext, nil
}

// Provider returns the provider name
func (p *KMSMasterKeyProvider) Provider() string {
	return "aws-kms"
}

// VaultMasterKeyProvider reads the master key from a Vault KV secret.
type VaultMasterKeyProvider struct {
	client     *vault.Client
	secretPath string
}

// NewVaultMasterKeyProvider creates a Vault-backed provider.
func NewVaultMasterKeyProvider(address, token, secretPath string) (*VaultMasterKeyProvider, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultMasterKeyProvider{
		client:     client,
		secretPath: secretPath,
	}, nil
}

// MasterKey reads the hex-encoded key from the KV secret's
// "master_key" field.
func (p *VaultMasterKeyProvider) MasterKey(ctx context.Context) ([]byte, error) {
	secret, err := p.client.Logical().ReadWithContext(ctx, p.secretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read Vault secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("Vault secret not found at %s", p.secretPath)
	}

	// KV v2 nests fields under "data"
	data := secret.Data
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	keyHex, ok := data["master_key"].(string)
	if !ok {
		return nil, fmt.Errorf("Vault secret missing master_key field")
	}

	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Vault master key hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("Vault master key must be 32 bytes, got %d", len(key))
	}

	return key, nil
}

// Provider returns the provider name
func (p *VaultMasterKeyProvider) Provider() string {
	return "vault"
}
