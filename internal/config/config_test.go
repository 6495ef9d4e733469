package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RPC_URL", "https://rpc.example.org")
	t.Setenv("MASTER_KEY_PROVIDER", "local")
	t.Setenv("MASTER_ENCRYPTION_KEY", "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.org", cfg.RPCURL)
	assert.Equal(t, 90*time.Second, cfg.CallTimeout)
	assert.Equal(t, 8080, cfg.Port)
	assert.NotEmpty(t, cfg.CometAddress)
	assert.NotEmpty(t, cfg.USDCAddress)
	assert.NotEmpty(t, cfg.WETHAddress)
	assert.Empty(t, cfg.PostgresDSN)
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CHAIN_CALL_TIMEOUT", "30s")
	t.Setenv("PORT", "9000")
	t.Setenv("COMET_ADDRESS", "0x000000000000000000000000000000000000c0de")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "0x000000000000000000000000000000000000c0de", cfg.CometAddress)
}

func TestValidate(t *testing.T) {
	t.Run("missing rpc url", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("RPC_URL", "")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RPC_URL")
	})

	t.Run("local provider requires a key", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("MASTER_ENCRYPTION_KEY", "")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MASTER_ENCRYPTION_KEY")
	})

	t.Run("aws-kms provider requires key id and blob", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("MASTER_KEY_PROVIDER", "aws-kms")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "KMS_KEY_ID")
	})

	t.Run("vault provider requires an address", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("MASTER_KEY_PROVIDER", "vault")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "VAULT_ADDR")
	})

	t.Run("unknown provider", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("MASTER_KEY_PROVIDER", "hsm")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MASTER_KEY_PROVIDER")
	})
}

func TestGetEnvDuration(t *testing.T) {
	t.Run("invalid value falls back to the default", func(t *testing.T) {
		t.Setenv("SOME_DURATION", "soon")
		assert.Equal(t, time.Minute, getEnvDuration("SOME_DURATION", time.Minute))
	})

	t.Run("valid value is parsed", func(t *testing.T) {
		t.Setenv("SOME_DURATION", "2m30s")
		assert.Equal(t, 150*time.Second, getEnvDuration("SOME_DURATION", time.Minute))
	})
}
