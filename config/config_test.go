package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()

	cfgPath := filepath.Join(t.TempDir(), ConfigFile)
	assert.NoError(t, WriteConfig(cfgPath, cfg))

	res, err := ReadConfig(cfgPath)
	assert.NoError(t, err)
	assert.Equal(t, cfg, res)
	assert.NoError(t, res.Validate())
}

func TestComponentConfigs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Contracts.Paymaster = "0x00000000000000000000000000000000000000fe"

	pm, err := cfg.PaymasterConfig()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(cfg.Contracts.Paymaster), pm.Address)
	assert.Equal(t, "100000000000000000", pm.MinBalance.String())
	assert.Equal(t, "10000000000000000", pm.MaxGasSponsor.String())
	assert.Equal(t, "500000000000000000", pm.AlertThreshold.String())

	wallet := cfg.WalletConfig()
	assert.Equal(t, time.Minute, wallet.KeyBounds.Min)
	assert.Equal(t, 24*time.Hour, wallet.KeyBounds.Max)

	ret := cfg.RetentionConfig()
	assert.Equal(t, 30*24*time.Hour, ret.SessionRetention)
	assert.Equal(t, time.Hour, ret.ProofInterval)

	assert.Equal(t, 5*time.Minute, cfg.ProofConfig().DefaultExpiry)
	assert.Equal(t, 2*time.Minute, cfg.ChainConfig().ReceiptTimeout)

	rec := cfg.ReconcileConfig()
	assert.Equal(t, 10*time.Second, rec.ReceiptWait)
	assert.Equal(t, 24*time.Hour, rec.DropAfter)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"store type":      func(c *Config) { c.Store.Type = "redis" },
		"network":         func(c *Config) { c.Chain.Network = "moon" },
		"contract":        func(c *Config) { c.Contracts.Factory = "0x1234" },
		"min over max":    func(c *Config) { c.Session.MinDurationSecs = c.Session.MaxDurationSecs + 1 },
		"zero retention":  func(c *Config) { c.Session.RetentionDays = 0 },
		"proof attempts":  func(c *Config) { c.Proof.MaxVerificationAttempts = 0 },
		"eth amount":      func(c *Config) { c.Paymaster.MaxGasSponsor = "ten" },
		"missing section": func(c *Config) { c.Proof = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
