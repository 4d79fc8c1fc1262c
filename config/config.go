package config

import (
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs-force-community/metrics"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/Beutife/Ghost-Wallet/chain"
	"github.com/Beutife/Ghost-Wallet/ghostwallet"
	"github.com/Beutife/Ghost-Wallet/paymaster"
	"github.com/Beutife/Ghost-Wallet/proof"
	"github.com/Beutife/Ghost-Wallet/reconcile"
	"github.com/Beutife/Ghost-Wallet/retention"
	"github.com/Beutife/Ghost-Wallet/sessionkey"
	"github.com/Beutife/Ghost-Wallet/types"
)

const (
	// Configuration file name
	ConfigFile = "config.toml"

	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

type Config struct {
	API       *APIConfig
	Store     *StoreConfig
	Chain     *ChainConfig
	Contracts *ContractsConfig
	Session   *SessionConfig
	Proof     *ProofConfig
	Paymaster *PaymasterConfig
	Metrics   *metrics.MetricsConfig
	Trace     *metrics.TraceConfig
}

type APIConfig struct {
	ListenAddress string
}

type StoreConfig struct {
	// Type is memory or sqlite.
	Type string
	// Path of the sqlite database, relative paths resolve against the repo.
	Path string
}

type ChainConfig struct {
	Network       string
	RPCURL        string
	WSURL         string
	ChainID       int64
	Confirmations uint64
	// RelayerKey is the hex private key paying for submissions.
	RelayerKey         string
	ReceiptTimeoutSecs int64
	PollIntervalSecs   int64
	// DropAfterSecs fails a submission still unmined after it, zero disables.
	DropAfterSecs int64
}

type ContractsConfig struct {
	Factory       string
	EntryPoint    string
	Paymaster     string
	ProofVerifier string
}

type SessionConfig struct {
	MinDurationSecs     int64
	MaxDurationSecs     int64
	CleanupIntervalSecs int64
	RetentionDays       int64
}

type ProofConfig struct {
	ExpirySecs              int64
	MaxVerificationAttempts int
	UnusedMaxAgeHours       int64
	CleanupIntervalSecs     int64
}

// PaymasterConfig amounts are decimal ETH.
type PaymasterConfig struct {
	Address        string
	MinBalance     string
	MaxGasSponsor  string
	AlertThreshold string
}

func DefaultConfig() *Config {
	cfg := &Config{
		API:   &APIConfig{ListenAddress: "/ip4/127.0.0.1/tcp/45132"},
		Store: &StoreConfig{Type: StoreSQLite, Path: "ghostwallet.db"},
		Chain: &ChainConfig{
			Network:            string(types.NetworkSepolia),
			RPCURL:             "http://127.0.0.1:8545",
			Confirmations:      1,
			ReceiptTimeoutSecs: 120,
			PollIntervalSecs:   2,
			DropAfterSecs:      86400,
		},
		Contracts: &ContractsConfig{},
		Session: &SessionConfig{
			MinDurationSecs:     int64(types.MinSessionDuration / time.Second),
			MaxDurationSecs:     int64(types.MaxSessionDuration / time.Second),
			CleanupIntervalSecs: 3600,
			RetentionDays:       30,
		},
		Proof: &ProofConfig{
			ExpirySecs:              300,
			MaxVerificationAttempts: 3,
			UnusedMaxAgeHours:       24,
			CleanupIntervalSecs:     3600,
		},
		Paymaster: &PaymasterConfig{
			MinBalance:     "0.1",
			MaxGasSponsor:  "0.01",
			AlertThreshold: "0.5",
		},
		Metrics: metrics.DefaultMetricsConfig(),
		Trace:   metrics.DefaultTraceConfig(),
	}
	namespace := "ghostwallet"
	cfg.Metrics.Exporter.Prometheus.Namespace = namespace
	cfg.Metrics.Exporter.Graphite.Namespace = namespace
	cfg.Metrics.Exporter.Prometheus.EndPoint = "/ip4/0.0.0.0/tcp/4569"
	cfg.Metrics.Exporter.Graphite.Port = 4569
	cfg.Trace.ServerName = "ghost-wallet"
	cfg.Trace.JaegerEndpoint = ""

	return cfg
}

func ReadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = toml.Unmarshal(data, cfg)

	return cfg, err
}

func WriteConfig(filePath string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(filePath, data, 0644)
}

func secs(n int64) time.Duration { return time.Duration(n) * time.Second }

func optionalAddress(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	addr, err := types.ParseAddress(s)
	if err != nil {
		return common.Address{}, errors.Wrap(err, field)
	}
	return addr, nil
}

// Validate checks every section that the daemon reads.
func (c *Config) Validate() error {
	if c.API == nil || c.Store == nil || c.Chain == nil || c.Contracts == nil ||
		c.Session == nil || c.Proof == nil || c.Paymaster == nil {
		return errors.New("config is missing a section")
	}
	switch c.Store.Type {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.Path == "" {
			return errors.New("Store.Path is required for sqlite")
		}
	default:
		return errors.Errorf("unknown store type %q", c.Store.Type)
	}
	if _, err := types.ParseNetwork(c.Chain.Network); err != nil {
		return errors.Wrap(err, "Chain.Network")
	}
	if c.Chain.ReceiptTimeoutSecs <= 0 || c.Chain.PollIntervalSecs <= 0 {
		return errors.New("chain receipt timeout and poll interval must be positive")
	}
	for field, addr := range map[string]string{
		"Contracts.Factory":       c.Contracts.Factory,
		"Contracts.EntryPoint":    c.Contracts.EntryPoint,
		"Contracts.Paymaster":     c.Contracts.Paymaster,
		"Contracts.ProofVerifier": c.Contracts.ProofVerifier,
		"Paymaster.Address":       c.Paymaster.Address,
	} {
		if _, err := optionalAddress(field, addr); err != nil {
			return err
		}
	}
	s := c.Session
	if s.MinDurationSecs <= 0 || s.MaxDurationSecs <= 0 || s.CleanupIntervalSecs <= 0 || s.RetentionDays <= 0 {
		return errors.New("session durations must be positive")
	}
	if s.MinDurationSecs > s.MaxDurationSecs {
		return errors.Errorf("Session.MinDurationSecs %d exceeds MaxDurationSecs %d", s.MinDurationSecs, s.MaxDurationSecs)
	}
	p := c.Proof
	if p.ExpirySecs <= 0 || p.MaxVerificationAttempts <= 0 || p.UnusedMaxAgeHours <= 0 || p.CleanupIntervalSecs <= 0 {
		return errors.New("proof settings must be positive")
	}
	_, err := c.PaymasterConfig()
	return err
}

func (c *Config) ChainConfig() chain.Config {
	return chain.Config{
		RPCURL:         c.Chain.RPCURL,
		WSURL:          c.Chain.WSURL,
		ChainID:        c.Chain.ChainID,
		RelayerKey:     c.Chain.RelayerKey,
		Confirmations:  c.Chain.Confirmations,
		ReceiptTimeout: secs(c.Chain.ReceiptTimeoutSecs),
		PollInterval:   secs(c.Chain.PollIntervalSecs),
	}
}

func (c *Config) WalletConfig() ghostwallet.Config {
	cfg := ghostwallet.DefaultConfig()
	cfg.Network = types.Network(c.Chain.Network)
	cfg.KeyBounds = sessionkey.Bounds{
		Min: secs(c.Session.MinDurationSecs),
		Max: secs(c.Session.MaxDurationSecs),
	}
	return cfg
}

func (c *Config) ProofConfig() proof.Config {
	cfg := proof.DefaultConfig()
	cfg.DefaultExpiry = secs(c.Proof.ExpirySecs)
	cfg.MaxVerificationAttempts = c.Proof.MaxVerificationAttempts
	cfg.UnusedMaxAge = time.Duration(c.Proof.UnusedMaxAgeHours) * time.Hour
	return cfg
}

// PaymasterConfig converts the ETH amounts to wei.
func (c *Config) PaymasterConfig() (paymaster.Config, error) {
	p := c.Paymaster
	cfg := paymaster.Config{CASAttempts: 8}
	var err error
	addr := p.Address
	if addr == "" {
		addr = c.Contracts.Paymaster
	}
	if cfg.Address, err = optionalAddress("Paymaster.Address", addr); err != nil {
		return cfg, err
	}
	for _, f := range []struct {
		name string
		in   string
		out  *big.Int
	}{
		{"Paymaster.MinBalance", p.MinBalance, &cfg.MinBalance},
		{"Paymaster.MaxGasSponsor", p.MaxGasSponsor, &cfg.MaxGasSponsor},
		{"Paymaster.AlertThreshold", p.AlertThreshold, &cfg.AlertThreshold},
	} {
		if f.in == "" {
			continue
		}
		v, err := types.EtherToWei(f.in)
		if err != nil {
			return cfg, errors.Wrap(err, f.name)
		}
		*f.out = v
	}
	return cfg, nil
}

// ReconcileConfig lets a single receipt lookup wait for a few chain polls.
func (c *Config) ReconcileConfig() reconcile.Config {
	cfg := reconcile.DefaultConfig()
	cfg.ReceiptWait = 5 * secs(c.Chain.PollIntervalSecs)
	cfg.DropAfter = secs(c.Chain.DropAfterSecs)
	return cfg
}

func (c *Config) RetentionConfig() retention.Config {
	return retention.Config{
		SessionInterval:  secs(c.Session.CleanupIntervalSecs),
		SessionRetention: time.Duration(c.Session.RetentionDays) * 24 * time.Hour,
		ProofInterval:    secs(c.Proof.CleanupIntervalSecs),
	}
}
