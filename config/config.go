package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"assetrewards/util"
)

// Duration wraps time.Duration to support YAML unmarshalling
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {

	if value == nil {
		return nil
	}

	if value.Kind != yaml.ScalarNode {
		return errors.New("duration must be a string")
	}

	if value.Value == "" {
		d.Duration = 0
		return nil
	}

	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", value.Value)
	}
	d.Duration = parsed

	return nil
}

type Config struct {
	Network      string        `yaml:"network"`
	DataDir      string        `yaml:"datadir"`
	Web          WebConfig     `yaml:"web"`
	Ledger       LedgerConfig  `yaml:"ledger"`
	Payouts      PayoutsConfig `yaml:"payouts"`
	Notifiers    NotifierSeeds `yaml:"notifiers"`
	LogFile      string        `yaml:"log_file"`
	LogMaxSizeMB int           `yaml:"log_max_size_mb"`
	VersionURL   string        `yaml:"version_url"` // Release feed polled for updates; empty disables
}

type WebConfig struct {
	BindAddr    string   `yaml:"bind_addr"`
	BindPort    int      `yaml:"bind_port"`
	CORSOrigins []string `yaml:"cors_origins"`
	RateLimit   float64  `yaml:"rate_limit"` // Mutating requests per second per client
	RateBurst   int      `yaml:"rate_burst"`

	TrustProxyHeaders bool `yaml:"trust_proxy_headers"` // Key clients by X-Real-IP/X-Forwarded-For; only behind a proxy that sets them
}

type LedgerConfig struct {
	Endpoints           []string `yaml:"endpoints"`
	PollInterval        Duration `yaml:"poll_interval"`
	Timeout             Duration `yaml:"timeout"`
	AssetTransferMethod string   `yaml:"asset_transfer_method"`
}

type PayoutsConfig struct {
	Account       string `yaml:"account"`
	BatchSize     int    `yaml:"batch_size"`
	AutoCalculate bool   `yaml:"auto_calculate"`
}

// NotifierSeeds are written to storage on first start only; afterwards the
// stored config, editable through the API, wins.
type NotifierSeeds struct {
	Telegram *TelegramSeed `yaml:"telegram"`
	Email    *EmailSeed    `yaml:"email"`
}

type TelegramSeed struct {
	APIKey  string `yaml:"api_key" json:"apikey"`
	ChatIDs []int  `yaml:"chat_ids" json:"chatids"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

type EmailSeed struct {
	Username string   `yaml:"username" json:"username"`
	Password string   `yaml:"password" json:"password"`
	SMTPHost string   `yaml:"smtp_host" json:"smtphost"`
	SMTPPort int      `yaml:"smtp_port" json:"smtpport"`
	From     string   `yaml:"from" json:"from"`
	To       []string `yaml:"to" json:"to"`
	Enabled  bool     `yaml:"enabled" json:"enabled"`
}

// Default returns a config with every default applied
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// Load reads configuration from path. An empty path yields the defaults.
func Load(path string) (Config, error) {

	cfg := Config{}

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, errors.Wrap(err, "open config")
		}
		defer file.Close()

		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, errors.Wrap(err, "decode config")
		}
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {

	if cfg.Network == "" {
		cfg.Network = util.NETWORK_MAINNET
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./"
	}
	if cfg.Web.BindAddr == "" {
		cfg.Web.BindAddr = "127.0.0.1"
	}
	if cfg.Web.BindPort == 0 {
		cfg.Web.BindPort = 8082
	}
	if cfg.Web.RateLimit == 0 {
		cfg.Web.RateLimit = 5
	}
	if cfg.Web.RateBurst == 0 {
		cfg.Web.RateBurst = 10
	}
	if cfg.Ledger.PollInterval.Duration == 0 {
		cfg.Ledger.PollInterval.Duration = 10 * time.Second
	}
	if cfg.Ledger.Timeout.Duration == 0 {
		cfg.Ledger.Timeout.Duration = 30 * time.Second
	}
	if cfg.Ledger.AssetTransferMethod == "" {
		cfg.Ledger.AssetTransferMethod = "transfermany"
	}
	if cfg.Payouts.BatchSize == 0 {
		cfg.Payouts.BatchSize = util.MAX_PAYMENTS_PER_BATCH
	}
	if cfg.LogFile == "" {
		cfg.LogFile = "assetrewards.log"
	}
	if cfg.LogMaxSizeMB == 0 {
		cfg.LogMaxSizeMB = 50
	}
}

func (cfg Config) Validate() error {

	if !util.IsValidNetwork(cfg.Network) {
		return errors.Errorf("unknown network %q, use one of: %s", cfg.Network, util.AvailableNetworks())
	}

	if cfg.Web.BindPort < 1 || cfg.Web.BindPort > 65535 {
		return errors.Errorf("web bind_port %d out of range", cfg.Web.BindPort)
	}

	if cfg.Web.RateLimit < 0 || cfg.Web.RateBurst < 0 {
		return errors.New("web rate_limit and rate_burst must not be negative")
	}

	if cfg.Payouts.BatchSize < 1 || cfg.Payouts.BatchSize > util.MAX_PAYMENTS_PER_BATCH {
		return errors.Errorf("payouts batch_size must be between 1 and %d", util.MAX_PAYMENTS_PER_BATCH)
	}

	for _, e := range cfg.Ledger.Endpoints {
		if !strings.HasPrefix(e, "http://") && !strings.HasPrefix(e, "https://") {
			return errors.Errorf("ledger endpoint %q must be an http(s) URL", e)
		}
	}

	return nil
}
