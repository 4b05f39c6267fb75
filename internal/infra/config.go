package infra

import (
	"fmt"
	"os"
	"strconv"

	"riskgate/internal/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// PlaceholderSecret is the value shipped in the example config. The process
// refuses to start while the signing secret still carries it.
const PlaceholderSecret = "change-me"

// Config holds every process-wide setting. Loaded once at startup,
// immutable thereafter. Sensitive values are overridden from the
// environment after the YAML file is parsed.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Risk struct {
		AccountBalance          decimal.Decimal `yaml:"account_balance"`
		RiskFraction            decimal.Decimal `yaml:"risk_fraction"` // per trade, 0.001..0.10
		MinLot                  decimal.Decimal `yaml:"min_lot"`
		MaxLot                  decimal.Decimal `yaml:"max_lot"`
		LotStep                 decimal.Decimal `yaml:"lot_step"`
		PipValue                decimal.Decimal `yaml:"pip_value"`
		MaxSpread               decimal.Decimal `yaml:"max_spread"`
		MaxStopDistanceFraction decimal.Decimal `yaml:"max_stop_distance_fraction"` // <= 0.5
		TakeProfitPct           decimal.Decimal `yaml:"take_profit_pct"`
		StopLossPct             decimal.Decimal `yaml:"stop_loss_pct"`
		MaxOpenExposures        int             `yaml:"max_open_exposures"`
	} `yaml:"risk"`

	Auth struct {
		SigningSecret string `yaml:"signing_secret"`
		TTLSeconds    int    `yaml:"ttl_seconds"`
	} `yaml:"auth"`

	Gateway struct {
		Host                string `yaml:"host"`
		Port                int    `yaml:"port"`
		VenueMode           string `yaml:"venue_mode"` // "sim"
		RequestTimeoutMS    int    `yaml:"request_timeout_ms"`
		ReconnectMaxRetries int    `yaml:"reconnect_max_retries"`
	} `yaml:"gateway"`

	Storage struct {
		BaseDir     string `yaml:"base_dir"`
		StateFile   string `yaml:"state_file"`
		JournalFile string `yaml:"journal_file"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, then applies
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; real deployments set variables directly
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigError{Field: "file", Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &domain.ConfigError{Field: "yaml", Err: err}
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "riskgate"
	}
	if c.Auth.TTLSeconds <= 0 {
		c.Auth.TTLSeconds = 5
	}
	if c.Gateway.Host == "" {
		c.Gateway.Host = "127.0.0.1"
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = 5555
	}
	if c.Gateway.VenueMode == "" {
		c.Gateway.VenueMode = "sim"
	}
	if c.Gateway.RequestTimeoutMS <= 0 {
		c.Gateway.RequestTimeoutMS = 5000
	}
	if c.Gateway.ReconnectMaxRetries <= 0 {
		c.Gateway.ReconnectMaxRetries = 3
	}
	if c.Storage.BaseDir == "" {
		c.Storage.BaseDir = "data"
	}
	if c.Storage.StateFile == "" {
		c.Storage.StateFile = "exposures.json"
	}
	if c.Storage.JournalFile == "" {
		c.Storage.JournalFile = "journal.db"
	}
	if c.Risk.LotStep.IsZero() {
		c.Risk.LotStep = decimal.RequireFromString("0.01")
	}
	if c.Risk.PipValue.IsZero() {
		c.Risk.PipValue = decimal.NewFromInt(1)
	}
	if c.Risk.MaxStopDistanceFraction.IsZero() {
		c.Risk.MaxStopDistanceFraction = decimal.RequireFromString("0.5")
	}
	if c.Risk.MaxOpenExposures <= 0 {
		c.Risk.MaxOpenExposures = 64
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks configuration validity. A missing or placeholder signing
// secret is fatal: the integrity of persisted state and risk tokens depends
// on it.
func (c *Config) Validate() error {
	if c.Auth.SigningSecret == "" || c.Auth.SigningSecret == PlaceholderSecret {
		return &domain.ConfigError{
			Field: "auth.signing_secret",
			Err:   fmt.Errorf("signing secret is unset or still the placeholder; set RISKGATE_SIGNING_SECRET"),
		}
	}

	minFraction := decimal.RequireFromString("0.001")
	maxFraction := decimal.RequireFromString("0.10")
	if c.Risk.RiskFraction.LessThan(minFraction) || c.Risk.RiskFraction.GreaterThan(maxFraction) {
		return &domain.ConfigError{
			Field: "risk.risk_fraction",
			Err:   fmt.Errorf("must be between 0.1%% and 10%%, got %s", c.Risk.RiskFraction),
		}
	}

	if c.Risk.AccountBalance.LessThanOrEqual(decimal.Zero) {
		return &domain.ConfigError{Field: "risk.account_balance", Err: fmt.Errorf("must be positive")}
	}

	if c.Risk.MinLot.LessThanOrEqual(decimal.Zero) || c.Risk.MaxLot.LessThan(c.Risk.MinLot) {
		return &domain.ConfigError{Field: "risk.min_lot", Err: fmt.Errorf("need 0 < min_lot <= max_lot")}
	}

	half := decimal.RequireFromString("0.5")
	if c.Risk.MaxStopDistanceFraction.LessThanOrEqual(decimal.Zero) || c.Risk.MaxStopDistanceFraction.GreaterThan(half) {
		return &domain.ConfigError{
			Field: "risk.max_stop_distance_fraction",
			Err:   fmt.Errorf("must be in (0, 0.5], got %s", c.Risk.MaxStopDistanceFraction),
		}
	}

	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return &domain.ConfigError{Field: "gateway.port", Err: fmt.Errorf("invalid port %d", c.Gateway.Port)}
	}

	return nil
}

// BindAddr returns the host:port the gateway listens on.
func (c *Config) BindAddr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

// overrideWithEnv applies environment variables over file values.
// Secrets should always arrive this way rather than living in the file.
func overrideWithEnv(cfg *Config) {
	if secret := os.Getenv("RISKGATE_SIGNING_SECRET"); secret != "" {
		cfg.Auth.SigningSecret = secret
	}
	if bal := os.Getenv("RISKGATE_ACCOUNT_BALANCE"); bal != "" {
		if d, err := decimal.NewFromString(bal); err == nil {
			cfg.Risk.AccountBalance = d
		}
	}
	if frac := os.Getenv("RISKGATE_RISK_FRACTION"); frac != "" {
		if d, err := decimal.NewFromString(frac); err == nil {
			cfg.Risk.RiskFraction = d
		}
	}
	if dir := os.Getenv("RISKGATE_STATE_DIR"); dir != "" {
		cfg.Storage.BaseDir = dir
	}
	if ttl := os.Getenv("RISKGATE_AUTH_TTL"); ttl != "" {
		if n, err := strconv.Atoi(ttl); err == nil && n > 0 {
			cfg.Auth.TTLSeconds = n
		}
	}
	if host := os.Getenv("RISKGATE_BIND_HOST"); host != "" {
		cfg.Gateway.Host = host
	}
	if port := os.Getenv("RISKGATE_BIND_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.Gateway.Port = n
		}
	}
}
