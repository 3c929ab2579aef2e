package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	defaultConfigFile = "values_local.yaml"
	masked            = "***"
)

// Config ...
type Config struct {
	LogLevel string `yaml:"log_level"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Host      string `yaml:"host"`
		AdminPort int    `yaml:"admin_port"`
	} `yaml:"service"`
	Tracing struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"tracing"`

	Broker   Broker    `yaml:"broker"`
	Market   Market    `yaml:"market"`
	Engine   Engine    `yaml:"engine"`
	Chase    Chase     `yaml:"chase"`
	Monitors []Monitor `yaml:"monitors"`
}

type Broker struct {
	BaseURL     string `yaml:"base_url"`
	WSURL       string `yaml:"ws_url"`
	AppKey      string `yaml:"app_key"`
	AppSecret   string `yaml:"app_secret"`
	AccessToken string `yaml:"access_token"`

	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	// QuoteMaxAge bounds how old a streamed quote may be before REST is used instead.
	QuoteMaxAge time.Duration `yaml:"quote_max_age"`
}

type Session struct {
	Open  string `yaml:"open"`  // "09:30"
	Close string `yaml:"close"` // "12:00"
}

type Market struct {
	Timezone     string    `yaml:"timezone"`
	Sessions     []Session `yaml:"sessions"`
	HalfDayClose string    `yaml:"half_day_close"`

	// Buys are refused inside this window before the close.
	CloseBuySuppress time.Duration `yaml:"close_buy_suppress"`
	// Positions are liquidated inside this window before the close.
	CloseLiquidate time.Duration `yaml:"close_liquidate"`
}

type Engine struct {
	TickInterval   time.Duration `yaml:"tick_interval"`
	AccountRefresh time.Duration `yaml:"account_refresh"`
	OrdersRefresh  time.Duration `yaml:"orders_refresh"`
	CandlePeriod   string        `yaml:"candle_period"`
	CandleCount    int           `yaml:"candle_count"`
	// CandleRefresh limits candle pulls per monitor; zero means every tick.
	CandleRefresh time.Duration `yaml:"candle_refresh"`
}

type Chase struct {
	Enabled        bool          `yaml:"enabled"`
	ThresholdTicks int           `yaml:"threshold_ticks"`
	TickSize       float64       `yaml:"tick_size"`
	Cooldown       time.Duration `yaml:"cooldown"`
	MaxChasePct    float64       `yaml:"max_chase_pct"`
}

type SignalRule struct {
	Conditions   []string `yaml:"conditions"`
	MinSatisfied int      `yaml:"min_satisfied"`
}

type Verify struct {
	Delay      time.Duration `yaml:"delay"`
	Tolerance  time.Duration `yaml:"tolerance"`
	Indicators []string      `yaml:"indicators"`
}

type SeatRules struct {
	MinDistancePct  float64       `yaml:"min_distance_pct"`
	MaxDistancePct  float64       `yaml:"max_distance_pct"`
	SafetyMarginPct float64       `yaml:"safety_margin_pct"`
	SwitchMovePct   float64       `yaml:"switch_move_pct"`
	SearchInterval  time.Duration `yaml:"search_interval"`
	MinTurnover     float64       `yaml:"min_turnover"`
	MinExpiryDays   int           `yaml:"min_expiry_days"`
}

// Monitor is one watched underlying together with its two seats and limits.
type Monitor struct {
	Symbol      string `yaml:"symbol"`
	LongSymbol  string `yaml:"long_symbol"`
	ShortSymbol string `yaml:"short_symbol"`
	AutoSearch  bool   `yaml:"auto_search"`

	TargetNotional      float64 `yaml:"target_notional"`
	MaxPositionNotional float64 `yaml:"max_position_notional"`
	MaxDailyLoss        float64 `yaml:"max_daily_loss"`

	Signals map[string]SignalRule `yaml:"signals"`
	Verify  Verify                `yaml:"verify"`
	Seat    SeatRules             `yaml:"seat"`
}

func defaults() Config {
	cfg := Config{
		LogLevel: "info",
		Broker: Broker{
			Timeout:       10 * time.Second,
			RetryAttempts: 3,
			RetryBackoff:  500 * time.Millisecond,
			QuoteMaxAge:   5 * time.Second,
		},
		Market: Market{
			Timezone: "Asia/Hong_Kong",
			Sessions: []Session{
				{Open: "09:30", Close: "12:00"},
				{Open: "13:00", Close: "16:00"},
			},
			HalfDayClose:     "12:00",
			CloseBuySuppress: 15 * time.Minute,
			CloseLiquidate:   5 * time.Minute,
		},
		Engine: Engine{
			TickInterval:   time.Second,
			AccountRefresh: 30 * time.Second,
			OrdersRefresh:  3 * time.Second,
			CandlePeriod:   "1m",
			CandleCount:    200,
		},
		Chase: Chase{
			Enabled:        true,
			ThresholdTicks: 3,
			TickSize:       0.001,
			Cooldown:       60 * time.Second,
			MaxChasePct:    2.0,
		},
	}
	cfg.Service.Host = "0.0.0.0"
	cfg.Service.AdminPort = 8080
	cfg.Tracing.Host = "localhost"
	cfg.Tracing.Port = 6831
	return cfg
}

// applyDefaults fills the zero fields of a monitor block.
func (m *Monitor) applyDefaults() {
	if m.Verify.Delay <= 0 {
		m.Verify.Delay = 60 * time.Second
	}
	if m.Verify.Tolerance <= 0 {
		m.Verify.Tolerance = 5 * time.Second
	}
	if len(m.Verify.Indicators) == 0 {
		m.Verify.Indicators = []string{"K", "MACD"}
	}
	if m.Seat.SearchInterval <= 0 {
		m.Seat.SearchInterval = 30 * time.Second
	}
	if m.Seat.SwitchMovePct <= 0 {
		m.Seat.SwitchMovePct = 0.1
	}
	if m.Seat.MinExpiryDays <= 0 {
		m.Seat.MinExpiryDays = 90
	}
	for k, r := range m.Signals {
		if r.MinSatisfied <= 0 {
			r.MinSatisfied = len(r.Conditions)
			m.Signals[k] = r
		}
	}
}

// NewConfig reads configs/$CONFIG_FILE and applies environment overrides.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = defaultConfigFile
	}
	dir := os.Getenv(configDirENV)
	if dir == "" {
		dir = "configs"
	}
	return Load(filepath.Join(dir, configFileName))
}

// Load decodes a YAML file over the defaults, binds env overrides and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer func() {
		_ = file.Close()
	}()

	config := defaults()
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}

	if err := applyEnv(&config); err != nil {
		return nil, err
	}
	for i := range config.Monitors {
		config.Monitors[i].applyDefaults()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnv lets secrets come from the environment instead of the file.
func applyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix("WARRANT")
	v.AutomaticEnv()

	binds := map[string][]string{
		"telegram.token":      {"TELEGRAM_TOKEN", "WARRANT_TELEGRAM_TOKEN"},
		"telegram.chat_id":    {"TELEGRAM_CHAT_ID", "WARRANT_TELEGRAM_CHAT_ID"},
		"db_dsn":              {"DATABASE_DSN", "WARRANT_DB_DSN"},
		"log_level":           {"LOG_LEVEL", "WARRANT_LOG_LEVEL"},
		"broker.app_key":      {"BROKER_APP_KEY", "WARRANT_BROKER_APP_KEY"},
		"broker.app_secret":   {"BROKER_APP_SECRET", "WARRANT_BROKER_APP_SECRET"},
		"broker.access_token": {"BROKER_ACCESS_TOKEN", "WARRANT_BROKER_ACCESS_TOKEN"},
		"broker.base_url":     {"BROKER_BASE_URL", "WARRANT_BROKER_BASE_URL"},
		"broker.ws_url":       {"BROKER_WS_URL", "WARRANT_BROKER_WS_URL"},
	}
	for key, envs := range binds {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return errors.Wrapf(err, "bind env %s", key)
		}
	}

	setString := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	setString("telegram.token", &cfg.Telegram.Token)
	setString("db_dsn", &cfg.DB)
	setString("log_level", &cfg.LogLevel)
	setString("broker.app_key", &cfg.Broker.AppKey)
	setString("broker.app_secret", &cfg.Broker.AppSecret)
	setString("broker.access_token", &cfg.Broker.AccessToken)
	setString("broker.base_url", &cfg.Broker.BaseURL)
	setString("broker.ws_url", &cfg.Broker.WSURL)
	if id := v.GetInt64("telegram.chat_id"); id != 0 {
		cfg.Telegram.ChatID = id
	}
	return nil
}

// Validate checks what the engine cannot run without.
func (c *Config) Validate() error {
	if len(c.Monitors) == 0 {
		return fmt.Errorf("config: at least one monitor is required")
	}
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("config: engine.tick_interval must be > 0")
	}
	if c.Broker.RetryAttempts < 1 {
		return fmt.Errorf("config: broker.retry_attempts must be >= 1")
	}
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("config: market.timezone: %w", err)
	}
	if len(c.Market.Sessions) == 0 {
		return fmt.Errorf("config: market.sessions is empty")
	}
	seen := make(map[string]bool, len(c.Monitors))
	for _, m := range c.Monitors {
		if m.Symbol == "" {
			return fmt.Errorf("config: monitor without symbol")
		}
		if seen[m.Symbol] {
			return fmt.Errorf("config: duplicate monitor %s", m.Symbol)
		}
		seen[m.Symbol] = true
		if m.TargetNotional <= 0 {
			return fmt.Errorf("config: monitor %s: target_notional must be > 0", m.Symbol)
		}
		if len(m.Verify.Indicators) != 2 {
			return fmt.Errorf("config: monitor %s: verify.indicators needs exactly two names", m.Symbol)
		}
		if m.Seat.MaxDistancePct > 0 && m.Seat.MaxDistancePct <= m.Seat.MinDistancePct {
			return fmt.Errorf("config: monitor %s: seat.max_distance_pct must exceed min_distance_pct", m.Symbol)
		}
		for name, rule := range m.Signals {
			if len(rule.Conditions) == 0 {
				return fmt.Errorf("config: monitor %s: signal %s has no conditions", m.Symbol, name)
			}
			if rule.MinSatisfied > len(rule.Conditions) {
				return fmt.Errorf("config: monitor %s: signal %s min_satisfied > conditions", m.Symbol, name)
			}
		}
	}
	return nil
}

// Dump renders the effective config as YAML with secrets masked.
func (c *Config) Dump() (string, error) {
	cp := *c
	mask := func(s *string) {
		if *s != "" {
			*s = masked
		}
	}
	mask(&cp.Telegram.Token)
	mask(&cp.DB)
	mask(&cp.Broker.AppKey)
	mask(&cp.Broker.AppSecret)
	mask(&cp.Broker.AccessToken)

	bs, err := yaml.Marshal(&cp)
	if err != nil {
		return "", errors.Wrap(err, "marshal config to yaml")
	}
	return string(bs), nil
}
