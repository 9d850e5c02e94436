package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultMaxRetries           = 3
	defaultRetryBackoff         = time.Millisecond * 500
	defaultRefreshInterval      = time.Second * 10
	defaultPointValue           = 5
	defaultInitialBalance       = 10000
	defaultMaxDrawdown          = 500
	defaultRecoveryToLive       = 250
	defaultProbationMaxDrawdown = 200
)

// Config is the configuration struct for the service.
type Config struct {
	// Ticker is the traded instrument.
	Ticker string
	// SettingsPath is the filepath to the strategy settings, defaults apply when empty.
	SettingsPath string
	// LogLevel is the minimum level logged.
	LogLevel string
	// Backtest is the backtesting flag.
	Backtest bool
	// BacktestDataFilepath is the filepath to the backtest data.
	BacktestDataFilepath string
	// FeedURL is the base url of the signal feed.
	FeedURL string
	// FeedAPIKey is the signal feed API key.
	FeedAPIKey string
	// BarCloseDelay is the number of seconds after the minute the closed bar is fetched.
	BarCloseDelay int
	// RefreshInterval is the interval between broker status refreshes.
	RefreshInterval time.Duration
	// PaperCommission is the commission charged per contract per fill by the paper gateways.
	PaperCommission float64
	// PaperSlippage is the number of points paper market fills are worsened by.
	PaperSlippage float64
	// MaxRetries is the number of attempts a broker call gets.
	MaxRetries int
	// RetryBackoff is the delay before the second broker call attempt.
	RetryBackoff time.Duration
	// PointValue is the currency value of a point per contract.
	PointValue float64
	// InitialBalance is the starting account balance.
	InitialBalance float64
	// MaxDrawdown is the account drawdown that moves the account to sim mode.
	MaxDrawdown float64
	// RecoveryToLive is the model recovery that moves a sim account back to live on probation.
	RecoveryToLive float64
	// ProbationMaxDrawdown is the drawdown that moves a probation account back to sim mode.
	ProbationMaxDrawdown float64
	// DBEndpoint is the rqlite trade journal endpoint, the journal is disabled when empty.
	DBEndpoint string
	// DBUser is the rqlite user.
	DBUser string
	// DBPass is the rqlite user pass.
	DBPass string
	// SQLitePath is the filepath of the local state store, the store is disabled when empty.
	SQLitePath string

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.Ticker == "" {
		errs = errors.Join(errs, fmt.Errorf("ticker cannot be an empty string"))
	}

	switch cfg.Backtest {
	case true:
		if cfg.BacktestDataFilepath == "" {
			errs = errors.Join(errs, fmt.Errorf("backtest data filepath cannot be an empty string"))
		}
	case false:
		if cfg.FeedURL == "" {
			errs = errors.Join(errs, fmt.Errorf("feed url cannot be an empty string"))
		}
		if cfg.FeedAPIKey == "" {
			errs = errors.Join(errs, fmt.Errorf("feed api key cannot be an empty string"))
		}
		if cfg.BarCloseDelay < 0 || cfg.BarCloseDelay > 59 {
			errs = errors.Join(errs, fmt.Errorf("bar close delay must be within [0, 59] seconds"))
		}
	}

	if cfg.PaperCommission < 0 {
		errs = errors.Join(errs, fmt.Errorf("paper commission cannot be negative"))
	}
	if cfg.PaperSlippage < 0 {
		errs = errors.Join(errs, fmt.Errorf("paper slippage cannot be negative"))
	}
	if cfg.MaxRetries < 0 {
		errs = errors.Join(errs, fmt.Errorf("max retries cannot be negative"))
	}

	return errs
}

// applyDefaults fills unset numeric options with their defaults.
func (cfg *Config) applyDefaults() {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.PointValue == 0 {
		cfg.PointValue = defaultPointValue
	}
	if cfg.InitialBalance == 0 {
		cfg.InitialBalance = defaultInitialBalance
	}
	if cfg.MaxDrawdown == 0 {
		cfg.MaxDrawdown = defaultMaxDrawdown
	}
	if cfg.RecoveryToLive == 0 {
		cfg.RecoveryToLive = defaultRecoveryToLive
	}
	if cfg.ProbationMaxDrawdown == 0 {
		cfg.ProbationMaxDrawdown = defaultProbationMaxDrawdown
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Float64:
		var def float64
		if defValue != "" {
			def, _ = strconv.ParseFloat(defValue, 64)
		}
		flag.Float64Var(value.(*float64), name, def, usage)
	case reflect.Int64:
		// Only handle time.Duration
		dur, ok := value.(*time.Duration)
		if !ok {
			return fmt.Errorf("%s: unsupported int64 type", name)
		}
		var def time.Duration
		if defValue != "" {
			def, _ = time.ParseDuration(defValue)
		}
		flag.DurationVar(dur, name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	flags := []struct {
		name  string
		value interface{}
		usage string
	}{
		{"ticker", &cfg.Ticker, "the traded instrument"},
		{"settings", &cfg.SettingsPath, "the strategy settings filepath"},
		{"loglevel", &cfg.LogLevel, "the minimum log level"},
		{"backtest", &cfg.Backtest, "the backtest flag"},
		{"backtestdatafilepath", &cfg.BacktestDataFilepath, "the backtest data filepath"},
		{"feedurl", &cfg.FeedURL, "the signal feed base url"},
		{"feedapikey", &cfg.FeedAPIKey, "the signal feed api key"},
		{"barclosedelay", &cfg.BarCloseDelay, "the seconds after the minute closed bars are fetched"},
		{"refreshinterval", &cfg.RefreshInterval, "the broker status refresh interval"},
		{"papercommission", &cfg.PaperCommission, "the paper commission per contract per fill"},
		{"paperslippage", &cfg.PaperSlippage, "the paper market fill slippage in points"},
		{"maxretries", &cfg.MaxRetries, "the attempts a broker call gets"},
		{"retrybackoff", &cfg.RetryBackoff, "the delay before retrying a broker call"},
		{"pointvalue", &cfg.PointValue, "the currency value of a point per contract"},
		{"initialbalance", &cfg.InitialBalance, "the starting account balance"},
		{"maxdrawdown", &cfg.MaxDrawdown, "the account drawdown that moves the account to sim mode"},
		{"recoverytolive", &cfg.RecoveryToLive, "the model recovery that moves the account back live"},
		{"probationmaxdrawdown", &cfg.ProbationMaxDrawdown, "the drawdown that ends probation"},
		{"dbendpoint", &cfg.DBEndpoint, "the rqlite trade journal endpoint"},
		{"dbuser", &cfg.DBUser, "the rqlite user"},
		{"dbpass", &cfg.DBPass, "the rqlite user pass"},
		{"sqlitepath", &cfg.SQLitePath, "the local state store filepath"},
	}
	for _, f := range flags {
		err = cfg.registerFlag(f.name, f.value, f.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	cfg.applyDefaults()

	return cfg.Validate()
}
