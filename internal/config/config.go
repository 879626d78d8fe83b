package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	Plain      bool
	Timeout    string
	RPCURL     string
	ChainID    int64
	ListenAddr string
	NoJournal  bool
}

type Settings struct {
	OutputMode string
	ListenAddr string
	DevMode    bool
	LogLevel   string

	ChainID       int64
	RPCURL        string
	PollInterval  time.Duration
	StepTimeout   time.Duration
	GasMultiplier float64

	AggregatorBaseURL string
	Partner           string
	HTTPTimeout       time.Duration

	KeySource string

	JournalEnabled  bool
	JournalPath     string
	JournalLockPath string
}

type fileConfig struct {
	Output     string `yaml:"output"`
	ListenAddr string `yaml:"listen_addr"`
	DevMode    *bool  `yaml:"dev_mode"`
	LogLevel   string `yaml:"log_level"`
	Chain      struct {
		ID            *int64  `yaml:"id"`
		RPCURL        string  `yaml:"rpc_url"`
		PollInterval  string  `yaml:"poll_interval"`
		StepTimeout   string  `yaml:"step_timeout"`
		GasMultiplier float64 `yaml:"gas_multiplier"`
	} `yaml:"chain"`
	Aggregator struct {
		BaseURL string `yaml:"base_url"`
		Partner string `yaml:"partner"`
		Timeout string `yaml:"timeout"`
	} `yaml:"aggregator"`
	Signer struct {
		KeySource string `yaml:"key_source"`
	} `yaml:"signer"`
	Journal struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"journal"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.HTTPTimeout <= 0 {
		settings.HTTPTimeout = 10 * time.Second
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 2 * time.Second
	}
	if settings.StepTimeout <= 0 {
		settings.StepTimeout = 2 * time.Minute
	}
	if settings.GasMultiplier <= 1 {
		settings.GasMultiplier = 1.2
	}
	if settings.ChainID <= 0 {
		settings.ChainID = 1
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	journalPath, lockPath, err := defaultJournalPaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:      "json",
		ListenAddr:      ":8080",
		LogLevel:        "info",
		ChainID:         1,
		PollInterval:    2 * time.Second,
		StepTimeout:     2 * time.Minute,
		GasMultiplier:   1.2,
		HTTPTimeout:     10 * time.Second,
		KeySource:       "auto",
		JournalEnabled:  true,
		JournalPath:     journalPath,
		JournalLockPath: lockPath,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "swapd", "config.yaml"), nil
}

func defaultJournalPaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "swapd")
	return filepath.Join(dir, "journal.db"), filepath.Join(dir, "journal.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.ListenAddr != "" {
		settings.ListenAddr = cfg.ListenAddr
	}
	if cfg.DevMode != nil {
		settings.DevMode = *cfg.DevMode
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = strings.ToLower(cfg.LogLevel)
	}
	if cfg.Chain.ID != nil {
		settings.ChainID = *cfg.Chain.ID
	}
	if cfg.Chain.RPCURL != "" {
		settings.RPCURL = cfg.Chain.RPCURL
	}
	if cfg.Chain.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Chain.PollInterval)
		if err != nil {
			return fmt.Errorf("config chain.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if cfg.Chain.StepTimeout != "" {
		d, err := time.ParseDuration(cfg.Chain.StepTimeout)
		if err != nil {
			return fmt.Errorf("config chain.step_timeout: %w", err)
		}
		settings.StepTimeout = d
	}
	if cfg.Chain.GasMultiplier > 0 {
		settings.GasMultiplier = cfg.Chain.GasMultiplier
	}
	if cfg.Aggregator.BaseURL != "" {
		settings.AggregatorBaseURL = cfg.Aggregator.BaseURL
	}
	if cfg.Aggregator.Partner != "" {
		settings.Partner = cfg.Aggregator.Partner
	}
	if cfg.Aggregator.Timeout != "" {
		d, err := time.ParseDuration(cfg.Aggregator.Timeout)
		if err != nil {
			return fmt.Errorf("config aggregator.timeout: %w", err)
		}
		settings.HTTPTimeout = d
	}
	if cfg.Signer.KeySource != "" {
		settings.KeySource = strings.ToLower(cfg.Signer.KeySource)
	}
	if cfg.Journal.Enabled != nil {
		settings.JournalEnabled = *cfg.Journal.Enabled
	}
	if cfg.Journal.Path != "" {
		settings.JournalPath = cfg.Journal.Path
	}
	if cfg.Journal.LockPath != "" {
		settings.JournalLockPath = cfg.Journal.LockPath
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("SWAPD_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("SWAPD_LISTEN_ADDR"); v != "" {
		settings.ListenAddr = v
	}
	if v := os.Getenv("SWAPD_DEV_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.DevMode = b
		}
	}
	if v := os.Getenv("SWAPD_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("SWAPD_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.ChainID = n
		}
	}
	if v := os.Getenv("SWAPD_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("SWAPD_AGGREGATOR_URL"); v != "" {
		settings.AggregatorBaseURL = v
	}
	if v := os.Getenv("SWAPD_PARTNER"); v != "" {
		settings.Partner = v
	}
	if v := os.Getenv("SWAPD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.HTTPTimeout = d
		}
	}
	if v := os.Getenv("SWAPD_KEY_SOURCE"); v != "" {
		settings.KeySource = strings.ToLower(v)
	}
	if v := os.Getenv("SWAPD_NO_JOURNAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.JournalEnabled = !b
		}
	}
	if v := os.Getenv("SWAPD_JOURNAL_PATH"); v != "" {
		settings.JournalPath = v
	}
	if v := os.Getenv("SWAPD_JOURNAL_LOCK_PATH"); v != "" {
		settings.JournalLockPath = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.HTTPTimeout = d
	}
	if strings.TrimSpace(flags.RPCURL) != "" {
		settings.RPCURL = strings.TrimSpace(flags.RPCURL)
	}
	if flags.ChainID > 0 {
		settings.ChainID = flags.ChainID
	}
	if strings.TrimSpace(flags.ListenAddr) != "" {
		settings.ListenAddr = strings.TrimSpace(flags.ListenAddr)
	}
	if flags.NoJournal {
		settings.JournalEnabled = false
	}
	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}
