package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the NDI-to-AES67 bridge.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir     string
	HTTPPort    int
	LogLevel    string
	LogFormat   string
	CORSOrigins string

	// MCastIface is the outbound interface used for every multicast send
	// socket (RTP flows and SAP announcements). Empty means "first
	// non-loopback, up, IPv4 interface".
	MCastIface string
	// PTPGMID is the PTP grandmaster identity referenced in SDP
	// ts-refclk attributes. Empty omits the attribute entirely.
	PTPGMID string
	// PTPDomain is the PTP domain number referenced in SDP.
	PTPDomain int

	// Synthetic replaces the frame source of every slot with the built-in
	// sine-wave generator (the slot's ndi_source_name is not consulted),
	// for demoing the bridge without real NDI hardware.
	Synthetic bool
}

// defaults
const (
	defaultDataDir   = "./data"
	defaultHTTPPort  = 8080
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
	defaultPTPDomain = 0
)

// envPrefix is the prefix for all NDI bridge environment variables.
const envPrefix = "NDIBRIDGE_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults. MCAST_IFACE, PTP_GMID and
// PTP_DOMAIN are read without the NDIBRIDGE_ prefix, matching the bare
// names specified for the bridge's external environment contract.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("ndibridge", flag.ContinueOnError)
	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the slot config database")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP control-surface listen port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins (use * for all)")
	fs.StringVar(&cfg.MCastIface, "mcast-iface", "", "outbound interface for multicast sends (auto-detected if empty)")
	fs.IntVar(&cfg.PTPDomain, "ptp-domain", defaultPTPDomain, "PTP domain number referenced in SDP")
	fs.BoolVar(&cfg.Synthetic, "synthetic", false, "enable the built-in synthetic audio source for demo slots")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	applyEnvOverrides(fs, cfg)
	cfg.PTPGMID = os.Getenv("PTP_GMID")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"data-dir":     envPrefix + "DATA_DIR",
		"http-port":    envPrefix + "HTTP_PORT",
		"log-level":    envPrefix + "LOG_LEVEL",
		"log-format":   envPrefix + "LOG_FORMAT",
		"cors-origins": envPrefix + "CORS_ORIGINS",
		"mcast-iface":  "MCAST_IFACE",
		"ptp-domain":   "PTP_DOMAIN",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "cors-origins":
			cfg.CORSOrigins = val
		case "mcast-iface":
			cfg.MCastIface = val
		case "ptp-domain":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.PTPDomain = v
			}
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if c.MCastIface != "" {
		if _, err := net.InterfaceByName(c.MCastIface); err != nil {
			return fmt.Errorf("mcast-iface %q not found: %w", c.MCastIface, err)
		}
	}

	return nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
