package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the single source the process runs with.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// ParseConfigFlags parses os.Args. Only three values are accepted on the
// command line; everything else comes from the config file or env.
func ParseConfigFlags() Flags {
	f, err := ParseConfigFlagsFrom(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	return f
}

// ParseConfigFlagsFrom parses the given arguments in a fresh flag set.
func ParseConfigFlagsFrom(args []string) (Flags, error) {
	fset := flag.NewFlagSet("chatstream", flag.ContinueOnError)
	addrPtr := fset.String("addr", ":8090", "HTTP listen address")
	dbPtr := fset.String("db", "./.chatstream", "Pebble DB path")
	cfgPtr := fset.String("config", "./config.yaml", "Path to config file")
	if err := fset.Parse(args); err != nil {
		return Flags{}, err
	}

	setFlags := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}, nil
}

// ParseConfigFile loads the config file; found is false when it does not exist.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs loads CHATSTREAM_* variables into a new Config. The bool
// reports whether any of them was set.
func ParseConfigEnvs() (*Config, bool) {
	envs := map[string]string{
		"ADDR":           os.Getenv("CHATSTREAM_ADDR"),
		"SERVER_ADDRESS": os.Getenv("CHATSTREAM_SERVER_ADDRESS"),
		"SERVER_PORT":    os.Getenv("CHATSTREAM_SERVER_PORT"),
		"DB_PATH":        os.Getenv("CHATSTREAM_DB_PATH"),

		"BACKEND_URL":         os.Getenv("CHATSTREAM_BACKEND_URL"),
		"BACKEND_STREAM_PATH": os.Getenv("CHATSTREAM_BACKEND_STREAM_PATH"),
		"BACKEND_TIMEOUT":     os.Getenv("CHATSTREAM_BACKEND_TIMEOUT"),
		"BACKEND_MODEL":       os.Getenv("CHATSTREAM_BACKEND_MODEL"),

		"INTEGRATIONS_URL":          os.Getenv("CHATSTREAM_INTEGRATIONS_URL"),
		"INTEGRATIONS_WORKSPACE_ID": os.Getenv("CHATSTREAM_INTEGRATIONS_WORKSPACE_ID"),
		"INTEGRATIONS_TIMEOUT":      os.Getenv("CHATSTREAM_INTEGRATIONS_TIMEOUT"),

		"CHAT_HISTORY_LIMIT":    os.Getenv("CHATSTREAM_CHAT_HISTORY_LIMIT"),
		"CHAT_PRESERVE_PARTIAL": os.Getenv("CHATSTREAM_CHAT_PRESERVE_PARTIAL"),

		"BOOKING_LOOK_AHEAD": os.Getenv("CHATSTREAM_BOOKING_LOOK_AHEAD"),
		"BOOKING_TIMEZONE":   os.Getenv("CHATSTREAM_BOOKING_TIMEZONE"),

		"SEND_RPS":   os.Getenv("CHATSTREAM_SEND_RPS"),
		"SEND_BURST": os.Getenv("CHATSTREAM_SEND_BURST"),
		"MAX_BODY":   os.Getenv("CHATSTREAM_MAX_BODY"),

		"RETENTION_ENABLED": os.Getenv("CHATSTREAM_RETENTION_ENABLED"),
		"RETENTION_CRON":    os.Getenv("CHATSTREAM_RETENTION_CRON"),
		"RETENTION_PERIOD":  os.Getenv("CHATSTREAM_RETENTION_PERIOD"),
		"RETENTION_DRY_RUN": os.Getenv("CHATSTREAM_RETENTION_DRY_RUN"),

		"TELEMETRY_ENABLED":     os.Getenv("CHATSTREAM_TELEMETRY_ENABLED"),
		"TELEMETRY_SAMPLE_RATE": os.Getenv("CHATSTREAM_TELEMETRY_SAMPLE_RATE"),

		"LOG_LEVEL": os.Getenv("CHATSTREAM_LOG_LEVEL"),
	}

	envUsed := false
	for _, v := range envs {
		if v != "" {
			envUsed = true
			break
		}
	}
	envCfg := &Config{}

	parseBool := func(v string) bool {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			return true
		default:
			return false
		}
	}
	parseInt := func(v string) int {
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	parseFloat := func(v string) float64 {
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	}
	parseDur := func(v string) Duration {
		d, _ := parseDuration(v)
		return d
	}

	if v := envs["ADDR"]; v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			envCfg.Server.Port = parseInt(p)
		} else {
			envCfg.Server.Address = v
		}
	} else {
		if host := envs["SERVER_ADDRESS"]; host != "" {
			envCfg.Server.Address = host
		}
		if port := envs["SERVER_PORT"]; port != "" {
			envCfg.Server.Port = parseInt(port)
		}
	}
	if v := envs["DB_PATH"]; v != "" {
		envCfg.Server.DBPath = v
	}

	if v := envs["BACKEND_URL"]; v != "" {
		envCfg.Backend.URL = v
	}
	if v := envs["BACKEND_STREAM_PATH"]; v != "" {
		envCfg.Backend.StreamPath = v
	}
	if v := envs["BACKEND_TIMEOUT"]; v != "" {
		envCfg.Backend.Timeout = parseDur(v)
	}
	if v := envs["BACKEND_MODEL"]; v != "" {
		envCfg.Backend.Model = v
	}

	if v := envs["INTEGRATIONS_URL"]; v != "" {
		envCfg.Integrations.URL = v
	}
	if v := envs["INTEGRATIONS_WORKSPACE_ID"]; v != "" {
		envCfg.Integrations.WorkspaceID = v
	}
	if v := envs["INTEGRATIONS_TIMEOUT"]; v != "" {
		envCfg.Integrations.RequestTimeout = parseDur(v)
	}

	if v := envs["CHAT_HISTORY_LIMIT"]; v != "" {
		envCfg.Chat.HistoryLimit = parseInt(v)
	}
	if v := envs["CHAT_PRESERVE_PARTIAL"]; v != "" {
		envCfg.Chat.PreservePartial = parseBool(v)
	}

	if v := envs["BOOKING_LOOK_AHEAD"]; v != "" {
		envCfg.Booking.LookAhead = parseDur(v)
	}
	if v := envs["BOOKING_TIMEZONE"]; v != "" {
		envCfg.Booking.Timezone = v
	}

	if v := envs["SEND_RPS"]; v != "" {
		envCfg.Limits.SendRPS = parseFloat(v)
	}
	if v := envs["SEND_BURST"]; v != "" {
		envCfg.Limits.SendBurst = parseInt(v)
	}
	if v := envs["MAX_BODY"]; v != "" {
		envCfg.Limits.MaxBody, _ = parseSize(v)
	}

	if v := envs["RETENTION_ENABLED"]; v != "" {
		envCfg.Retention.Enabled = parseBool(v)
	}
	if v := envs["RETENTION_CRON"]; v != "" {
		envCfg.Retention.Cron = v
	}
	if v := envs["RETENTION_PERIOD"]; v != "" {
		envCfg.Retention.Period = parseDur(v)
	}
	if v := envs["RETENTION_DRY_RUN"]; v != "" {
		envCfg.Retention.DryRun = parseBool(v)
	}

	if v := envs["TELEMETRY_ENABLED"]; v != "" {
		envCfg.Telemetry.Enabled = parseBool(v)
	}
	if v := envs["TELEMETRY_SAMPLE_RATE"]; v != "" {
		envCfg.Telemetry.SampleRate = parseFloat(v)
	}

	if v := envs["LOG_LEVEL"]; v != "" {
		envCfg.Logging.Level = strings.TrimSpace(v)
	}
	return envCfg, envUsed
}

// LoadEffectiveConfig picks a single source. With --config only the file is
// used; otherwise explicit flags win (filling the rest from env, then file);
// else the file if present; else env.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DBPath = fileCfg.Server.DBPath
		res.Source = "config"
		return res, nil
	}

	if flags.Set["addr"] || flags.Set["db"] {
		out := &Config{}
		if fileExists {
			*out = *fileCfg
		}
		addr := flags.Addr
		if !flags.Set["addr"] {
			addr = out.Addr()
			if envCfg.Server.Address != "" || envCfg.Server.Port != 0 {
				addr = envCfg.Addr()
			}
		}
		dbPath := flags.DB
		if !flags.Set["db"] {
			if p := strings.TrimSpace(envCfg.Server.DBPath); p != "" {
				dbPath = p
			} else if p := strings.TrimSpace(out.Server.DBPath); p != "" {
				dbPath = p
			}
		}
		if h, p, err := net.SplitHostPort(addr); err == nil {
			out.Server.Address = h
			out.Server.Port, _ = strconv.Atoi(p)
		}
		out.Server.DBPath = dbPath
		res.Config = out
		res.Addr = addr
		res.DBPath = dbPath
		res.Source = "flags"
		return res, nil
	}

	if fileExists {
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DBPath = fileCfg.Server.DBPath
		res.Source = "config"
		return res, nil
	}
	res.Config = envCfg
	res.Addr = envCfg.Addr()
	res.DBPath = envCfg.Server.DBPath
	res.Source = "env"
	return res, nil
}
