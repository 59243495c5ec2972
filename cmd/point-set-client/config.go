package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	addr        string
	room        string
	player      string
	password    string
	conv        uint
	discover    bool
	logFormat   string
	logLevel    string
	metricsAddr string

	runningLiveness bool
	connectTimeout  time.Duration
	startTimeout    time.Duration
	updateTimeout   time.Duration
	finishTimeout   time.Duration

	logMetricsEvery time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	addr := flag.String("addr", "", "Room server address (host:port); ignored when --discover finds one")
	room := flag.String("room", "", "Room ID to join")
	player := flag.String("player", "", "Player ID to authenticate as")
	password := flag.String("password", "", "Room password")
	conv := flag.Uint("conv", 0, "KCP conversation ID (must be unique per session with the room)")
	discover := flag.Bool("discover", false, "Browse LAN mDNS for a room server instead of using --addr/--room")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	runningLiveness := flag.Bool("running-liveness", false, "Time out the Running phase if no Command frame arrives within the update timeout")
	connectTimeout := flag.Duration("connect-timeout", 10*time.Second, "Wall-clock budget to receive Accept")
	startTimeout := flag.Duration("start-timeout", 20*time.Second, "Wall-clock budget to receive Start")
	updateTimeout := flag.Duration("update-timeout", 7*time.Second, "Running-phase liveness budget (only enforced with --running-liveness)")
	finishTimeout := flag.Duration("finish-timeout", 5*time.Second, "Wall-clock budget to drain outbound traffic after the session ends")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.addr = *addr
	cfg.room = *room
	cfg.player = *player
	cfg.password = *password
	cfg.conv = *conv
	cfg.discover = *discover
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.runningLiveness = *runningLiveness
	cfg.connectTimeout = *connectTimeout
	cfg.startTimeout = *startTimeout
	cfg.updateTimeout = *updateTimeout
	cfg.finishTimeout = *finishTimeout
	cfg.logMetricsEvery = *logMetricsEvery

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open sockets — only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if !c.discover {
		if c.addr == "" {
			return errors.New("addr is required unless --discover is set")
		}
		if c.room == "" {
			return errors.New("room is required unless --discover is set")
		}
	}
	if c.player == "" {
		return errors.New("player is required")
	}
	if c.connectTimeout <= 0 {
		return errors.New("connect-timeout must be > 0")
	}
	if c.startTimeout <= 0 {
		return errors.New("start-timeout must be > 0")
	}
	if c.updateTimeout <= 0 {
		return errors.New("update-timeout must be > 0")
	}
	if c.finishTimeout <= 0 {
		return errors.New("finish-timeout must be > 0")
	}
	return nil
}

// applyEnvOverrides maps POINT_SET_CLIENT_* environment variables to config
// fields unless a corresponding flag was explicitly set. Boolean & numeric
// parsing is lax: empty values ignored. Duration accepts Go time.ParseDuration
// format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	setErr := func(err error, msg string) {
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", msg, err)
		}
	}

	if _, ok := set["addr"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_ADDR"); ok && v != "" {
			c.addr = v
		}
	}
	if _, ok := set["room"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_ROOM"); ok && v != "" {
			c.room = v
		}
	}
	if _, ok := set["player"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_PLAYER"); ok && v != "" {
			c.player = v
		}
	}
	if _, ok := set["password"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_PASSWORD"); ok {
			c.password = v
		}
	}
	if _, ok := set["conv"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_CONV"); ok && v != "" {
			n, err := strconv.ParseUint(v, 10, 32)
			if err == nil {
				c.conv = uint(n)
			}
			setErr(err, "invalid POINT_SET_CLIENT_CONV")
		}
	}
	if _, ok := set["discover"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_DISCOVER"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.discover = true
			case "0", "false", "no", "off":
				c.discover = false
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["running-liveness"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_RUNNING_LIVENESS"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.runningLiveness = true
			case "0", "false", "no", "off":
				c.runningLiveness = false
			}
		}
	}
	if _, ok := set["connect-timeout"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_CONNECT_TIMEOUT"); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err == nil && d > 0 {
				c.connectTimeout = d
			}
			setErr(err, "invalid POINT_SET_CLIENT_CONNECT_TIMEOUT")
		}
	}
	if _, ok := set["start-timeout"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_START_TIMEOUT"); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err == nil && d > 0 {
				c.startTimeout = d
			}
			setErr(err, "invalid POINT_SET_CLIENT_START_TIMEOUT")
		}
	}
	if _, ok := set["update-timeout"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_UPDATE_TIMEOUT"); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err == nil && d > 0 {
				c.updateTimeout = d
			}
			setErr(err, "invalid POINT_SET_CLIENT_UPDATE_TIMEOUT")
		}
	}
	if _, ok := set["finish-timeout"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_FINISH_TIMEOUT"); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err == nil && d > 0 {
				c.finishTimeout = d
			}
			setErr(err, "invalid POINT_SET_CLIENT_FINISH_TIMEOUT")
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("POINT_SET_CLIENT_LOG_METRICS_INTERVAL"); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err == nil && d >= 0 {
				c.logMetricsEvery = d
			}
			setErr(err, "invalid POINT_SET_CLIENT_LOG_METRICS_INTERVAL")
		}
	}
	return firstErr
}
