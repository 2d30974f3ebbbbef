package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
}

// TracingConfig holds OTLP export settings.
type TracingConfig struct {
	Endpoint string
	Insecure bool
}

// HistoryConfig sizes the in-memory and persisted run history.
type HistoryConfig struct {
	Keep      int
	Retention int
	Window    int
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Notification NotificationConfig
	Tracing      TracingConfig
	History      HistoryConfig

	StateDir      string
	ConfigDir     string
	UseUTC        bool
	ShutdownGrace time.Duration
	Voice         string
	TTSCommand    string

	Files *Files
}

const (
	VoiceConsole = "console"
	VoiceNone    = "none"
)

const (
	defaultAddr          = "127.0.0.1:7171"
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
	defaultHistoryKeep   = 1000
	defaultShutdownGrace = 5 * time.Second
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Flags are the command-line overrides bound to a cobra command.
type Flags struct {
	fs *pflag.FlagSet

	addr          string
	stateDir      string
	configDir     string
	logLevel      string
	logFormat     string
	useUTC        bool
	shutdownGrace time.Duration
	historyKeep   int
	voice         string
}

// BindFlags registers the daemon flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.addr, "addr", "", "HTTP listen address, empty string disables the API (overrides env)")
	fs.StringVar(&f.stateDir, "state-dir", "", "Directory to store the database")
	fs.StringVar(&f.configDir, "config-dir", "", "Directory holding settings.yaml and responses.yaml")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format (text, json)")
	fs.BoolVar(&f.useUTC, "use-utc", false, "Use UTC for cron evaluation instead of system local time")
	fs.DurationVar(&f.shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")
	fs.IntVar(&f.historyKeep, "history-keep", 0, "Number of history rows kept in the database")
	fs.StringVar(&f.voice, "voice", "", "Voice front end (console, none)")
	return f
}

// LoadEnv reads .env files from the working directory and the user config directory.
// Missing files are ignored.
func LoadEnv() {
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "jarvis", ".env"))
	}
	for _, file := range envFiles {
		_ = godotenv.Load(file)
	}
}

// Parse builds the runtime configuration.
// Priority: CLI flags > Environment variables > .env file > defaults
func Parse(flags *Flags) (*Config, error) {
	LoadEnv()

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("JARVIS_ADDR", defaultAddr),
			AuthToken: getEnvString("JARVIS_AUTH_TOKEN", ""),
		},
		Log: LogConfig{
			Level:  getEnvString("JARVIS_LOG_LEVEL", defaultLogLevel),
			Format: getEnvString("JARVIS_LOG_FORMAT", defaultLogFormat),
			File:   getEnvString("JARVIS_LOG_FILE", ""),
		},
		Notification: NotificationConfig{
			Bark: BarkConfig{
				URL:     getEnvString("JARVIS_BARK_URL", ""),
				Enabled: getEnvBool("JARVIS_BARK_ENABLED", false),
			},
		},
		Tracing: TracingConfig{
			Endpoint: getEnvString("JARVIS_OTLP_ENDPOINT", ""),
			Insecure: getEnvBool("JARVIS_OTLP_INSECURE", true),
		},
		History: HistoryConfig{
			Keep: getEnvInt("JARVIS_HISTORY_KEEP", defaultHistoryKeep),
		},
		StateDir:      getEnvString("JARVIS_STATE_DIR", ""),
		ConfigDir:     getEnvString("JARVIS_CONFIG_DIR", ""),
		UseUTC:        getEnvBool("JARVIS_USE_UTC", false),
		ShutdownGrace: getEnvDuration("JARVIS_SHUTDOWN_GRACE", defaultShutdownGrace),
		Voice:         getEnvString("JARVIS_VOICE", VoiceConsole),
		TTSCommand:    getEnvString("JARVIS_TTS_COMMAND", ""),
	}

	if flags != nil {
		flags.apply(cfg)
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = filepath.Join(cfg.StateDir, "config")
	}
	if cfg.History.Keep < 1 {
		cfg.History.Keep = defaultHistoryKeep
	}
	switch cfg.Voice {
	case VoiceConsole, VoiceNone:
	default:
		return nil, fmt.Errorf("%w: unknown voice %q", ErrInvalidConfig, cfg.Voice)
	}

	// First run: materialize the built-in files so they can be edited.
	if _, err := WriteDefaults(cfg.ConfigDir); err != nil {
		return nil, err
	}
	files, err := LoadFiles(cfg.ConfigDir)
	if err != nil {
		return nil, err
	}
	cfg.Files = files
	cfg.applySettings()
	return cfg, nil
}

func (f *Flags) apply(cfg *Config) {
	f.fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "addr":
			cfg.Server.Addr = f.addr
		case "state-dir":
			cfg.StateDir = f.stateDir
		case "config-dir":
			cfg.ConfigDir = f.configDir
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-format":
			cfg.Log.Format = f.logFormat
		case "use-utc":
			cfg.UseUTC = f.useUTC
		case "shutdown-grace":
			cfg.ShutdownGrace = f.shutdownGrace
		case "history-keep":
			cfg.History.Keep = f.historyKeep
		case "voice":
			cfg.Voice = f.voice
		}
	})
}

// applySettings fills values that settings.yaml provides unless the environment set them.
func (cfg *Config) applySettings() {
	s := cfg.Files.Settings
	if cfg.Log.File == "" {
		cfg.Log.File = s.Paths.LogFile
	}
	cfg.History.Window = getEnvInt("JARVIS_HISTORY_WINDOW", s.Tasks.HistoryWindow)
	cfg.History.Retention = getEnvInt("JARVIS_HISTORY_RETENTION", s.Tasks.HistoryRetention)
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "jarvis")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
