package config

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const (
	SettingsFile  = "settings.yaml"
	ResponsesFile = "responses.yaml"
)

//go:embed defaults/settings.yaml defaults/responses.yaml defaults/responses.schema.json
var defaults embed.FS

// ErrInvalidConfig marks configuration content that parsed but failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigurationError reports a configuration file that could not be used.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type AudioSettings struct {
	SampleRate      int `yaml:"sample_rate"`
	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

type SystemSettings struct {
	RogueCPUThreshold float64       `yaml:"rogue_cpu_threshold"`
	RogueMemThreshold float64       `yaml:"rogue_mem_threshold"`
	CriticalPercent   float64       `yaml:"critical_percent"`
	DiskPath          string        `yaml:"disk_path"`
	NotifyCooldown    time.Duration `yaml:"notify_cooldown"`
}

type PathSettings struct {
	LogFile string `yaml:"log_file"`
}

type AssistantSettings struct {
	PollTimeout    time.Duration `yaml:"poll_timeout"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	IdleDelay      time.Duration `yaml:"idle_delay"`
}

type TaskSettings struct {
	HistoryWindow    int           `yaml:"history_window"`
	HistoryRetention int           `yaml:"history_retention"`
	Timeout          time.Duration `yaml:"timeout"`
}

// Settings mirrors settings.yaml.
type Settings struct {
	Audio     AudioSettings     `yaml:"audio"`
	System    SystemSettings    `yaml:"system"`
	Paths     PathSettings      `yaml:"paths"`
	Assistant AssistantSettings `yaml:"assistant"`
	Tasks     TaskSettings      `yaml:"tasks"`
	Launchers map[string]string `yaml:"launchers"`
}

// Files is the content of the configuration directory.
type Files struct {
	Settings  *Settings
	Responses map[string]any
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() *Settings {
	s, err := parseSettings(mustDefault(SettingsFile))
	if err != nil {
		panic(fmt.Sprintf("built-in settings: %v", err))
	}
	return s
}

// DefaultResponses returns the built-in response templates.
func DefaultResponses() map[string]any {
	r, err := parseResponses(mustDefault(ResponsesFile))
	if err != nil {
		panic(fmt.Sprintf("built-in responses: %v", err))
	}
	return r
}

func mustDefault(name string) []byte {
	data, err := defaults.ReadFile("defaults/" + name)
	if err != nil {
		panic(fmt.Sprintf("read default %s: %v", name, err))
	}
	return data
}

// WriteDefaults writes the built-in files into dir, leaving existing files untouched.
// It returns the paths it created.
func WriteDefaults(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &ConfigurationError{Path: dir, Err: err}
	}
	var created []string
	for _, name := range []string{SettingsFile, ResponsesFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return created, &ConfigurationError{Path: path, Err: err}
		}
		if err := os.WriteFile(path, mustDefault(name), 0o644); err != nil {
			return created, &ConfigurationError{Path: path, Err: err}
		}
		created = append(created, path)
	}
	return created, nil
}

// LoadFiles reads and validates settings.yaml and responses.yaml from dir.
func LoadFiles(dir string) (*Files, error) {
	settingsPath := filepath.Join(dir, SettingsFile)
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, &ConfigurationError{Path: settingsPath, Err: err}
	}
	settings, err := parseSettings(data)
	if err != nil {
		return nil, &ConfigurationError{Path: settingsPath, Err: err}
	}

	responsesPath := filepath.Join(dir, ResponsesFile)
	data, err = os.ReadFile(responsesPath)
	if err != nil {
		return nil, &ConfigurationError{Path: responsesPath, Err: err}
	}
	responses, err := parseResponses(data)
	if err != nil {
		return nil, &ConfigurationError{Path: responsesPath, Err: err}
	}
	return &Files{Settings: settings, Responses: responses}, nil
}

// parseSettings decodes over the defaults so absent keys keep their built-in value.
// Launchers merge with the built-in map.
func parseSettings(data []byte) (*Settings, error) {
	s := &Settings{}
	if err := yaml.Unmarshal(mustDefault(SettingsFile), s); err != nil {
		return nil, fmt.Errorf("parse built-in settings: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	switch {
	case s.Audio.SampleRate <= 0:
		return fmt.Errorf("%w: audio.sample_rate must be positive", ErrInvalidConfig)
	case s.System.CriticalPercent <= 0 || s.System.CriticalPercent > 100:
		return fmt.Errorf("%w: system.critical_percent must be in (0, 100]", ErrInvalidConfig)
	case s.Assistant.PollTimeout < 0 || s.Assistant.CaptureTimeout < 0 || s.Assistant.IdleDelay < 0:
		return fmt.Errorf("%w: assistant timeouts must not be negative", ErrInvalidConfig)
	case s.Tasks.HistoryWindow < 0 || s.Tasks.HistoryRetention < 0:
		return fmt.Errorf("%w: tasks history sizes must not be negative", ErrInvalidConfig)
	}
	return nil
}

func parseResponses(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse responses: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: responses file is empty", ErrInvalidConfig)
	}
	if err := ValidateResponses(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

var (
	responsesSchema     *jsonschema.Schema
	responsesSchemaErr  error
	responsesSchemaOnce sync.Once
)

// ValidateResponses checks a decoded responses document against the embedded schema.
func ValidateResponses(doc map[string]any) error {
	responsesSchemaOnce.Do(func() {
		responsesSchema, responsesSchemaErr = jsonschema.CompileString(
			"responses.schema.json", string(mustDefault("responses.schema.json")))
	})
	if responsesSchemaErr != nil {
		return fmt.Errorf("compile responses schema: %w", responsesSchemaErr)
	}
	// The validator expects JSON types; round-trip to normalize yaml numbers.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := responsesSchema.Validate(decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
