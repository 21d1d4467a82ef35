package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// STTConfig selects and parameterizes the recognizer backend.
type STTConfig struct {
	Mode      string `yaml:"mode"`       // exec or mock
	Command   string `yaml:"command"`    // recognizer command line, mode=exec
	ModelName string `yaml:"model_name"` // pretrained model identifier
	ModelPath string `yaml:"model_path"` // local model file, overrides ModelName
	Device    string `yaml:"device"`     // compute device hint, empty = auto
}

// CaptureConfig parameterizes the microphone input stream.
type CaptureConfig struct {
	Device          string `yaml:"device"` // input device name substring, empty = default
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
}

// IngestConfig parameterizes the watch-folder transcription service.
type IngestConfig struct {
	Dir     string `yaml:"dir"` // empty disables ingestion
	Workers int    `yaml:"workers"`
}

type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	HistoryPath     string        `yaml:"history_path"`
	FrontendPort    int           `yaml:"frontend_port"`
	FrontendOrigins []string      `yaml:"frontend_origins"`
	LogLevel        string        `yaml:"log_level"`
	STT             STTConfig     `yaml:"stt"`
	Capture         CaptureConfig `yaml:"capture"`
	Ingest          IngestConfig  `yaml:"ingest"`
}

func Default() Config {
	return Config{
		HTTPAddr:     ":8017",
		HistoryPath:  "history/history.json",
		FrontendPort: 4310,
		LogLevel:     "info",
		STT: STTConfig{
			Mode:      "mock",
			ModelName: "nvidia/parakeet-tdt-0.6b-v3",
		},
		Capture: CaptureConfig{
			FramesPerBuffer: 1024,
		},
		Ingest: IngestConfig{
			Workers: 2,
		},
	}
}

// Load reads an optional YAML file, applies VOXD_* environment overrides and
// validates the result. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.HTTPAddr, "VOXD_HTTP_ADDR")
	overrideString(&cfg.HistoryPath, "VOXD_HISTORY_PATH")
	overrideInt(&cfg.FrontendPort, "VOXD_FRONTEND_PORT")
	overrideStringSlice(&cfg.FrontendOrigins, "VOXD_FRONTEND_ORIGINS")
	overrideString(&cfg.LogLevel, "VOXD_LOG_LEVEL")
	overrideString(&cfg.STT.Mode, "VOXD_STT_MODE")
	overrideString(&cfg.STT.Command, "VOXD_STT_COMMAND")
	overrideString(&cfg.STT.ModelName, "VOXD_MODEL_NAME")
	overrideString(&cfg.STT.ModelPath, "VOXD_MODEL_PATH")
	overrideString(&cfg.STT.Device, "VOXD_STT_DEVICE")
	overrideString(&cfg.Capture.Device, "VOXD_DEVICE")
	overrideInt(&cfg.Capture.FramesPerBuffer, "VOXD_FRAMES_PER_BUFFER")
	overrideString(&cfg.Ingest.Dir, "VOXD_INGEST_DIR")
	overrideInt(&cfg.Ingest.Workers, "VOXD_INGEST_WORKERS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// Origins returns the allowed CORS origins: the configured extras plus the
// localhost origins derived from the frontend port.
func (c Config) Origins() []string {
	origins := []string{
		fmt.Sprintf("http://localhost:%d", c.FrontendPort),
		fmt.Sprintf("http://127.0.0.1:%d", c.FrontendPort),
	}
	return append(origins, c.FrontendOrigins...)
}

func validate(cfg Config) error {
	if cfg.HTTPAddr == "" {
		return errors.New("http_addr must not be empty")
	}
	if cfg.HistoryPath == "" {
		return errors.New("history_path must not be empty")
	}
	if cfg.FrontendPort <= 0 || cfg.FrontendPort > 65535 {
		return errors.New("frontend_port must be between 1 and 65535")
	}
	switch cfg.STT.Mode {
	case "exec", "mock":
	default:
		return errors.New("stt.mode must be one of exec|mock")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	if cfg.Capture.FramesPerBuffer <= 0 {
		return errors.New("capture.frames_per_buffer must be positive")
	}
	if cfg.Ingest.Dir != "" && cfg.Ingest.Workers <= 0 {
		return errors.New("ingest.workers must be >= 1 when ingest.dir is set")
	}
	return nil
}
