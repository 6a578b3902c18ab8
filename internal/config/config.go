package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"geo-correlate/internal/calculator"
	"geo-correlate/internal/validator"
)

const (
	ErrCodeNotFound = "config_not_found"
	ErrCodeInvalid  = "config_invalid"
)

const (
	// DefaultFile is read from the working directory when no path is given.
	DefaultFile = "geocorr.yaml"

	EnvConfig        = "GEOCORR_CONFIG"
	EnvPort          = "PORT"
	EnvSessionSecret = "GEOCORR_SESSION_SECRET"
)

type Config struct {
	Port           string        `yaml:"port"`
	GinMode        string        `yaml:"gin_mode"`
	UploadDir      string        `yaml:"upload_dir"`
	OutputDir      string        `yaml:"output_dir"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	SessionSecret  string        `yaml:"session_secret"`
	Timeout        time.Duration `yaml:"timeout"`
	JobTTL         time.Duration `yaml:"job_ttl"`

	// MaxPoints bounds each set; the nearest search is O(|A|*|B|).
	MaxPoints    int    `yaml:"max_points"`
	Strategy     string `yaml:"strategy"`
	Order        string `yaml:"order"`
	DecimalComma bool   `yaml:"decimal_comma"`
}

func Default() Config {
	return Config{
		Port:           "9595",
		GinMode:        "release",
		UploadDir:      "uploads",
		OutputDir:      "output",
		MaxUploadBytes: 32 << 20,
		Timeout:        30 * time.Second,
		JobTTL:         time.Hour,
		MaxPoints:      50000,
		Strategy:       calculator.StrategyScan,
		Order:          string(validator.OrderLatLon),
	}
}

type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s: %q: %v", e.Code, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %q", e.Code, e.Path)
	default:
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code extracts the error code, or "" when err is not a *Error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Load reads path, or $GEOCORR_CONFIG, or ./geocorr.yaml when present, on
// top of Default(), then applies environment overrides. An explicitly named
// file must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if p := os.Getenv(EnvConfig); p != "" {
			path, explicit = p, true
		} else {
			path = DefaultFile
		}
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(raw, &cfg); err != nil {
			return Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case errors.Is(err, os.ErrNotExist):
		return Config{}, &Error{Code: ErrCodeNotFound, Path: path}
	default:
		return Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}

	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv(EnvSessionSecret); v != "" {
		cfg.SessionSecret = v
	}
	if cfg.SessionSecret == "" {
		// sessions then only live as long as the process
		cfg.SessionSecret = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	return cfg, nil
}

func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is empty")
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("gin_mode %q must be debug, release or test", c.GinMode)
	}
	if c.UploadDir == "" || c.OutputDir == "" {
		return errors.New("upload_dir and output_dir are required")
	}
	if c.MaxPoints <= 0 {
		return fmt.Errorf("max_points must be positive, got %d", c.MaxPoints)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.JobTTL <= 0 {
		return fmt.Errorf("job_ttl must be positive, got %s", c.JobTTL)
	}
	if _, err := calculator.StrategyByName(c.Strategy); err != nil {
		return err
	}
	if _, err := validator.ParseOrder(c.Order); err != nil {
		return err
	}
	return nil
}
