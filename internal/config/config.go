package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/photo-curator/internal/dedup"
	"github.com/kozaktomas/photo-curator/internal/fingerprint"
	"github.com/kozaktomas/photo-curator/internal/frames"
	"github.com/kozaktomas/photo-curator/internal/histogram"
	"github.com/kozaktomas/photo-curator/internal/sharpness"
	"github.com/kozaktomas/photo-curator/internal/storage"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Blurry actions.
const (
	BlurryDiscard = "discard"
	BlurryMove    = "move"
)

type Config struct {
	Curation CurationConfig `yaml:"curation" json:"curation"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Filter   OutputConfig   `yaml:"filter" json:"filter"`
	Equalize EqualizeConfig `yaml:"equalize" json:"equalize"`
	Frames   FramesConfig   `yaml:"frames" json:"frames"`
	Journal  JournalConfig  `yaml:"journal" json:"journal"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// CurationConfig holds everything the curation pipeline reads.
type CurationConfig struct {
	BlurThreshold    float64  `yaml:"blur_threshold" json:"blur_threshold"`
	HashThreshold    int      `yaml:"hash_threshold" json:"hash_threshold"`
	BucketCapacity   int      `yaml:"bucket_capacity" json:"bucket_capacity"`
	SharpnessFilter  bool     `yaml:"sharpness_filter" json:"sharpness_filter"`
	SharpnessBackend string   `yaml:"sharpness_backend" json:"sharpness_backend"`
	Algorithm        string   `yaml:"algorithm" json:"algorithm"`
	Index            string   `yaml:"index" json:"index"`
	BlurryAction     string   `yaml:"blurry_action" json:"blurry_action"` // discard or move
	BlurryDir        string   `yaml:"blurry_dir" json:"blurry_dir"`
	Workers          int      `yaml:"workers" json:"workers"`
	Extensions       []string `yaml:"extensions" json:"extensions"`
}

type StorageConfig struct {
	Mode      string `yaml:"mode" json:"mode"` // move or copy
	Overwrite bool   `yaml:"overwrite" json:"overwrite"`
}

type OutputConfig struct {
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}

type EqualizeConfig struct {
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	Backend   string `yaml:"backend" json:"backend"` // native, or opencv with -tags gocv
}

type FramesConfig struct {
	Backend    string   `yaml:"backend" json:"backend"` // ffmpeg, or opencv with -tags gocv
	FFmpeg     string   `yaml:"ffmpeg" json:"ffmpeg"`
	Extensions []string `yaml:"extensions" json:"extensions"`
}

type JournalConfig struct {
	DSN          string `yaml:"dsn" json:"-"` // path, sqlite://, postgres:// or mysql://
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns"`
}

type ServerConfig struct {
	Host           string   `yaml:"host" json:"host"`
	Port           int      `yaml:"port" json:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	// Root confines the directories API runs may read and write. Empty
	// means unrestricted.
	Root string `yaml:"root" json:"root"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// ConfigError reports an invalid setting. It is always fatal.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// Default returns the embedded defaults.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load builds the configuration from the embedded defaults, the optional
// YAML file at path and CURATOR_* environment variables, in that order.
// The result is not validated; call Validate after applying flag overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{Field: path, Reason: err.Error()}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	cur := &c.Curation

	cur.BlurThreshold = envFloat("CURATOR_BLUR_THRESHOLD", cur.BlurThreshold, &errs)
	cur.HashThreshold = envInt("CURATOR_HASH_THRESHOLD", cur.HashThreshold, &errs)
	cur.BucketCapacity = envInt("CURATOR_BUCKET_CAPACITY", cur.BucketCapacity, &errs)
	cur.SharpnessFilter = envBool("CURATOR_SHARPNESS_FILTER", cur.SharpnessFilter, &errs)
	cur.SharpnessBackend = envString("CURATOR_SHARPNESS_BACKEND", cur.SharpnessBackend)
	cur.Algorithm = envString("CURATOR_ALGORITHM", cur.Algorithm)
	cur.Index = envString("CURATOR_INDEX", cur.Index)
	cur.BlurryAction = envString("CURATOR_BLURRY_ACTION", cur.BlurryAction)
	cur.Workers = envInt("CURATOR_WORKERS", cur.Workers, &errs)

	c.Storage.Mode = envString("CURATOR_STORAGE_MODE", c.Storage.Mode)
	c.Frames.Backend = envString("CURATOR_FRAMES_BACKEND", c.Frames.Backend)
	c.Frames.FFmpeg = envString("CURATOR_FFMPEG", c.Frames.FFmpeg)
	c.Equalize.Backend = envString("CURATOR_EQUALIZE_BACKEND", c.Equalize.Backend)
	c.Journal.DSN = envString("CURATOR_JOURNAL", c.Journal.DSN)
	c.Server.Host = envString("CURATOR_HOST", c.Server.Host)
	c.Server.Port = envInt("CURATOR_PORT", c.Server.Port, &errs)
	c.Server.Root = envString("CURATOR_SERVER_ROOT", c.Server.Root)
	c.Log.Level = envString("CURATOR_LOG_LEVEL", c.Log.Level)

	if origins := os.Getenv("CURATOR_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	return errors.Join(errs...)
}

// Validate checks every setting the pipeline depends on.
func (c *Config) Validate() error {
	cur := c.Curation
	switch {
	case math.IsNaN(cur.BlurThreshold) || cur.BlurThreshold < 0:
		return &ConfigError{Field: "curation.blur_threshold", Reason: fmt.Sprintf("must be >= 0, got %v", cur.BlurThreshold)}
	case cur.HashThreshold < 0 || cur.HashThreshold > fingerprint.Bits:
		return &ConfigError{Field: "curation.hash_threshold", Reason: fmt.Sprintf("must be between 0 and %d, got %d", fingerprint.Bits, cur.HashThreshold)}
	case cur.BucketCapacity < 1:
		return &ConfigError{Field: "curation.bucket_capacity", Reason: fmt.Sprintf("must be at least 1, got %d", cur.BucketCapacity)}
	case cur.Workers < 1:
		return &ConfigError{Field: "curation.workers", Reason: fmt.Sprintf("must be at least 1, got %d", cur.Workers)}
	case cur.BlurryAction != BlurryDiscard && cur.BlurryAction != BlurryMove:
		return &ConfigError{Field: "curation.blurry_action", Reason: fmt.Sprintf("must be %q or %q, got %q", BlurryDiscard, BlurryMove, cur.BlurryAction)}
	case cur.BlurryAction == BlurryMove && cur.BlurryDir == "":
		return &ConfigError{Field: "curation.blurry_dir", Reason: "required when blurry_action is move"}
	}

	if _, err := fingerprint.ParseAlgorithm(cur.Algorithm); err != nil {
		return &ConfigError{Field: "curation.algorithm", Reason: err.Error()}
	}
	if _, err := dedup.ParseIndex(cur.Index); err != nil {
		return &ConfigError{Field: "curation.index", Reason: err.Error()}
	}
	if _, err := sharpness.NewScorer(cur.SharpnessBackend); err != nil {
		return &ConfigError{Field: "curation.sharpness_backend", Reason: err.Error()}
	}
	if _, err := storage.ParseMode(c.Storage.Mode); err != nil {
		return &ConfigError{Field: "storage.mode", Reason: err.Error()}
	}
	if _, err := frames.NewBackend(c.Frames.Backend, c.Frames.FFmpeg); err != nil {
		return &ConfigError{Field: "frames.backend", Reason: err.Error()}
	}
	if _, err := histogram.NewEqualizer(c.Equalize.Backend); err != nil {
		return &ConfigError{Field: "equalize.backend", Reason: err.Error()}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Reason: fmt.Sprintf("out of range: %d", c.Server.Port)}
	}
	return nil
}

// YAML renders the configuration, used to record it alongside a run.
// The journal DSN is left out since it may carry credentials.
func (c *Config) YAML() string {
	redacted := *c
	redacted.Journal.DSN = ""
	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return ""
	}
	return string(out)
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as an integer.
// Returns the default value if the env var is unset or empty.
func envInt(key string, defaultVal int, errs *[]error) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		*errs = append(*errs, &ConfigError{Field: key, Reason: fmt.Sprintf("not an integer: %q", s)})
		return defaultVal
	}
	return n
}

func envFloat(key string, defaultVal float64, errs *[]error) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*errs = append(*errs, &ConfigError{Field: key, Reason: fmt.Sprintf("not a number: %q", s)})
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool, errs *[]error) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		*errs = append(*errs, &ConfigError{Field: key, Reason: fmt.Sprintf("not a boolean: %q", s)})
		return defaultVal
	}
	return b
}
