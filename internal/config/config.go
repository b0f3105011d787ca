package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv   = "CVTAILOR_CONFIG"
	dotenvPathEnv   = "CVTAILOR_DOTENV"
	anthropicKeyEnv = "ANTHROPIC_API_KEY"
	backendPortEnv  = "BACKEND_PORT"
	frontendURLEnv  = "FRONTEND_URL"
	dataDirEnv      = "DATA_DIR"
	identityModeEnv = "IDENTITY_MODE"
	latexBinaryEnv  = "LATEX_BINARY"
	logLevelEnv     = "LOG_LEVEL"

	defaultIdentityMode = "content"
	defaultModel        = "claude-sonnet-4-20250514"
)

// Config holds high-level settings required across the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Identity  IdentityConfig  `yaml:"identity"`
	Compiler  CompilerConfig  `yaml:"compiler"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Janitor   JanitorConfig   `yaml:"janitor"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig describes the HTTP surface.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	FrontendURL    string `yaml:"frontendUrl"`
	MaxUploadBytes int64  `yaml:"maxUploadBytes"`
}

// StorageConfig locates the stage cache and the document registry.
type StorageConfig struct {
	DataDir      string `yaml:"dataDir"`
	RegistryPath string `yaml:"registryPath"`
}

// CacheDir is the root of the stage cache.
func (s StorageConfig) CacheDir() string {
	return filepath.Join(s.DataDir, "cache")
}

// RegistryFile resolves the registry database path, defaulting inside DataDir.
func (s StorageConfig) RegistryFile() string {
	if s.RegistryPath != "" {
		return s.RegistryPath
	}
	return filepath.Join(s.DataDir, "registry.db")
}

// IdentityConfig selects how document identities are derived: "content"
// deduplicates identical uploads, "random" never does.
type IdentityConfig struct {
	Mode string `yaml:"mode"`
}

// CompilerConfig drives the markup compiler subprocess.
type CompilerConfig struct {
	Binary             string        `yaml:"binary"`
	Timeout            time.Duration `yaml:"timeout"`
	Passes             int           `yaml:"passes"`
	WorkRoot           string        `yaml:"workRoot"`
	MaxDiagnosticLines int           `yaml:"maxDiagnosticLines"`
}

// ExtractorConfig drives the page renderer subprocess.
type ExtractorConfig struct {
	Binary  string        `yaml:"binary"`
	DPI     int           `yaml:"dpi"`
	Timeout time.Duration `yaml:"timeout"`
}

// AnthropicConfig defines how to contact the Messages API.
type AnthropicConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	APIKey            string        `yaml:"apiKey"`
	Version           string        `yaml:"version"`
	VisionModel       string        `yaml:"visionModel"`
	AnalysisModel     string        `yaml:"analysisModel"`
	OptimizationModel string        `yaml:"optimizationModel"`
	MaxTokens         int           `yaml:"maxTokens"`
	Timeout           time.Duration `yaml:"timeout"`
}

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	DefaultJobPath string `yaml:"defaultJobPath"`
	SingleFlight   *bool  `yaml:"singleFlight"`
}

// SingleFlightEnabled defaults to true when unset.
func (p PipelineConfig) SingleFlightEnabled() bool {
	return p.SingleFlight == nil || *p.SingleFlight
}

// JanitorConfig schedules the sweep of abandoned compiler work dirs.
type JanitorConfig struct {
	Interval time.Duration `yaml:"interval"`
	MaxAge   time.Duration `yaml:"maxAge"`
}

// LoggingConfig sets the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (if present), the optional .env file and
// applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	loadDotenv()
	cfg.applyEnvOverrides()
	cfg.validate()

	return cfg
}

// loadDotenv reads .env without overriding variables already set.
func loadDotenv() {
	path := os.Getenv(dotenvPathEnv)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot load %s: %v", path, err)
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(anthropicKeyEnv); v != "" {
		c.Anthropic.APIKey = v
	}

	if v := os.Getenv(backendPortEnv); v != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}

	if v := os.Getenv(frontendURLEnv); v != "" {
		c.Server.FrontendURL = v
	}

	if v := os.Getenv(dataDirEnv); v != "" {
		c.Storage.DataDir = v
	}

	if v := os.Getenv(identityModeEnv); v != "" {
		c.Identity.Mode = v
	}

	if v := os.Getenv(latexBinaryEnv); v != "" {
		c.Compiler.Binary = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) validate() {
	switch strings.ToLower(strings.TrimSpace(c.Identity.Mode)) {
	case "content", "random":
		c.Identity.Mode = strings.ToLower(strings.TrimSpace(c.Identity.Mode))
	default:
		log.Printf("config: unknown identity mode %q, reverting to %s", c.Identity.Mode, defaultIdentityMode)
		c.Identity.Mode = defaultIdentityMode
	}

	if c.Compiler.Timeout <= 0 {
		c.Compiler.Timeout = 60 * time.Second
	}
	if c.Compiler.Passes < 1 {
		c.Compiler.Passes = 2
	}
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = 10 << 20
	}
}

func mergeConfig(base, override Config) Config {
	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
	if override.Server.FrontendURL != "" {
		base.Server.FrontendURL = override.Server.FrontendURL
	}
	if override.Server.MaxUploadBytes != 0 {
		base.Server.MaxUploadBytes = override.Server.MaxUploadBytes
	}

	if override.Storage.DataDir != "" {
		base.Storage.DataDir = override.Storage.DataDir
	}
	if override.Storage.RegistryPath != "" {
		base.Storage.RegistryPath = override.Storage.RegistryPath
	}

	if override.Identity.Mode != "" {
		base.Identity.Mode = override.Identity.Mode
	}

	if override.Compiler.Binary != "" {
		base.Compiler.Binary = override.Compiler.Binary
	}
	if override.Compiler.Timeout != 0 {
		base.Compiler.Timeout = override.Compiler.Timeout
	}
	if override.Compiler.Passes != 0 {
		base.Compiler.Passes = override.Compiler.Passes
	}
	if override.Compiler.WorkRoot != "" {
		base.Compiler.WorkRoot = override.Compiler.WorkRoot
	}
	if override.Compiler.MaxDiagnosticLines != 0 {
		base.Compiler.MaxDiagnosticLines = override.Compiler.MaxDiagnosticLines
	}

	if override.Extractor.Binary != "" {
		base.Extractor.Binary = override.Extractor.Binary
	}
	if override.Extractor.DPI != 0 {
		base.Extractor.DPI = override.Extractor.DPI
	}
	if override.Extractor.Timeout != 0 {
		base.Extractor.Timeout = override.Extractor.Timeout
	}

	if override.Anthropic.Endpoint != "" {
		base.Anthropic.Endpoint = override.Anthropic.Endpoint
	}
	if override.Anthropic.APIKey != "" {
		base.Anthropic.APIKey = override.Anthropic.APIKey
	}
	if override.Anthropic.Version != "" {
		base.Anthropic.Version = override.Anthropic.Version
	}
	if override.Anthropic.VisionModel != "" {
		base.Anthropic.VisionModel = override.Anthropic.VisionModel
	}
	if override.Anthropic.AnalysisModel != "" {
		base.Anthropic.AnalysisModel = override.Anthropic.AnalysisModel
	}
	if override.Anthropic.OptimizationModel != "" {
		base.Anthropic.OptimizationModel = override.Anthropic.OptimizationModel
	}
	if override.Anthropic.MaxTokens != 0 {
		base.Anthropic.MaxTokens = override.Anthropic.MaxTokens
	}
	if override.Anthropic.Timeout != 0 {
		base.Anthropic.Timeout = override.Anthropic.Timeout
	}

	if override.Pipeline.DefaultJobPath != "" {
		base.Pipeline.DefaultJobPath = override.Pipeline.DefaultJobPath
	}
	if override.Pipeline.SingleFlight != nil {
		base.Pipeline.SingleFlight = override.Pipeline.SingleFlight
	}

	if override.Janitor.Interval != 0 {
		base.Janitor.Interval = override.Janitor.Interval
	}
	if override.Janitor.MaxAge != 0 {
		base.Janitor.MaxAge = override.Janitor.MaxAge
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8000",
			FrontendURL:    "http://localhost:3000",
			MaxUploadBytes: 10 << 20,
		},
		Storage:  StorageConfig{DataDir: "data"},
		Identity: IdentityConfig{Mode: defaultIdentityMode},
		Compiler: CompilerConfig{
			Binary:             "xelatex",
			Timeout:            60 * time.Second,
			Passes:             2,
			MaxDiagnosticLines: 10,
		},
		Extractor: ExtractorConfig{Binary: "pdftoppm", DPI: 200, Timeout: 2 * time.Minute},
		Anthropic: AnthropicConfig{
			Endpoint:          "https://api.anthropic.com/v1/messages",
			Version:           "2023-06-01",
			VisionModel:       defaultModel,
			AnalysisModel:     defaultModel,
			OptimizationModel: defaultModel,
			MaxTokens:         8192,
			Timeout:           5 * time.Minute,
		},
		Pipeline: PipelineConfig{DefaultJobPath: "examples/sample-job.json"},
		Janitor:  JanitorConfig{Interval: 30 * time.Minute, MaxAge: 6 * time.Hour},
		Logging:  LoggingConfig{Level: "info"},
	}
}
