// Package config holds all sceneforge configuration: defaults, an optional
// YAML file under <workspace>/.sceneforge/config.yaml, and environment
// variable overrides applied on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sceneforge/internal/types"
)

// Config holds all sceneforge configuration.
type Config struct {
	// Workspace root under which sessions/<id>/ lives.
	Workspace string `yaml:"workspace"`

	// External service endpoints.
	Services ServicesConfig `yaml:"services"`

	// Bounded executor settings for generation stages.
	Executor ExecutorConfig `yaml:"executor"`

	// Layout solver settings.
	Solver SolverConfig `yaml:"solver"`

	// Pipeline behavior.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Optional asset retrieval step before generation.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Logging.
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig describes one external collaborator endpoint.
type ServiceConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// ServicesConfig groups the image, VLM, and 3D endpoints.
type ServicesConfig struct {
	Image  ServiceConfig `yaml:"image"`
	VLM    ServiceConfig `yaml:"vlm"`
	ThreeD ServiceConfig `yaml:"three_d"`
}

// ExecutorConfig configures the bounded job executor.
type ExecutorConfig struct {
	Capacity       int     `yaml:"capacity"`      // concurrent in-flight jobs per service
	MaxRetries     int     `yaml:"max_retries"`   // retries per job on retryable errors
	RetryDelayS    float64 `yaml:"retry_delay_s"` // backoff base, multiplier 2
	PerJobTimeoutS float64 `yaml:"per_job_timeout_s"`
	PollIntervalS  float64 `yaml:"poll_interval_s"` // for job-handle services
	PollErrorMax   int     `yaml:"poll_error_max"`  // consecutive poll errors before retryable failure
}

// SolverConfig configures the layout solver.
type SolverConfig struct {
	SamplingResolution     float64   `yaml:"sampling_resolution"` // meters
	MaxCandidatesPerObject int       `yaml:"max_candidates_per_object"`
	TimeoutS               float64   `yaml:"timeout_s"`
	BufferDistance         float64   `yaml:"buffer_distance"`     // meters, relative constraints
	CollisionClearance     float64   `yaml:"collision_clearance"` // meters
	GravityEnabled         bool      `yaml:"gravity_enabled"`     // stability check toggle
	RoomSize               []float64 `yaml:"room_size"`           // default room box [L,W,H]
	// UniformScaleFromHeight keeps the downstream asset-normalization
	// convention of scale = [size_z, size_z, size_z].
	UniformScaleFromHeight bool `yaml:"uniform_scale_from_height"`
}

// PipelineConfig configures the stage runner.
type PipelineConfig struct {
	MaxSessionRetries int      `yaml:"max_session_retries"`
	MaxLayoutAttempts int      `yaml:"max_layout_attempts"` // solver + constraint-regeneration cycle cap
	QCEnabled         bool     `yaml:"qc_enabled"`
	ReviewStages      []string `yaml:"review_stages"` // stages requiring human approval
	ReviewTimeout     string   `yaml:"review_timeout"`
}

// RetrievalConfig configures the sqlite asset catalog.
type RetrievalConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Threshold   float64 `yaml:"threshold"` // minimum match score to reuse an asset
	CatalogPath string  `yaml:"catalog_path"`
}

// LoggingConfig mirrors the logging package's file config.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Services: ServicesConfig{
			Image:  ServiceConfig{Timeout: "120s"},
			VLM:    ServiceConfig{Timeout: "120s", Model: "gemini-2.0-flash"},
			ThreeD: ServiceConfig{Timeout: "300s"},
		},
		Executor: ExecutorConfig{
			Capacity:       2,
			MaxRetries:     3,
			RetryDelayS:    1.0,
			PerJobTimeoutS: 120,
			PollIntervalS:  2.0,
			PollErrorMax:   3,
		},
		Solver: SolverConfig{
			SamplingResolution:     0.1,
			MaxCandidatesPerObject: 100,
			TimeoutS:               30,
			BufferDistance:         0.1,
			CollisionClearance:     0.02,
			GravityEnabled:         false,
			RoomSize:               []float64{10, 10, 3},
			UniformScaleFromHeight: true,
		},
		Pipeline: PipelineConfig{
			MaxSessionRetries: 3,
			MaxLayoutAttempts: 3,
			ReviewTimeout:     "1h",
		},
		Retrieval: RetrievalConfig{
			Threshold: 0.8,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Categories: map[string]bool{},
		},
	}
}

// Load loads configuration for a workspace: defaults, then the workspace
// YAML file if present, then environment overrides.
func Load(workspace string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Workspace = workspace

	path := filepath.Join(workspace, ".sceneforge", "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, types.WrapError(types.ErrConfig, "config",
				fmt.Errorf("failed to parse %s: %w", path, err))
		}
	} else if !os.IsNotExist(err) {
		return nil, types.WrapError(types.ErrConfig, "config",
			fmt.Errorf("failed to read config: %w", err))
	}

	cfg.applyEnvOverrides()

	if cfg.Retrieval.CatalogPath == "" {
		cfg.Retrieval.CatalogPath = filepath.Join(cfg.Workspace, ".sceneforge", "asset_catalog.db")
	}
	// A workspace file with no categories block leaves the map nil; keep it
	// non-nil so save/load round trips compare equal.
	if cfg.Logging.Categories == nil {
		cfg.Logging.Categories = map[string]bool{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the workspace YAML file.
func (c *Config) Save() error {
	path := filepath.Join(c.Workspace, ".sceneforge", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if ws := os.Getenv("SCENEFORGE_WORKSPACE"); ws != "" {
		c.Workspace = ws
	}

	applyServiceEnv := func(s *ServiceConfig, prefix string) {
		if key := os.Getenv(prefix + "_API_KEY"); key != "" {
			s.APIKey = key
		}
		if url := os.Getenv(prefix + "_BASE_URL"); url != "" {
			s.BaseURL = url
		}
		if model := os.Getenv(prefix + "_MODEL"); model != "" {
			s.Model = model
		}
	}
	applyServiceEnv(&c.Services.Image, "IMAGE")
	applyServiceEnv(&c.Services.VLM, "VLM")
	applyServiceEnv(&c.Services.ThreeD, "THREED")

	// The VLM client also accepts the common Gemini key.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.Services.VLM.APIKey == "" {
		c.Services.VLM.APIKey = key
	}

	if v := os.Getenv("ASSET_RETRIEVAL_ENABLED"); v != "" {
		c.Retrieval.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("ASSET_RETRIEVAL_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retrieval.Threshold = f
		}
	}
	if v := os.Getenv("REVIEW_STAGES"); v != "" {
		c.Pipeline.ReviewStages = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.Pipeline.ReviewStages = append(c.Pipeline.ReviewStages, s)
			}
		}
	}
}

// Validate checks settings that would otherwise fail deep inside a stage.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return types.NewError(types.ErrConfig, "config", "workspace path is required").
			WithActions("set SCENEFORGE_WORKSPACE or pass --workspace")
	}
	if c.Executor.Capacity < 1 {
		return types.NewError(types.ErrConfig, "config", "executor capacity must be >= 1")
	}
	if c.Solver.SamplingResolution <= 0 {
		return types.NewError(types.ErrConfig, "config", "sampling_resolution must be positive")
	}
	if len(c.Solver.RoomSize) != 3 {
		return types.NewError(types.ErrConfig, "config", "room_size must have 3 components")
	}
	return nil
}

// ReviewRequired reports whether the named stage is gated on human approval.
func (c *Config) ReviewRequired(stage string) bool {
	for _, s := range c.Pipeline.ReviewStages {
		if s == stage {
			return true
		}
	}
	return false
}

// ReviewTimeout returns the parsed review gate timeout.
func (c *Config) ReviewTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.ReviewTimeout)
	if err != nil {
		return time.Hour
	}
	return d
}

// ServiceTimeout parses a service timeout with a fallback.
func (s ServiceConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}
