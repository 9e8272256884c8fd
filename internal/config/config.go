// Package config loads SpinePrep's on-disk YAML configuration and the
// ambient environment overrides layered on top of it. Defaulting and
// type coercion happen here; discovering which runs exist on disk
// (BIDS-style walking) does not, and is left to internal/manifest's
// Discoverer seam.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/spineprep/spineprep/internal/errs"
)

// TemporalCropConfig controls the cord-mean robust-z temporal crop
// detector (options.temporal_crop).
type TemporalCropConfig struct {
	Enable       bool    `yaml:"enable"`
	Method       string  `yaml:"method"`
	MaxTrimStart int     `yaml:"max_trim_start"`
	MaxTrimEnd   int     `yaml:"max_trim_end"`
	ZThresh      float64 `yaml:"z_thresh"`
}

// MotionConfig selects the motion-estimation engine (options.motion).
type MotionConfig struct {
	Engine    string `yaml:"engine"` // "slice-wise", "rigid-3d", "hybrid", "grouped"
	SliceAxis string `yaml:"slice_axis"`
}

// CensorConfig controls frame censoring from FD/DVARS (options.censor).
type CensorConfig struct {
	Enable        bool    `yaml:"enable"`
	FDThreshMM    float64 `yaml:"fd_thresh_mm"`
	DVARSThresh   float64 `yaml:"dvars_thresh"`
	MinContigVols int     `yaml:"min_contig_vols"`
	PadVols       int     `yaml:"pad_vols"`
}

// ACompCorConfig controls anatomical CompCor regressor extraction
// (options.acompcor).
type ACompCorConfig struct {
	Enable                bool     `yaml:"enable"`
	Tissues               []string `yaml:"tissues"`
	NComponentsPerTissue  int      `yaml:"n_components_per_tissue"`
	HighpassHz            float64  `yaml:"highpass_hz"`
	Detrend               bool     `yaml:"detrend"`
	Standardize           bool     `yaml:"standardize"`
}

// MasksConfig controls tissue-mask sourcing (options.masks).
type MasksConfig struct {
	Enable      bool    `yaml:"enable"`
	Source      string  `yaml:"source"` // "tool", "provided", "none"
	BinarizeThr float64 `yaml:"binarize_thr"`
}

// RegistrationConfig controls template registration.
type RegistrationConfig struct {
	Enable         bool     `yaml:"enable"`
	Template       string   `yaml:"template"`
	Levels         []string `yaml:"levels"`
	UseGMWMMasks   bool     `yaml:"use_gm_wm_masks"`
}

// PathsConfig names the dataset root and derivatives root.
type PathsConfig struct {
	BIDSDir string `yaml:"bids_dir"`
	DerivDir string `yaml:"deriv_dir"`
}

// OptionsConfig groups the processing-step options recognized from
// spec section 6.
type OptionsConfig struct {
	TemporalCrop TemporalCropConfig `yaml:"temporal_crop"`
	Motion       MotionConfig       `yaml:"motion"`
	Censor       CensorConfig       `yaml:"censor"`
	ACompCor     ACompCorConfig     `yaml:"acompcor"`
	Masks        MasksConfig        `yaml:"masks"`
}

// TelemetryConfig controls the optional OpenTelemetry exporter.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Config is SpinePrep's full recognized configuration surface: the
// processing options from spec section 6 plus the ambient concerns
// (logging, telemetry, worker count) every service in the corpus
// carries.
type Config struct {
	Paths        PathsConfig        `yaml:"paths"`
	Options      OptionsConfig      `yaml:"options"`
	Registration RegistrationConfig `yaml:"registration"`

	LogPath  string `yaml:"log_path"`
	LogLevel string `yaml:"log_level"`
	Workers  int    `yaml:"workers"`

	OTel TelemetryConfig `yaml:"otel"`
}

// Default returns the configuration SpinePrep runs with when no file
// is supplied, matching the defaults spec section 6 implies for each
// recognized key.
func Default() Config {
	return Config{
		Options: OptionsConfig{
			TemporalCrop: TemporalCropConfig{
				Enable:       true,
				Method:       "cord_mean_robust_z",
				MaxTrimStart: 5,
				MaxTrimEnd:   5,
				ZThresh:      2.5,
			},
			Motion: MotionConfig{
				Engine:    "slice-wise",
				SliceAxis: "z",
			},
			Censor: CensorConfig{
				Enable:        true,
				FDThreshMM:    0.5,
				DVARSThresh:   1.5,
				MinContigVols: 5,
				PadVols:       1,
			},
			ACompCor: ACompCorConfig{
				Enable:               true,
				Tissues:              []string{"wm", "csf"},
				NComponentsPerTissue: 5,
				HighpassHz:           0.01,
				Detrend:              true,
				Standardize:          true,
			},
			Masks: MasksConfig{
				Enable:      true,
				Source:      "tool",
				BinarizeThr: 0.5,
			},
		},
		Registration: RegistrationConfig{
			Enable:       false,
			Template:     "PAM50",
			Levels:       []string{"vertebral"},
			UseGMWMMasks: true,
		},
		LogLevel: "info",
		Workers:  0, // 0 means "auto", resolved by internal/resources.WorkerCount
		OTel: TelemetryConfig{
			ServiceName: "spineprep",
		},
	}
}

// Load reads the YAML configuration at path, applies it on top of
// Default, then layers ".env" emergency overrides the way the
// collaborating tooling in this corpus does (godotenv.Overload
// followed by explicit os.Getenv reads). An empty path returns the
// defaults plus env overrides only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errs.New(errs.ConfigInvalid, "config.Load", fmt.Errorf("read %s: %w", path, err))
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errs.New(errs.ConfigInvalid, "config.Load", fmt.Errorf("parse %s: %w", path, err))
		}
	}

	applyEnvOverrides(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides loads a ".env" file if present (missing is not an
// error) and lets a small set of emergency environment variables
// override the loaded file. Every override is logged, since an
// environment variable silently beating a checked-in config file is
// exactly the kind of surprise spec section 4.3 calls out.
func applyEnvOverrides(cfg *Config) {
	_ = godotenv.Overload()

	override := func(key string, dst *string) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		log.Warn().Str("env", key).Str("value", v).Msg("config: environment override applied")
		*dst = v
	}

	override("SPINEPREP_LOG_LEVEL", &cfg.LogLevel)
	override("SPINEPREP_LOG_PATH", &cfg.LogPath)
	override("SPINEPREP_BIDS_DIR", &cfg.Paths.BIDSDir)
	override("SPINEPREP_DERIV_DIR", &cfg.Paths.DerivDir)

	if v := strings.TrimSpace(os.Getenv("SPINEPREP_OTEL_ENDPOINT")); v != "" {
		log.Warn().Str("env", "SPINEPREP_OTEL_ENDPOINT").Str("value", v).Msg("config: environment override applied")
		cfg.OTel.Endpoint = v
		cfg.OTel.Enabled = true
	}
}

var validEngines = map[string]bool{
	"slice-wise": true,
	"rigid-3d":   true,
	"hybrid":     true,
	"grouped":    true,
}

var validMaskSources = map[string]bool{
	"tool":     true,
	"provided": true,
	"none":     true,
}

// Validate rejects configurations spec section 6 has no meaning for,
// returning an errs.ConfigInvalid error naming the first problem
// found.
func Validate(cfg Config) error {
	if !validEngines[cfg.Options.Motion.Engine] {
		return errs.New(errs.ConfigInvalid, "config.Validate", fmt.Errorf("options.motion.engine: unrecognized engine %q", cfg.Options.Motion.Engine))
	}
	if cfg.Options.Motion.SliceAxis != "" && cfg.Options.Motion.SliceAxis != "x" && cfg.Options.Motion.SliceAxis != "y" && cfg.Options.Motion.SliceAxis != "z" {
		return errs.New(errs.ConfigInvalid, "config.Validate", fmt.Errorf("options.motion.slice_axis: unrecognized axis %q", cfg.Options.Motion.SliceAxis))
	}
	if cfg.Options.Masks.Enable && !validMaskSources[cfg.Options.Masks.Source] {
		return errs.New(errs.ConfigInvalid, "config.Validate", fmt.Errorf("options.masks.source: unrecognized source %q", cfg.Options.Masks.Source))
	}
	if cfg.Options.Censor.MinContigVols < 0 || cfg.Options.Censor.PadVols < 0 {
		return errs.New(errs.ConfigInvalid, "config.Validate", fmt.Errorf("options.censor: min_contig_vols and pad_vols must be non-negative"))
	}
	if cfg.Options.ACompCor.NComponentsPerTissue < 0 {
		return errs.New(errs.ConfigInvalid, "config.Validate", fmt.Errorf("options.acompcor.n_components_per_tissue must be non-negative"))
	}
	if cfg.Workers < 0 {
		return errs.New(errs.ConfigInvalid, "config.Validate", fmt.Errorf("workers must be non-negative"))
	}
	return nil
}
