package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wcscal/internal/distortion"
	"wcscal/internal/outframe"
)

const (
	defaultConfigPath = "~/.config/wcscal/config.json"
	defaultParallel   = 4
	epochLayout       = "2006-01-02"
)

// Config holds user-editable settings for the calibration tools.
type Config struct {
	Processing Processing `json:"processing"`
	Logging    Logging    `json:"logging"`
	Paths      Paths      `json:"paths"`
	TDD        TDD        `json:"tdd"`
	Output     Output     `json:"output"`
}

// Processing captures execution preferences.
type Processing struct {
	ParallelJobs int `json:"parallel_jobs"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // text, json
	FileOutput bool   `json:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir"`
}

// Paths configures the database and reference-file locations.
type Paths struct {
	DatabasePath string `json:"database_path"`
	// ReferenceDirs maps a reference prefix such as "jref" to a directory.
	// Environment variables of the same name take precedence.
	ReferenceDirs map[string]string `json:"reference_dirs"`
}

// TDD holds the time-dependent skew constants.
type TDD struct {
	Epoch       string  `json:"epoch"` // YYYY-MM-DD
	Alpha0      float64 `json:"alpha0"`
	Alpha1      float64 `json:"alpha1"`
	Beta0       float64 `json:"beta0"`
	Beta1       float64 `json:"beta1"`
	PeriodYears float64 `json:"period_years"`
	ReferenceX  float64 `json:"reference_x"`
	ReferenceY  float64 `json:"reference_y"`
	PixelScale  float64 `json:"pixel_scale"`
	ModelScale  float64 `json:"model_scale"`
}

// Params converts the configured constants.
func (t TDD) Params() (distortion.TDDParams, error) {
	epoch, err := time.Parse(epochLayout, t.Epoch)
	if err != nil {
		return distortion.TDDParams{}, fmt.Errorf("tdd.epoch: %w", err)
	}
	if t.PeriodYears == 0 || t.ReferenceX == 0 || t.ModelScale == 0 {
		return distortion.TDDParams{}, errors.New("tdd: period_years, reference_x and model_scale must be non-zero")
	}
	return distortion.TDDParams{
		Epoch:       epoch,
		Alpha0:      t.Alpha0,
		Alpha1:      t.Alpha1,
		Beta0:       t.Beta0,
		Beta1:       t.Beta1,
		PeriodYears: t.PeriodYears,
		ReferenceX:  t.ReferenceX,
		ReferenceY:  t.ReferenceY,
		PixelScale:  t.PixelScale,
		ModelScale:  t.ModelScale,
	}, nil
}

// Output holds the user overrides for the single-drizzle and final output
// frames. RA and Dec apply to both.
type Output struct {
	RA     *float64           `json:"ra"`
	Dec    *float64           `json:"dec"`
	Single outframe.Overrides `json:"single"`
	Final  outframe.Overrides `json:"final"`
}

// SingleOverrides returns the single frame overrides with the shared target.
func (o Output) SingleOverrides() outframe.Overrides {
	return o.withTarget(o.Single)
}

// FinalOverrides returns the final frame overrides with the shared target.
func (o Output) FinalOverrides() outframe.Overrides {
	return o.withTarget(o.Final)
}

func (o Output) withTarget(ov outframe.Overrides) outframe.Overrides {
	if ov.RA == nil {
		ov.RA = o.RA
	}
	if ov.Dec == nil {
		ov.Dec = o.Dec
	}
	return ov
}

// Load reads configuration from disk, falling back to sensible defaults.
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("WCSCAL_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", expanded, err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	p := distortion.DefaultTDDParams()
	return &Config{
		Processing: Processing{
			ParallelJobs: defaultParallel,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Paths: Paths{
			DatabasePath:  filepath.Join(os.TempDir(), "wcscal.db"),
			ReferenceDirs: map[string]string{},
		},
		TDD: TDD{
			Epoch:       p.Epoch.Format(epochLayout),
			Alpha0:      p.Alpha0,
			Alpha1:      p.Alpha1,
			Beta0:       p.Beta0,
			Beta1:       p.Beta1,
			PeriodYears: p.PeriodYears,
			ReferenceX:  p.ReferenceX,
			ReferenceY:  p.ReferenceY,
			PixelScale:  p.PixelScale,
			ModelScale:  p.ModelScale,
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
