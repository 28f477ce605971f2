package splat

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/splat/internal/geom"
	"github.com/gogpu/splat/internal/gsplat"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds every training hyperparameter. It is immutable once a Model
// has been built from it.
type Config struct {
	Train    TrainConfig    `yaml:"train"`
	SH       SHConfig       `yaml:"sh"`
	LR       LRConfig       `yaml:"lr"`
	Adam     AdamConfig     `yaml:"adam"`
	Density  DensityConfig  `yaml:"density"`
	Render   RenderConfig   `yaml:"render"`
	Init     InitConfig     `yaml:"init"`
	Parallel ParallelConfig `yaml:"parallel"`
}

// TrainConfig controls the outer loop.
type TrainConfig struct {
	MaxSteps           int        `yaml:"max_steps"`
	NumDownscales      int        `yaml:"num_downscales"`      // images start at 1/2^n resolution
	ResolutionSchedule int        `yaml:"resolution_schedule"` // steps per resolution doubling
	SSIMWeight         float64    `yaml:"ssim_weight"`
	SSIMWindow         int        `yaml:"ssim_window"`
	Seed               uint64     `yaml:"seed"`
	Background         [3]float64 `yaml:"background,flow"`
}

// SHConfig controls the spherical-harmonic degree ramp.
type SHConfig struct {
	Degree         int `yaml:"degree"`
	DegreeInterval int `yaml:"degree_interval"` // steps per additional band
}

// LRConfig holds per-group learning rates.
type LRConfig struct {
	Means      float64 `yaml:"means"`
	MeansFinal float64 `yaml:"means_final"`
	LogScales  float64 `yaml:"log_scales"`
	Quats      float64 `yaml:"quats"`
	SHDC       float64 `yaml:"sh_dc"`
	SHRest     float64 `yaml:"sh_rest"`
	Opacity    float64 `yaml:"opacity"`
}

// AdamConfig holds the moment decay rates shared by all groups.
type AdamConfig struct {
	Beta1   float64 `yaml:"beta1"`
	Beta2   float64 `yaml:"beta2"`
	Epsilon float64 `yaml:"epsilon"`
}

// DensityConfig controls split, clone, prune and opacity reset.
type DensityConfig struct {
	RefineEvery       int     `yaml:"refine_every"`
	WarmupLength      int     `yaml:"warmup_length"`
	ResetAlphaEvery   int     `yaml:"reset_alpha_every"`
	StopSplitAt       int     `yaml:"stop_split_at"`
	DensifyGradThresh float64 `yaml:"densify_grad_thresh"`
	DensifySizeThresh float64 `yaml:"densify_size_thresh"`
	StopScreenSizeAt  int     `yaml:"stop_screen_size_at"`
	SplitScreenSize   float64 `yaml:"split_screen_size"`
	SplitSamples      int     `yaml:"split_samples"`
	SplitScaleFactor  float64 `yaml:"split_scale_factor"`
	CullAlphaThresh   float64 `yaml:"cull_alpha_thresh"`
	CullScaleThresh   float64 `yaml:"cull_scale_thresh"`
	CullScreenSize    float64 `yaml:"cull_screen_size"`
}

// RenderConfig holds projection parameters.
type RenderConfig struct {
	GlobalScale float64 `yaml:"global_scale"`
	ClipThresh  float64 `yaml:"clip_thresh"`
	ZNear       float64 `yaml:"z_near"`
	ZFar        float64 `yaml:"z_far"`
}

// InitConfig controls how Gaussians are seeded from the point cloud.
type InitConfig struct {
	Opacity      float64 `yaml:"opacity"`
	KNNNeighbors int     `yaml:"knn_neighbors"`
}

// ParallelConfig sizes the CPU worker pool.
type ParallelConfig struct {
	Workers int `yaml:"workers"`
}

// DefaultConfig returns the embedded defaults.
func DefaultConfig() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		panic(fmt.Sprintf("splat: parsing embedded defaults: %v", err))
	}
	return cfg
}

// LoadConfig reads a YAML file over the embedded defaults and validates the
// result. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteYAML writes the configuration to path.
func (c Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate reports every invalid field, joined into one error.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}
	if err := gsplat.CheckDegree(c.SH.Degree); err != nil {
		errs = append(errs, err)
	}
	check(c.Train.MaxSteps > 0, "train.max_steps = %d", c.Train.MaxSteps)
	check(c.Train.NumDownscales >= 0, "train.num_downscales = %d", c.Train.NumDownscales)
	check(c.Train.ResolutionSchedule > 0, "train.resolution_schedule = %d", c.Train.ResolutionSchedule)
	check(c.Train.SSIMWeight >= 0 && c.Train.SSIMWeight <= 1, "train.ssim_weight = %v", c.Train.SSIMWeight)
	check(c.Train.SSIMWindow > 0 && c.Train.SSIMWindow%2 == 1, "train.ssim_window = %d (must be odd)", c.Train.SSIMWindow)
	check(c.SH.DegreeInterval > 0, "sh.degree_interval = %d", c.SH.DegreeInterval)
	check(c.LR.Means > 0 && c.LR.MeansFinal > 0, "lr.means = %v, lr.means_final = %v", c.LR.Means, c.LR.MeansFinal)
	check(c.Adam.Beta1 >= 0 && c.Adam.Beta1 < 1, "adam.beta1 = %v", c.Adam.Beta1)
	check(c.Adam.Beta2 >= 0 && c.Adam.Beta2 < 1, "adam.beta2 = %v", c.Adam.Beta2)
	check(c.Adam.Epsilon > 0, "adam.epsilon = %v", c.Adam.Epsilon)
	check(c.Density.RefineEvery > 0, "density.refine_every = %d", c.Density.RefineEvery)
	check(c.Density.ResetAlphaEvery > 0, "density.reset_alpha_every = %d", c.Density.ResetAlphaEvery)
	check(c.Density.SplitSamples >= 1, "density.split_samples = %d", c.Density.SplitSamples)
	check(c.Density.SplitScaleFactor > 0, "density.split_scale_factor = %v", c.Density.SplitScaleFactor)
	check(c.Density.CullAlphaThresh > 0 && c.Density.CullAlphaThresh < 0.5,
		"density.cull_alpha_thresh = %v", c.Density.CullAlphaThresh)
	check(c.Render.GlobalScale > 0, "render.global_scale = %v", c.Render.GlobalScale)
	check(c.Render.ZNear > 0 && c.Render.ZFar > c.Render.ZNear, "render.z_near = %v, z_far = %v", c.Render.ZNear, c.Render.ZFar)
	check(c.Init.Opacity > 0 && c.Init.Opacity < 1, "init.opacity = %v", c.Init.Opacity)
	check(c.Init.KNNNeighbors > 0, "init.knn_neighbors = %d", c.Init.KNNNeighbors)
	return errors.Join(errs...)
}

// stopSplitAt returns the last step at which densification may run.
func (c Config) stopSplitAt() int {
	if c.Density.StopSplitAt > 0 {
		return c.Density.StopSplitAt
	}
	return c.Train.MaxSteps / 2
}

// DownscaleFactor returns the image downscale used at step:
// 2^max(numDownscales - step/resolutionSchedule, 0).
func (c Config) DownscaleFactor(step int) int {
	return 1 << max(c.Train.NumDownscales-step/c.Train.ResolutionSchedule, 0)
}

// ActiveSHDegree returns the number of SH bands evaluated at step.
func (c Config) ActiveSHDegree(step int) int {
	return min(step/c.SH.DegreeInterval, c.SH.Degree)
}

func (c Config) background() geom.Vec3 {
	b := c.Train.Background
	return geom.V3(b[0], b[1], b[2])
}
