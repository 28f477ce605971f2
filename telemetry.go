package splat

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// StepRecord is one row of steps.csv.
type StepRecord struct {
	Step          int     `csv:"step"`
	Camera        string  `csv:"camera"`
	Downscale     int     `csv:"downscale"`
	Loss          float64 `csv:"loss"`
	L1            float64 `csv:"l1"`
	SSIM          float64 `csv:"ssim"`
	PSNR          float64 `csv:"psnr"`
	Gaussians     int     `csv:"gaussians"`
	Visible       int     `csv:"visible"`
	Intersections int     `csv:"intersections"`
	MeansLR       float64 `csv:"means_lr"`
	ElapsedMS     int64   `csv:"elapsed_ms"`
}

// RefineRecord is one row of refine.csv.
type RefineRecord struct {
	Step          int     `csv:"step"`
	Before        int     `csv:"before"`
	After         int     `csv:"after"`
	Split         int     `csv:"split"`
	Cloned        int     `csv:"cloned"`
	Culled        int     `csv:"culled"`
	OpacityReset  bool    `csv:"opacity_reset"`
	MeanGrad      float64 `csv:"mean_grad"`
	GradP90       float64 `csv:"grad_p90"`
	MaxScreenSize float64 `csv:"max_screen_size"`
}

func newRefineRecord(s RefineStats) RefineRecord {
	return RefineRecord{
		Step:          s.Step,
		Before:        s.Before,
		After:         s.After,
		Split:         s.Split,
		Cloned:        s.Cloned,
		Culled:        s.Culled,
		OpacityReset:  s.OpacityReset,
		MeanGrad:      s.MeanGrad,
		GradP90:       s.GradP90,
		MaxScreenSize: s.MaxScreenSize,
	}
}

// Telemetry writes per-step and per-refinement CSV logs into an output
// directory. A nil *Telemetry discards everything.
type Telemetry struct {
	dir        string
	stepFile   *os.File
	refineFile *os.File

	stepHeaderWritten   bool
	refineHeaderWritten bool
}

// NewTelemetry creates dir and opens steps.csv and refine.csv in it.
// Returns nil if dir is empty (telemetry disabled).
func NewTelemetry(dir string) (*Telemetry, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating telemetry directory: %w", err)
	}
	t := &Telemetry{dir: dir}

	f, err := os.Create(filepath.Join(dir, "steps.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating steps.csv: %w", err)
	}
	t.stepFile = f

	f, err = os.Create(filepath.Join(dir, "refine.csv"))
	if err != nil {
		t.stepFile.Close()
		return nil, fmt.Errorf("creating refine.csv: %w", err)
	}
	t.refineFile = f
	return t, nil
}

// WriteConfig saves the run configuration as config.yaml.
func (t *Telemetry) WriteConfig(cfg Config) error {
	if t == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(t.dir, "config.yaml"))
}

// WriteStep appends a row to steps.csv.
func (t *Telemetry) WriteStep(r StepRecord) error {
	if t == nil {
		return nil
	}
	if err := writeCSV(t.stepFile, []StepRecord{r}, &t.stepHeaderWritten); err != nil {
		return fmt.Errorf("writing step record: %w", err)
	}
	return nil
}

// WriteRefine appends a row to refine.csv.
func (t *Telemetry) WriteRefine(s RefineStats) error {
	if t == nil {
		return nil
	}
	if err := writeCSV(t.refineFile, []RefineRecord{newRefineRecord(s)}, &t.refineHeaderWritten); err != nil {
		return fmt.Errorf("writing refine record: %w", err)
	}
	return nil
}

// writeCSV marshals records with a header on the first call only.
func writeCSV(f *os.File, records any, headerWritten *bool) error {
	if !*headerWritten {
		if err := gocsv.Marshal(records, f); err != nil {
			return err
		}
		*headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, f)
}

// Close flushes and closes both files.
func (t *Telemetry) Close() error {
	if t == nil {
		return nil
	}
	return errors.Join(t.stepFile.Close(), t.refineFile.Close())
}
