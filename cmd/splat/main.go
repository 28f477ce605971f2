// Command splat trains a Gaussian splatting scene from a nerfstudio project
// and writes it as .ply or .splat.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/gogpu/splat"
	"github.com/gogpu/splat/gpu"
	"github.com/gogpu/splat/internal/scene"
)

type options struct {
	project   string
	config    string
	steps     int
	output    string
	backend   string
	saveEvery int
	telemetry string
	verbose   bool
	keepCRS   bool
	imageMB   int64
}

func main() {
	var o options
	flag.StringVar(&o.project, "project", "", "nerfstudio project directory (contains transforms.json)")
	flag.StringVar(&o.config, "config", "", "YAML config overriding the defaults")
	flag.IntVar(&o.steps, "n", 0, "number of training steps (0 keeps the config value)")
	flag.StringVar(&o.output, "o", "splat.ply", "output file, .ply or .splat")
	flag.StringVar(&o.backend, "backend", "cpu", "execution backend: cpu or gpu")
	flag.IntVar(&o.saveEvery, "save-every", 0, "also save every N steps (0 disables)")
	flag.StringVar(&o.telemetry, "telemetry", "", "directory for CSV training telemetry")
	flag.BoolVar(&o.verbose, "v", false, "log every step")
	flag.BoolVar(&o.keepCRS, "keep-crs", false, "keep the project's coordinate system instead of normalizing")
	flag.Int64Var(&o.imageMB, "image-cache", 0, "MiB of decoded images kept in memory (0 uses the default, -1 is unlimited)")
	flag.Parse()

	if o.project == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(o); err != nil {
		log.Fatalf("splat: %v", err)
	}
}

func run(o options) error {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	splat.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := splat.LoadConfig(o.config)
	if err != nil {
		return err
	}
	if o.steps > 0 {
		cfg.Train.MaxSteps = o.steps
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	save, err := saver(o.output)
	if err != nil {
		return err
	}

	sc, err := scene.LoadNerfstudio(o.project, scene.Options{KeepCRS: o.keepCRS, ImageCacheBytes: o.imageMB << 20})
	if err != nil {
		return err
	}

	backend, err := newBackend(o.backend, cfg.Parallel.Workers)
	if err != nil {
		return err
	}
	defer backend.Close()

	model, err := splat.NewModel(sc, cfg, backend)
	if err != nil {
		return err
	}
	defer model.Close()

	tel, err := splat.NewTelemetry(o.telemetry)
	if err != nil {
		return err
	}
	defer tel.Close()
	if err := tel.WriteConfig(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	trainer := splat.NewTrainer(model, sc, splat.WithTelemetry(tel))
	err = trainer.Run(ctx, func(r splat.StepRecord) error {
		if r.Step%100 == 0 || o.verbose {
			log.Printf("step %d/%d loss=%.4f psnr=%.2f gaussians=%d", r.Step, cfg.Train.MaxSteps, r.Loss, r.PSNR, r.Gaussians)
		}
		if o.saveEvery > 0 && r.Step%o.saveEvery == 0 && r.Step < cfg.Train.MaxSteps {
			return save(model, stepPath(o.output, r.Step), o.keepCRS)
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	if ctx.Err() != nil {
		log.Printf("interrupted, saving current state")
	}
	if err := save(model, o.output, o.keepCRS); err != nil {
		return err
	}
	log.Printf("wrote %d Gaussians to %s", model.NumGaussians(), o.output)
	return nil
}

func newBackend(name string, workers int) (splat.Backend, error) {
	switch name {
	case "cpu":
		return splat.NewCPUBackend(workers), nil
	case "gpu":
		return gpu.New(workers)
	default:
		return nil, fmt.Errorf("unknown backend %q (want cpu or gpu)", name)
	}
}

type saveFunc func(m *splat.Model, path string, keepCRS bool) error

func saver(output string) (saveFunc, error) {
	switch strings.ToLower(filepath.Ext(output)) {
	case ".ply":
		return (*splat.Model).SavePLY, nil
	case ".splat":
		return (*splat.Model).SaveSplat, nil
	default:
		return nil, fmt.Errorf("unsupported output %q (want .ply or .splat)", output)
	}
}

// stepPath inserts the step number before the extension: out.ply -> out_500.ply.
func stepPath(output string, step int) string {
	ext := filepath.Ext(output)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(output, ext), step, ext)
}
