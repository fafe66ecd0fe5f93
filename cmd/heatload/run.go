package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"

	"github.com/utkarsh5026/heatload/config"
	"github.com/utkarsh5026/heatload/gfx"
	"github.com/utkarsh5026/heatload/session"
)

type runFlags struct {
	commonFlags
	preset    string
	units     int
	intensity float64
	memoryMiB int64
	graphics  int
	duration  int
	affinity  bool
	noGPU     bool
	ci        bool
}

func (r *runFlags) register(fs *flag.FlagSet) {
	r.commonFlags.register(fs)
	fs.StringVar(&r.preset, "preset", "", "start from a named preset; explicit flags override its fields")
	fs.IntVar(&r.units, "units", 1, "compute units")
	fs.Float64Var(&r.intensity, "intensity", 0.5, "compute intensity in [0,1]")
	fs.Int64Var(&r.memoryMiB, "memory-mib", 0, "memory pressure target in MiB")
	fs.IntVar(&r.graphics, "graphics", 0, "graphics intensity in [0,100]")
	fs.IntVar(&r.duration, "duration", 60, "session length in seconds")
	fs.BoolVar(&r.affinity, "affinity", false, "pin compute units to cores")
	fs.BoolVar(&r.noGPU, "no-graphics-device", false, "run as if no graphics device were present")
	fs.BoolVar(&r.ci, "ci", false, "disable the progress bar")
}

// resolveConfig starts from the named preset, if any, and applies every
// flag that was set explicitly.
func resolveConfig(fs *flag.FlagSet, r *runFlags, presets []config.Preset) (config.Config, error) {
	cfg := config.Config{
		UnitCount:         r.units,
		Intensity:         r.intensity,
		MemoryTargetBytes: r.memoryMiB * config.MiB,
		GraphicsIntensity: r.graphics,
		DurationSeconds:   r.duration,
	}
	if r.preset == "" {
		return cfg, cfg.Validate()
	}

	p, err := config.Lookup(presets, r.preset)
	if err != nil {
		return config.Config{}, err
	}
	out := p.Config
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "units":
			out.UnitCount = cfg.UnitCount
		case "intensity":
			out.Intensity = cfg.Intensity
		case "memory-mib":
			out.MemoryTargetBytes = cfg.MemoryTargetBytes
		case "graphics":
			out.GraphicsIntensity = cfg.GraphicsIntensity
		case "duration":
			out.DurationSeconds = cfg.DurationSeconds
		}
	})
	return out, out.Validate()
}

func runSession(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var r runFlags
	r.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := r.logger()
	presets, tuning, err := r.load()
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(fs, &r, presets)
	if err != nil {
		return err
	}

	opts := []session.Option{
		session.WithTuning(tuning),
		session.WithLogger(logger),
		session.WithAffinity(r.affinity),
	}
	if r.noGPU {
		opts = append(opts, session.WithDevice(gfx.Unavailable{}))
	}
	ctrl, err := session.New(opts...)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printConfig(cfg)
	if err := ctrl.Start(cfg); err != nil {
		printFlags(ctrl.Snapshot())
		return err
	}

	final := watch(ctx, ctrl, cfg, tuning.TimerInterval, r.ci)
	printSummary(final)
	return nil
}

// watch follows the session until it stops on its own or ctx is
// cancelled, and returns the last snapshot.
func watch(ctx context.Context, ctrl *session.Controller, cfg config.Config, every time.Duration, ci bool) session.Snapshot {
	var bar *progressbar.ProgressBar
	if !ci {
		bar = progressbar.NewOptions(cfg.DurationSeconds,
			progressbar.OptionSetDescription("Heating"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "│",
				BarEnd:        "│",
			}),
		)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	seen := map[string]bool{}
	for {
		select {
		case <-ctx.Done():
			_ = ctrl.Stop()
			if bar != nil {
				_ = bar.Finish()
			}
			fmt.Println()
			yellow.Println("interrupted, session stopped")
			return ctrl.Snapshot()
		case <-ticker.C:
		}

		snap := ctrl.Snapshot()
		if bar != nil {
			desc := fmt.Sprintf("Heating %5.1f%% cpu", snap.CPUBusy*100)
			if snap.MemoryChunks > 0 {
				desc += fmt.Sprintf(" %s in %d buffers", formatBytes(snap.MemoryBytes), snap.MemoryChunks)
			}
			bar.Describe(desc)
			_ = bar.Set(int(snap.ElapsedSeconds))
		}
		for _, f := range snap.Flags {
			if !seen[f] {
				seen[f] = true
				fmt.Println()
				yellow.Printf("flag: %s\n", f)
			}
		}
		if snap.State == session.Idle {
			if bar != nil {
				_ = bar.Finish()
			}
			fmt.Println()
			return snap
		}
	}
}

func printConfig(cfg config.Config) {
	bold.Println("Session")
	fmt.Printf("  Units:      %d\n", cfg.UnitCount)
	fmt.Printf("  Intensity:  %.0f%%\n", cfg.Intensity*100)
	fmt.Printf("  Memory:     %s\n", formatBytes(cfg.MemoryTargetBytes))
	fmt.Printf("  Graphics:   %d\n", cfg.GraphicsIntensity)
	fmt.Printf("  Duration:   %s\n", cfg.Duration())
	fmt.Println()
}

func printFlags(snap session.Snapshot) {
	if snap.Warning != "" {
		yellow.Printf("warning: %s\n", snap.Warning)
	}
	for _, f := range snap.Flags {
		yellow.Printf("flag: %s\n", f)
	}
}

func printSummary(snap session.Snapshot) {
	bold.Println("Summary")
	fmt.Println()

	var peak float64
	for _, v := range snap.Chart {
		peak = max(peak, v)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	table.Append("Session", snap.ID)
	table.Append("Elapsed", (time.Duration(snap.ElapsedSeconds * float64(time.Second))).Round(time.Second).String())
	table.Append("Last throughput", fmt.Sprintf("%.0f it/s", snap.Throughput))
	table.Append("Peak throughput", fmt.Sprintf("%.0f it/s", peak))
	table.Append("CPU busy", fmt.Sprintf("%.1f%%", snap.CPUBusy*100))
	table.Append("Samples", fmt.Sprintf("%d", len(snap.Chart)))
	table.Append("Stall trips", fmt.Sprintf("%d", snap.Counters.StallTrips))
	table.Append("Auto stops", fmt.Sprintf("%d", snap.Counters.AutoStops))
	table.Render()
	fmt.Println()

	if len(snap.Flags) == 0 && snap.Warning == "" {
		green.Println("no flags raised")
		return
	}
	printFlags(snap)
}
