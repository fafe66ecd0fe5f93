// Command heatload generates supervised synthetic CPU, memory and graphics
// load.
//
// Usage:
//
//	heatload presets [-file presets.yaml]
//	heatload run [-preset warm] [-units 4 -intensity 0.5 -memory-mib 512 -graphics 20 -duration 300]
//	heatload serve [-addr :8080] [-file presets.yaml]
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"

	"github.com/utkarsh5026/heatload/config"
	"github.com/utkarsh5026/heatload/logging"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "presets":
		err = runPresets(args)
	case "run":
		err = runSession(args)
	case "serve":
		err = runServe(args)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		red.Fprintf(os.Stderr, "heatload: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: heatload <command> [flags]

commands:
  presets   list the available presets
  run       run one session in the foreground
  serve     serve the HTTP control surface

run "heatload <command> -h" for command flags`)
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	file     string
	logLevel string
	logJSON  bool
	noColor  bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.file, "file", "", "YAML preset file (presets and tuning)")
	fs.StringVar(&c.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.BoolVar(&c.logJSON, "log-json", false, "log as JSON")
	fs.BoolVar(&c.noColor, "plain", false, "disable colors")
}

func (c *commonFlags) logger() *slog.Logger {
	if c.noColor {
		color.NoColor = true
	}
	return logging.New(os.Stderr, logging.Options{
		Level:   logging.ParseLevel(c.logLevel),
		JSON:    c.logJSON,
		NoColor: c.noColor || color.NoColor,
	})
}

// load returns the built-in presets merged with the preset file, and the
// file's tuning or the defaults.
func (c *commonFlags) load() ([]config.Preset, config.Tuning, error) {
	presets := config.BuiltinPresets()
	if c.file == "" {
		return presets, config.DefaultTuning(), nil
	}
	f, err := config.LoadFile(c.file)
	if err != nil {
		return nil, config.Tuning{}, err
	}
	return config.Merge(presets, f.Presets), f.Tuning, nil
}
