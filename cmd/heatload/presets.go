package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/utkarsh5026/heatload/config"
)

func runPresets(args []string) error {
	fs := flag.NewFlagSet("presets", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	presets, _, err := common.load()
	if err != nil {
		return err
	}
	presets = config.Merge(nil, presets)

	bold.Println("Presets")
	fmt.Println()

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Name", "Units", "Intensity", "Memory", "Graphics", "Duration", "Description")
	for _, p := range presets {
		c := p.Config
		table.Append(
			p.Name,
			fmt.Sprintf("%d", c.UnitCount),
			fmt.Sprintf("%.0f%%", c.Intensity*100),
			formatBytes(c.MemoryTargetBytes),
			fmt.Sprintf("%d", c.GraphicsIntensity),
			c.Duration().String(),
			p.Description,
		)
	}
	table.Render()
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
