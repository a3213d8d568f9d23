// Command incidentreport renders a human-readable markdown report from an
// on-disk incident bundle produced by the flight recorder.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mercurystream/processor/internal/incident"
)

func main() {
	dir := flag.String("dir", "", "path to an incident bundle directory (required)")
	out := flag.String("out", "", "write markdown to this path instead of stdout")
	flag.Parse()

	if strings.TrimSpace(*dir) == "" {
		fmt.Fprintln(os.Stderr, "-dir is required")
		os.Exit(1)
	}

	report, err := incident.BuildReport(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	markdown := report.RenderMarkdown()

	if strings.TrimSpace(*out) == "" {
		fmt.Print(markdown)
		return
	}

	if parent := filepath.Dir(*out); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, "failed to create output directory:", err)
			os.Exit(3)
		}
	}
	if err := os.WriteFile(*out, []byte(markdown), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "failed to write report:", err)
		os.Exit(3)
	}
}
