/*
main.go - One-shot pipeline run

PURPOSE:
  Runs the pipeline once over a directory of archives and writes the
  resulting snapshot to stdout (or -out) without starting a server.

COMMAND-LINE FLAGS:
  -dir        Source directory (default: pipeline.data_dir from config)
  -config     YAML configuration file (optional)
  -reference  Reference tables file (overrides config)
  -format     json | csv | xlsx (default: json)
  -out        Output file (default: stdout)
  -persist    Also save the snapshot to the configured store

EXIT CODES:
  0  Success
  1  Any other failure
  2  No archives found in the source directory

EXAMPLES:
  ./insights -dir ./data
  ./insights -dir ./data -format xlsx -out insights.xlsx
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/insights-engine/config"
	"github.com/warp/insights-engine/export"
	"github.com/warp/insights-engine/factory"
	"github.com/warp/insights-engine/insights"
	"github.com/warp/insights-engine/logging"
	"github.com/warp/insights-engine/store"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitNoData  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("insights", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", "", "source directory of zip archives")
	configPath := fs.String("config", "", "YAML configuration file")
	refPath := fs.String("reference", "", "reference tables file")
	format := fs.String("format", "json", "output format: json, csv or xlsx")
	outPath := fs.String("out", "", "output file (default stdout)")
	persist := fs.Bool("persist", false, "save the snapshot to the configured store")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "insights: %v\n", err)
		return exitFailure
	}
	if *dir == "" {
		*dir = cfg.Pipeline.DataDir
	}
	if *refPath == "" {
		*refPath = cfg.Reference.File
	}

	// Logs go to stderr so stdout carries only the snapshot.
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{
		Level: logging.ParseLevel(cfg.Logging.Level),
	}))

	ref, err := factory.NewReferenceFactory().LoadFile(*refPath)
	if err != nil {
		fmt.Fprintf(stderr, "insights: %v\n", err)
		return exitFailure
	}

	opts := insights.Options{
		Detect: insights.DetectOptions{Sigma: cfg.Pipeline.Sigma, Limit: cfg.Pipeline.AnomalyTopN},
		Logger: logger,
	}
	if *persist {
		snapshots, closer, err := store.Open(cfg.Store)
		if err != nil {
			fmt.Fprintf(stderr, "insights: %v\n", err)
			return exitFailure
		}
		defer closer.Close()
		opts.Store = snapshots
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Pipeline.RunTimeout)
	defer cancel()

	pipeline := insights.New(insights.NewLoader(insights.NewNormalizer(ref), logger), opts)
	if _, err := pipeline.Trigger(ctx, *dir); err != nil {
		fmt.Fprintf(stderr, "insights: %v\n", err)
		if errors.Is(err, insights.ErrNoDataFound) {
			return exitNoData
		}
		return exitFailure
	}
	snap, last, _ := pipeline.Latest()

	out := stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(stderr, "insights: %v\n", err)
			return exitFailure
		}
		defer f.Close()
		out = f
	}

	if err := write(out, *format, *snap, last); err != nil {
		fmt.Fprintf(stderr, "insights: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func write(w io.Writer, format string, snap insights.Snapshot, run *insights.Run) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case "csv":
		return export.WriteCSV(w, snap)
	case "xlsx":
		return export.WriteXLSX(w, snap, run)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
