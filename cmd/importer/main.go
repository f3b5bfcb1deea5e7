// Command importer loads CBHPM table files into the catalog from the shell:
//
//	importer -version 2022 tabela.csv tabela.xlsx
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/FACorreiaa/cbhpm-tables/cmd/api"
	importservice "github.com/FACorreiaa/cbhpm-tables/internal/domain/import/service"
	"github.com/FACorreiaa/cbhpm-tables/pkg/config"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("importer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	version := fs.String("version", "", "table version label, e.g. 2022")
	memory := fs.Bool("memory", false, "import into an in-memory catalog (dry run)")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	numberMode := fs.String("number-mode", "", "comma or detect-dot (default from IMPORT_NUMBER_MODE)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: importer -version <label> [flags] file...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}
	if strings.TrimSpace(*version) == "" {
		fmt.Fprintln(stderr, "a -version label is required")
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitFailure
	}
	if *memory {
		cfg.Database.Driver = config.DriverMemory
	}
	if *numberMode != "" {
		cfg.Import.NumberMode = *numberMode
	}
	cfg.Snapshot.Enabled = false

	logger := api.NewLogger(cfg.Log, stderr)
	deps, err := api.InitDependencies(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return exitFailure
	}
	defer deps.Cleanup()

	files, err := readFiles(fs.Args())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}

	report, err := deps.ImportService.ImportFiles(ctx, files, *version)
	if errors.Is(err, importservice.ErrInvalidVersionLabel) {
		fmt.Fprintln(stderr, "a -version label is required")
		return exitUsage
	}
	if err != nil {
		fmt.Fprintf(stderr, "import: %v\n", err)
		return exitFailure
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return exitFailure
		}
	} else {
		printReport(stdout, report)
	}

	if report.Count(importservice.OutcomeReadError)+
		report.Count(importservice.OutcomeMissingColumns)+
		report.Count(importservice.OutcomeStoreError) > 0 {
		return exitFailure
	}
	return exitOK
}

func readFiles(paths []string) ([]importservice.File, error) {
	files := make([]importservice.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		files = append(files, importservice.File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

func printReport(w io.Writer, report *importservice.ImportReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tOUTCOME\tREAD\tINSERTED\tDUPLICATE\tSKIPPED\tMESSAGE")
	for _, f := range report.Files {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			f.Name, f.Outcome, f.RowsRead, f.RowsInserted, f.RowsDuplicate, f.RowsSkipped, f.Message)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nversion %s: %d of %d files processed, %d rows inserted\n",
		report.Version, report.Processed, len(report.Files), report.RowsInserted())
}
