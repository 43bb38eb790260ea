package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/tabwriter"

	"github.com/JonMunkholm/nfe-panel/internal/core"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// errIngestFailures is returned under --strict when any file was rejected.
var errIngestFailures = errors.New("one or more files were rejected")

type ingestOptions struct {
	output string
	strict bool
	jobs   int
}

// Failure describes a rejected file.
type Failure struct {
	File    string `json:"file" yaml:"file"`
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
	Error   string `json:"error" yaml:"error"`

	err error
}

// Report is what ingest prints.
type Report struct {
	Entries  []core.Record    `json:"entries" yaml:"entries"`
	Stats    core.LedgerStats `json:"stats" yaml:"stats"`
	Failures []Failure        `json:"failures" yaml:"failures"`
}

func newIngestCmd() *cobra.Command {
	opts := ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "Parse XML files and print the resulting panel entries",
		Long: `Parse every given file, and every *.xml file under given directories,
then insert the records into a fresh ledger in the order found.

Rejected files (malformed XML, invalid value, duplicate invoice number)
are listed with the same message the panel shows.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case formatTable, formatJSON, formatYAML:
			default:
				return fmt.Errorf("unknown output format %q (want table, json or yaml)", opts.output)
			}

			uploadCfg, err := loadUploadConfig()
			if err != nil {
				return err
			}

			files, failures := collectFiles(args)
			report, err := ingestFiles(cmd.Context(), files, uploadCfg.MaxFileSize, opts.jobs, core.NewLedger())
			if err != nil {
				return err
			}
			report.Failures = append(failures, report.Failures...)

			if err := writeReport(cmd.OutOrStdout(), opts.output, report); err != nil {
				return err
			}
			if opts.strict && len(report.Failures) > 0 {
				return fmt.Errorf("%w: %d of %d", errIngestFailures,
					len(report.Failures), len(files)+len(failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", formatTable, "output format: table, json or yaml")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit with status 1 if any file is rejected")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", runtime.NumCPU(), "files parsed in parallel")
	return cmd
}

// collectFiles expands args into files. Directories contribute their *.xml
// files in lexical order. Paths that cannot be read become failures.
func collectFiles(args []string) ([]string, []Failure) {
	var (
		files    []string
		failures []Failure
	)

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			failures = append(failures, newFailure(arg, fmt.Errorf("%w: %v", core.ErrNoFile, err)))
			continue
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				failures = append(failures, newFailure(path, err))
				return nil
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".xml") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			failures = append(failures, newFailure(arg, err))
		}
	}

	return files, failures
}

// parsed is the outcome of reading and parsing one file.
type parsed struct {
	rec core.Record
	err error
}

// ingestFiles parses files concurrently, then inserts them into ledger in
// the order given so duplicates resolve the same way on every run.
func ingestFiles(ctx context.Context, files []string, maxSize int64, jobs int, ledger *core.Ledger) (Report, error) {
	if jobs <= 0 {
		jobs = 1
	}

	results := make([]parsed, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := parseFile(path, maxSize)
			results[i] = parsed{rec: rec, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	var report Report
	for i, path := range files {
		res := results[i]
		if res.err == nil {
			_, res.err = ledger.Insert(res.rec)
		}
		if res.err != nil {
			slog.Debug("file rejected", "file", path, "error", res.err)
			report.Failures = append(report.Failures, newFailure(path, res.err))
			continue
		}
		slog.Debug("file accepted", "file", path, "invoice", res.rec.InvoiceNumber)
	}

	report.Entries = ledger.Snapshot()
	report.Stats = ledger.Stats()
	return report, nil
}

// parseFile reads one document, enforcing maxSize when positive.
func parseFile(path string, maxSize int64) (core.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.Record{}, fmt.Errorf("%w: %v", core.ErrNoFile, err)
	}
	defer f.Close()

	var r io.Reader = f
	if maxSize > 0 {
		r = io.LimitReader(f, maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Record{}, fmt.Errorf("read %s: %w", path, err)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return core.Record{}, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize)
	}
	if len(data) == 0 {
		return core.Record{}, core.ErrEmptyFile
	}

	return core.Parse(data)
}

func newFailure(path string, err error) Failure {
	msg := core.MapError(err)
	return Failure{
		File:    path,
		Code:    msg.Code,
		Message: msg.Message,
		Error:   err.Error(),
		err:     err,
	}
}

// writeReport prints report in the requested format. Table output lists the
// entries newest first, followed by the rejected files.
func writeReport(w io.Writer, format string, report Report) error {
	if report.Entries == nil {
		report.Entries = []core.Record{}
	}
	if report.Failures == nil {
		report.Failures = []Failure{}
	}

	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)

	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()

	default:
		return writeTable(w, report)
	}
}

func writeTable(w io.Writer, report Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "FORNECEDOR\tNF-E\tVALOR\tDATA DE SAÍDA\tRECEBIDO ÀS")
	for _, rec := range report.Entries {
		fmt.Fprintf(tw, "%s\t%s\tR$ %s\t%s\t%s\n",
			rec.Supplier, rec.InvoiceNumber, rec.Value, rec.IssueDate, rec.ReceivedAt)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d NF-e, total R$ %s\n", report.Stats.Count, report.Stats.Total)

	if len(report.Failures) > 0 {
		fmt.Fprintf(w, "\n%d arquivo(s) rejeitado(s):\n", len(report.Failures))
		for _, f := range report.Failures {
			fmt.Fprintf(w, "  %s: %s\n", f.File, core.FormatUserError(f.err))
		}
	}
	return nil
}
