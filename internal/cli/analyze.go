package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"datapulse/internal/app"
	"datapulse/internal/credits"
	"datapulse/internal/exporter"
	"datapulse/internal/grading"
	"datapulse/internal/infrastructure"
	"datapulse/internal/ingest"
	"datapulse/internal/session"
	"datapulse/internal/validation"
)

type analyzeFlags struct {
	credits    string
	cumulative string
	semesters  []int
	department string
	out        string
	format     string
}

func newAnalyzeCmd() *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze [flags] files...",
		Short: "Compute SGPA (and optionally CGPA) from result spreadsheets",
		Long: `Analyze reads up to ten .xls/.xlsx result exports, applies the credit
assignment and prints or writes the performance report.

The credit file is YAML or JSON: either a document with "capabilities" and
"credits", or a bare list of {subject_code, credit_value, ...} entries.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, f, args)
		},
	}

	cmd.Flags().StringVar(&f.credits, "credits", "", "Credit assignment for the current semester (required)")
	cmd.Flags().StringVar(&f.cumulative, "cumulative", "", "Credit assignment covering every semester; enables CGPA")
	cmd.Flags().IntSliceVar(&f.semesters, "semester", nil, "Current semester(s) (default: the latest semester in the files)")
	cmd.Flags().StringVar(&f.department, "department", "", "Restrict the report to one department code")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Write the report to a .csv, .xlsx or .json file instead of stdout")
	cmd.Flags().StringVarP(&f.format, "format", "f", "json", "Stdout format: json or csv")
	_ = cmd.MarkFlagRequired("credits")

	return cmd
}

func runAnalyze(cmd *cobra.Command, f analyzeFlags, files []string) error {
	ctx := infrastructure.EnsureTraceID(cmd.Context())

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog, err := commandLogger(cmd, cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	opts, err := app.SessionOptions(cfg)
	if err != nil {
		return err
	}

	fv := validation.NewFileValidator(logger)
	sources := make([]ingest.Source, 0, len(files))
	for _, path := range files {
		if err := fv.ValidateFile(path); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		sources = append(sources, ingest.Source{Name: filepath.Base(path), Data: data})
	}

	sess := session.New("cli", opts, nil, logger)

	res, err := sess.Ingest(ctx, sources)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "results loaded",
		slog.Int("files", res.Files),
		slog.Int("records", res.Records),
		slog.Int("departments", len(res.Departments)))

	current, err := loadCreditSet(f.credits)
	if err != nil {
		return err
	}
	if err := sess.SetCurrentCredits(ctx, current, f.semesters); err != nil {
		return err
	}
	if _, err := sess.ComputeCurrent(ctx, nil); err != nil {
		return err
	}

	if f.cumulative != "" {
		cumulative, err := loadCreditSet(f.cumulative)
		if err != nil {
			return err
		}
		if err := sess.SetCumulativeCredits(ctx, cumulative); err != nil {
			return err
		}
		if _, err := sess.ComputeCumulative(ctx); err != nil {
			return err
		}
	}

	rep, err := sess.Report(ctx, f.department)
	if err != nil {
		return err
	}

	writer := exporter.NewWriter(logger)
	if f.out == "" {
		format, err := exporter.ParseFormat(f.format)
		if err != nil {
			return err
		}
		return writer.Write(ctx, cmd.OutOrStdout(), format, rep)
	}

	format, err := exporter.FormatFromPath(f.out)
	if err != nil {
		return err
	}
	if err := fv.ValidateOutputDirectory(filepath.Dir(f.out)); err != nil {
		return err
	}
	if err := writer.WriteFile(ctx, f.out, format, rep); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "report written to %s (%d students, phase %s)\n", f.out, len(rep.Students), rep.Phase)
	return nil
}

func loadCreditSet(path string) (grading.CreditSet, error) {
	file, err := credits.LoadFile(path)
	if err != nil {
		return grading.CreditSet{}, err
	}
	return grading.CreditSet{Entries: file.Credits, Capabilities: file.Capabilities}, nil
}
