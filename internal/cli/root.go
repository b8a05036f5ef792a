// Package cli implements the datapulse command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"datapulse/internal/config"
	apperrors "datapulse/internal/errors"
	"datapulse/internal/infrastructure"
	"datapulse/pkg/contracts"
)

// NewRootCmd builds the top-level command with every subcommand attached
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "datapulse",
		Short:         "Student result analytics",
		Long:          "DataPulse ingests examination result spreadsheets and computes SGPA, CGPA and department reports.",
		Version:       contracts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Config file (default: ./datapulse.yaml or ./configs/datapulse.yaml when present)")
	root.SetVersionTemplate(contracts.GetFullVersionString() + "\n")

	root.AddCommand(newAnalyzeCmd(), newServeCmd())
	return root
}

// Execute runs the root command and prints a failure to stderr
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		PrintError(root.ErrOrStderr(), err)
		return 1
	}
	return 0
}

// PrintError writes err to w, one line per credit problem when the error
// carries a validation list
func PrintError(w io.Writer, err error) {
	var verrs *apperrors.ValidationErrors
	if errors.As(err, &verrs) {
		fmt.Fprintln(w, "error: credit assignment rejected:")
		for _, e := range verrs.Errors {
			line := fmt.Sprintf("  [%s] %s", e.Code, e.Message)
			if len(e.Subjects) > 0 {
				line += fmt.Sprintf(" (%s)", strings.Join(e.Subjects, ", "))
			}
			fmt.Fprintln(w, line)
		}
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, apperrors.NewConfigError("load config", err)
	}
	return cfg, nil
}

// commandLogger sends console logging to the command's stderr so stdout
// stays clean for report output
func commandLogger(cmd *cobra.Command, cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	if cfg.Output == "" || strings.EqualFold(cfg.Output, "stdout") || strings.EqualFold(cfg.Output, "stderr") {
		cfg.Output = "stdout"
	}
	return infrastructure.NewLogger(cfg, cmd.ErrOrStderr())
}
