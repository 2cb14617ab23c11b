package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/pipeline"
)

// newExtractCmd creates the one-shot 'extract' subcommand. It prints the run
// result as JSON; a timed-out run still prints its partial records.
func newExtractCmd() *cobra.Command {
	var opts pipeline.Options
	cmd := &cobra.Command{
		Use:   "extract <research|courses|events|all> [DEPT]",
		Short: "Runs one extraction and prints the result as JSON",
		Example: `  extractor extract research CSCI
  extractor extract courses MATH --persist
  extractor extract all`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("requires a mode")
			}
			switch args[0] {
			case string(extract.ModeResearch), string(extract.ModeCourses):
				if len(args) != 2 {
					return fmt.Errorf("%s requires a department code", args[0])
				}
			case string(extract.ModeEvents), "all":
				if len(args) != 1 {
					return fmt.Errorf("%s takes no department code", args[0])
				}
			default:
				return fmt.Errorf("unknown mode %q", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p := appInstance.Pipelines()
			out := cmd.OutOrStdout()
			switch args[0] {
			case string(extract.ModeResearch):
				res, runErr := p.Research(ctx, args[1], opts)
				return printResult(out, res, runErr)
			case string(extract.ModeCourses):
				res, runErr := p.Courses(ctx, args[1], opts)
				return printResult(out, res, runErr)
			case string(extract.ModeEvents):
				res, runErr := p.Events(ctx, opts)
				return printResult(out, res, runErr)
			default:
				report := p.All(ctx, opts)
				if err := printJSON(out, report); err != nil {
					return err
				}
				if report.Summary.OverallStatus == pipeline.StatusFailed {
					return errors.New("every extraction failed")
				}
				return nil
			}
		},
	}
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "force browser rendering for every fetch")
	cmd.Flags().BoolVar(&opts.Persist, "persist", false, "upload results, write CSV and publish the upload notice")
	return cmd
}

func printResult[T any](out io.Writer, res pipeline.Result[T], runErr error) error {
	if runErr != nil && !errors.Is(runErr, extract.ErrBatchTimeout) {
		return runErr
	}
	if err := printJSON(out, res); err != nil {
		return err
	}
	if res.PersistErr != nil {
		return fmt.Errorf("persist: %w", res.PersistErr)
	}
	return runErr
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
