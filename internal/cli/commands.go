package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raptor-audit/cairo-parser/internal/config"
	"github.com/raptor-audit/cairo-parser/internal/engine"
	"github.com/raptor-audit/cairo-parser/internal/report"
	"github.com/raptor-audit/cairo-parser/internal/tui"
)

func AddCommands(root *cobra.Command) {
	root.AddCommand(newParseCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())
}

func newParseCmd() *cobra.Command {
	var (
		format         string
		outputFile     string
		noStub         bool
		includeTests   bool
		stubReport     bool
		analyze        bool
		analysisOut    string
		analysisFormat string
		maxPaths       int
		showWarnings   bool
		noCache        bool
		useTUI         bool
		quiet          bool
	)
	cmd := &cobra.Command{
		Use:   "parse [paths...]",
		Short: "Parse Cairo contracts with dependency stubbing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, _, err := config.Load(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cmd.Flags().Changed("no-stub") {
				opts.StubMissing = !noStub
			}
			if cmd.Flags().Changed("include-tests") {
				opts.ExcludeTests = !includeTests
			}
			if cmd.Flags().Changed("analyze") {
				opts.Analyze = analyze
			}
			if cmd.Flags().Changed("max-paths") {
				opts.MaxPaths = maxPaths
			}
			if cmd.Flags().Changed("no-cache") {
				opts.Cache = !noCache
			}
			if cmd.Flags().Changed("format") {
				opts.Format = format
			}
			if analysisOut != "" {
				opts.Analyze = true
			}

			eng := engine.New(opts)
			if !quiet {
				eng.Progress = cmd.ErrOrStderr()
			}
			out, err := eng.Run(cmd.Context(), args)
			if err != nil {
				return err
			}

			if useTUI {
				if err := tui.Run(out.Result, out.Analysis); err != nil {
					return err
				}
				return exitStatus(out)
			}

			var rendered []byte
			switch opts.Format {
			case "json":
				rendered, err = report.ToJSON(out.Result, out.Analysis, out.Summary)
			case "yaml", "yml":
				rendered, err = report.ToYAML(out.Result, out.Analysis, out.Summary)
			case "summary", "":
				text := report.Summary(out.Result, stubReport)
				if showWarnings && out.Analysis != nil {
					text += "\nAnalysis Warnings\n"
					text += report.WarningsText(out.Analysis)
					text += "\n" + report.SummaryStatsText(out.Summary)
				}
				rendered = []byte(text)
			default:
				return fmt.Errorf("unknown format: %s", opts.Format)
			}
			if err != nil {
				return err
			}

			if outputFile != "" {
				if err := os.WriteFile(outputFile, rendered, 0o644); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), string(rendered))
			}

			if analysisOut != "" && out.Analysis != nil {
				data, err := report.AnalysisOnly(out.Analysis, out.Summary, analysisFormat)
				if err != nil {
					return err
				}
				if err := os.WriteFile(analysisOut, data, 0o644); err != nil {
					return err
				}
			}
			return exitStatus(out)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "summary", "Output format: summary|json|yaml")
	cmd.Flags().StringVarP(&outputFile, "out", "o", "", "Write report to file")
	cmd.Flags().BoolVar(&noStub, "no-stub", false, "Fail on missing imports instead of creating stubs")
	cmd.Flags().BoolVar(&includeTests, "include-tests", false, "Scan test files too")
	cmd.Flags().BoolVar(&stubReport, "stub-report", false, "Include the stub report section in summary output")
	cmd.Flags().BoolVar(&analyze, "analyze", false, "Run control flow and dataflow analysis")
	cmd.Flags().StringVar(&analysisOut, "analysis-out", "", "Write analysis results to a separate file")
	cmd.Flags().StringVar(&analysisFormat, "analysis-format", "json", "Analysis output format: json|yaml")
	cmd.Flags().IntVar(&maxPaths, "max-paths", 100, "CFG path enumeration cap")
	cmd.Flags().BoolVar(&showWarnings, "show-warnings", false, "Display analysis warnings in summary output")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the parse cache")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Render interactive result browser")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	return cmd
}

// exitStatus converts run-level failures into a non-zero exit: unresolved
// imports with stubbing disabled, or any unreadable file.
func exitStatus(out *engine.Output) error {
	if out.Result.Failed() {
		if len(out.Result.IOErrors) > 0 {
			return fmt.Errorf("%d file(s) could not be read", len(out.Result.IOErrors))
		}
		return fmt.Errorf("unresolved imports remain and stubbing is disabled")
	}
	return nil
}
