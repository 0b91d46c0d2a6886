package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bizmatters/promptlens/internal/analysis"
	"github.com/bizmatters/promptlens/internal/presenter"
	"github.com/bizmatters/promptlens/internal/reverseapi"
)

const cliSurface = "cli"

var errBlankInput = errors.New("nothing to analyze: input is blank")

func newAnalyzeCmd(opts *options) *cobra.Command {
	var (
		file       string
		raw        bool
		copyPrompt bool
		trace      bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [text...]",
		Short: "Analyze text from arguments, --file or stdin and print the result",
		Example: `  promptlens analyze "1. Gather constraints. 2. Respond in JSON."
  promptlens analyze --file answer.txt --trace
  pbpaste | promptlens analyze --raw`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args, file)
			if err != nil {
				return err
			}

			controller, _, err := opts.newController(cliSurface, analysis.WithOutputText(text))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if !controller.Analyze(ctx) {
				return errBlankInput
			}

			state := controller.Snapshot()
			if state.Error != "" {
				return errors.New(state.Error)
			}

			if err := presenter.WriteText(cmd.OutOrStdout(), state.Result, raw, trace); err != nil {
				return err
			}

			if copyPrompt {
				if err := presenter.CopyPrompt(clipboardTarget, state.Result); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Inferred prompt copied to clipboard.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", `Read the text from a file ("-" for stdin)`)
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the raw JSON response")
	cmd.Flags().BoolVarP(&copyPrompt, "copy", "c", false, "Copy the inferred prompt to the clipboard")
	cmd.Flags().BoolVarP(&trace, "trace", "t", false, "Include the reasoning trace")
	cmd.MarkFlagsMutuallyExclusive("raw", "trace")

	return cmd
}

// readInput returns the text to analyze. Arguments and --file are exclusive; with
// neither, stdin is read.
func readInput(cmd *cobra.Command, args []string, file string) (string, error) {
	if len(args) > 0 {
		if file != "" {
			return "", errors.New("pass the text as arguments or --file, not both")
		}
		return strings.Join(args, " "), nil
	}

	var r io.Reader = cmd.InOrStdin()
	if file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return "", fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the reverse engineering service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := reverseapi.NewClient(opts.cfg.API)

			health, err := client.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s: %s", client.BaseURL(), userMessage(err))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s %s\n", "service:", client.BaseURL())
			fmt.Fprintf(out, "%-12s %s\n", "status:", health.Status)
			fmt.Fprintf(out, "%-12s %s\n", "app:", health.App)
			fmt.Fprintf(out, "%-12s %s\n", "environment:", health.Environment)
			return nil
		},
	}
}

func userMessage(err error) string {
	var apiErr *reverseapi.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return analysis.UnknownErrorMessage
}
