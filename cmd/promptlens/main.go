package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bizmatters/promptlens/internal/analysis"
	"github.com/bizmatters/promptlens/internal/config"
	"github.com/bizmatters/promptlens/internal/metrics"
	"github.com/bizmatters/promptlens/internal/presenter"
	"github.com/bizmatters/promptlens/internal/reverseapi"
	"github.com/bizmatters/promptlens/internal/telemetry"
	"github.com/bizmatters/promptlens/internal/tui"
)

// clipboardTarget receives --copy and ctrl+y output.
var clipboardTarget presenter.Clipboard = presenter.SystemClipboard{}

type options struct {
	baseURL string
	timeout time.Duration
	logFile string

	cfg      *config.Config
	shutdown func(context.Context) error
	logOut   io.Closer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "promptlens",
		Short:         "Infer the prompt that likely produced an LLM output",
		Long:          "Paste an LLM output and promptlens asks the reverse engineering service which prompt most likely produced it.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.teardown(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd, opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "Reverse engineering service URL (default $PROMPTLENS_API_BASE_URL or "+config.DefaultAPIBaseURL+")")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "Per-request timeout (default $PROMPTLENS_API_TIMEOUT_MS or 20s)")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Write logs, traces and metrics to this file")

	rootCmd.AddCommand(newAnalyzeCmd(opts), newHealthCmd(opts))
	return rootCmd
}

// setup loads configuration, applies flag overrides and routes diagnostics to
// --log-file. Without it, diagnostics are discarded so they never interleave
// with command output.
func (o *options) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("base-url") {
		cfg.API.BaseURL = o.baseURL
	}
	if cmd.Flags().Changed("timeout") {
		if o.timeout <= 0 {
			return fmt.Errorf("--timeout must be positive")
		}
		cfg.API.Timeout = o.timeout
	}
	o.cfg = cfg

	if o.logFile == "" {
		log.SetOutput(io.Discard)
		return nil
	}

	f, err := tea.LogToFile(o.logFile, "promptlens")
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	o.logOut = f

	shutdown, err := telemetry.Setup(f, telemetry.DefaultMetricInterval)
	if err != nil {
		return err
	}
	o.shutdown = shutdown
	return nil
}

func (o *options) teardown(ctx context.Context) error {
	if o.shutdown != nil {
		if err := o.shutdown(ctx); err != nil {
			log.Printf("Failed to flush telemetry: %v", err)
		}
	}
	if o.logOut != nil {
		return o.logOut.Close()
	}
	return nil
}

// newController builds a controller for surface, recording analysis metrics.
func (o *options) newController(surface string, controllerOpts ...analysis.Option) (*analysis.Controller, *reverseapi.Client, error) {
	client := reverseapi.NewClient(o.cfg.API)

	recorder, err := metrics.NewAnalysisMetrics()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize analysis metrics: %w", err)
	}

	controllerOpts = append(controllerOpts, analysis.WithRecorder(recorder, surface))
	return analysis.NewController(client, controllerOpts...), client, nil
}

func runConsole(cmd *cobra.Command, opts *options) error {
	controller, client, err := opts.newController(tui.MetricsSurface)
	if err != nil {
		return err
	}

	model := tui.New(cmd.Context(), tui.Config{
		Controller: controller,
		Health:     client,
		Clipboard:  clipboardTarget,
		BaseURL:    client.BaseURL(),
	})

	program := tea.NewProgram(model,
		tea.WithContext(cmd.Context()),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("console exited: %w", err)
	}
	return nil
}
