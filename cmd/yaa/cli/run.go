package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/run"
)

// foregroundExecutor executes a run before Submit returns.
type foregroundExecutor struct {
	runner *run.Runner
}

func (e foregroundExecutor) Submit(ctx context.Context, runID string) error {
	return e.runner.Execute(ctx, runID)
}

func newRunCmd() *cobra.Command {
	var (
		params     run.CreateParams
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the content pipeline once in the foreground",
		Long: `Create a run and execute it in this process, printing the final state.
The run is stored like any other and shows up in the API and dashboard.`,
		Example: `  yaa run --channel demo --topic "cold brew at home" --dry-run
  yaa run --channel demo --topic "latte art" --brand "Bean There" --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, params, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&params.ChannelID, "channel", "", "Channel ID (required)")
	cmd.Flags().StringVar(&params.Topic, "topic", "", "Video topic (required)")
	cmd.Flags().StringVar(&params.BrandName, "brand", "", "Brand name to research when the channel has no brand guide")
	cmd.Flags().BoolVar(&params.DryRun, "dry-run", false, "Skip publishing")
	cmd.Flags().BoolVar(&params.SkipMediaEdit, "skip-media-edit", false, "Skip media editing")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run as JSON")
	cmd.MarkFlagRequired("channel")
	cmd.MarkFlagRequired("topic")

	return cmd
}

func runOnce(cmd *cobra.Command, params run.CreateParams, jsonOutput bool) error {
	a, err := openApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := run.NewService(a.store, a.channels, foregroundExecutor{runner: a.newRunner()}, a.logger)
	created, err := svc.CreateRun(ctx, params)
	if err != nil {
		return err
	}
	// The run was executed by Submit; reload to see its final state.
	r, err := svc.GetRun(context.Background(), created.ID)
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := printJSON(os.Stdout, r); err != nil {
			return err
		}
	} else {
		printRun(r)
	}
	if r.Status != model.RunCompleted {
		return fmt.Errorf("run %s %s", r.ID, r.Status)
	}
	return nil
}

func printRun(r *model.PipelineRun) {
	fmt.Printf("Run:      %s\n", r.ID)
	fmt.Printf("Channel:  %s\n", r.ChannelID)
	fmt.Printf("Topic:    %s\n", r.Topic)
	fmt.Printf("Status:   %s\n", r.Status)
	if d, ok := r.Duration(); ok {
		fmt.Printf("Duration: %s\n", d.Round(time.Millisecond))
	}
	for _, e := range r.Errors {
		fmt.Printf("Error:    %s\n", e)
	}
	if cs, ok := r.Result["content_status"].(string); ok {
		fmt.Printf("Content:  %s\n", cs)
	}
}
