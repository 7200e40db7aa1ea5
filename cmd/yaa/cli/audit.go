package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the API audit log",
	}
	cmd.AddCommand(newAuditListCmd())
	return cmd
}

func newAuditListCmd() *cobra.Command {
	var (
		f          model.AuditFilter
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List audit log entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Limit < 1 || f.Limit > 1000 {
				return fmt.Errorf("--limit must be between 1 and 1000")
			}
			f.Method = strings.ToUpper(f.Method)
			return runAuditList(cmd, f, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&f.Limit, "limit", 50, "Maximum number of entries")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "Entries to skip")
	cmd.Flags().StringVar(&f.APIKeyID, "key", "", "Only entries for this API key ID")
	cmd.Flags().StringVar(&f.Method, "method", "", "Only entries with this HTTP method")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAuditList(cmd *cobra.Command, f model.AuditFilter, jsonOutput bool) error {
	a, err := openApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	logs, total, err := a.store.ListAuditLogs(context.Background(), f)
	if err != nil {
		return fmt.Errorf("list audit logs: %w", err)
	}

	if jsonOutput {
		return printJSON(os.Stdout, model.ListResponse[model.AuditLog]{
			Items: logs, Total: total, Limit: f.Limit, Offset: f.Offset,
		})
	}

	fmt.Printf("%-20s %-7s %-40s %-6s %-10s %s\n", "TIME", "METHOD", "PATH", "STATUS", "MS", "KEY")
	for _, l := range logs {
		key := "-"
		if l.APIKeyID != nil {
			key = *l.APIKeyID
		}
		fmt.Printf("%-20s %-7s %-40s %-6d %-10.1f %s\n",
			l.CreatedAt.Format("2006-01-02 15:04:05"), l.Method, l.Path, l.StatusCode, l.DurationMs, key)
	}
	fmt.Printf("\n%d of %d entries\n", len(logs), total)
	return nil
}
