package cli

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	dataDir    string
	logLevel   string
	appVersion string // set in Execute, reported by serve and the MCP server
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "yaa",
		Short: "Orchestrate AI agents that produce YouTube content",
		Long: `yaa runs the YouTube content pipeline: brand research, script writing,
SEO optimization, media generation, media editing and publishing.

Runs are started over the HTTP API, the MCP server or 'yaa run', persisted in
a SQL store and executed in-process or by 'yaa worker' processes fed through
NATS JetStream.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./yaa.yaml or ~/.yaa/yaa.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "base directory for the database, channels and output")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newChannelCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}
