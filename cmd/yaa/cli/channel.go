package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/channel"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

func newChannelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "channel",
		Aliases: []string{"channels"},
		Short:   "Manage channel directories",
		Long:    "List and create the per-channel settings directories that runs are produced for.",
	}

	cmd.AddCommand(newChannelListCmd())
	cmd.AddCommand(newChannelCreateCmd())
	cmd.AddCommand(newChannelResearchCmd())

	return cmd
}

// ---------- channel list ----------

func newChannelListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChannelList(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runChannelList(cmd *cobra.Command, jsonOutput bool) error {
	a, err := openApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := a.channels.List()
	if err != nil {
		return err
	}
	infos := make([]model.ChannelInfo, 0, len(ids))
	for _, id := range ids {
		info, err := a.channels.Info(id)
		if err != nil {
			a.logger.Warn("skipping unreadable channel", "channel_id", id, "error", err)
			continue
		}
		infos = append(infos, *info)
	}

	if jsonOutput {
		return printJSON(os.Stdout, model.ChannelList{Channels: infos, Total: len(infos)})
	}

	if len(infos) == 0 {
		fmt.Printf("No channels in %s. Use 'yaa channel create' to add one.\n", a.channels.Root())
		return nil
	}

	fmt.Printf("%-20s %-24s %-16s %-8s %-6s\n", "ID", "NAME", "CATEGORY", "LANG", "GUIDE")
	fmt.Printf("%-20s %-24s %-16s %-8s %-6s\n", "--", "----", "--------", "----", "-----")
	for _, c := range infos {
		guide := "no"
		if c.HasBrandGuide {
			guide = "yes"
		}
		fmt.Printf("%-20s %-24s %-16s %-8s %-6s\n", c.ChannelID, c.Name, c.Category, c.Language, guide)
	}
	return nil
}

// ---------- channel create ----------

func newChannelCreateCmd() *cobra.Command {
	var name, category, language, description string

	cmd := &cobra.Command{
		Use:     "create <id>",
		Short:   "Create a channel from the _template directory",
		Example: `  yaa channel create coffee-lab --name "Coffee Lab" --category food --language en`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u channel.ChannelUpdate
			for flag, dst := range map[string]**string{
				"name":        &u.Name,
				"category":    &u.Category,
				"language":    &u.Language,
				"description": &u.Description,
			} {
				if cmd.Flags().Changed(flag) {
					v, _ := cmd.Flags().GetString(flag)
					*dst = &v
				}
			}
			return runChannelCreate(cmd, args[0], u)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&category, "category", "", "Content category")
	cmd.Flags().StringVar(&language, "language", "", "Content language code")
	cmd.Flags().StringVar(&description, "description", "", "Channel description")

	return cmd
}

func runChannelCreate(cmd *cobra.Command, id string, u channel.ChannelUpdate) error {
	a, err := openApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := a.channels.Create(id, u)
	if err != nil {
		return err
	}
	fmt.Printf("Created channel %q (%s) in %s\n", info.ChannelID, info.Name, a.channels.Root())
	return nil
}

// ---------- channel research ----------

func newChannelResearchCmd() *cobra.Command {
	var (
		brand      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "research <id>",
		Short: "Research a brand and save the channel's brand guide",
		Long: `Run brand research for a channel and write brand_guide.yaml into its
directory, replacing any existing guide. Pipeline runs reuse the saved guide
instead of researching again.`,
		Example: `  yaa channel research coffee-lab --brand "Coffee Lab"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			guide, path, err := researchBrand(cmd.Context(), a, args[0], brand)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), guide)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Brand guide for %q written to %s\n", guide.BrandName, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&brand, "brand", "", "Brand name (defaults to the channel name)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the brand guide as JSON")

	return cmd
}

// researchBrand researches the channel's brand and saves the guide, returning
// it with the path it was written to.
func researchBrand(ctx context.Context, a *app, id, brand string) (*model.BrandGuide, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	settings, err := a.channels.Resolve(id)
	if err != nil {
		return nil, "", err
	}
	guide, err := a.agents().BrandResearcher.Research(ctx, id, brand, settings)
	if err != nil {
		return nil, "", fmt.Errorf("brand research: %w", err)
	}
	if err := a.channels.SaveBrandGuide(id, guide); err != nil {
		return nil, "", err
	}
	a.logger.Info("brand guide saved", "channel_id", id, "brand", guide.BrandName)
	return guide, filepath.Join(a.channels.Root(), id, channel.BrandGuideFile), nil
}
