package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/service"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke API keys used to authenticate against the HTTP API.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		name        string
		scopes      string
		expiresDays int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long: `Generate a new API key. The raw key is shown once and cannot be retrieved again.
When stdout is not a terminal only the key is printed, so it can be captured by scripts.`,
		Example: `  yaa key create --name admin --scopes admin
  yaa key create --name "CI pipeline" --scopes read,write --expires-days 90`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(cmd, name, scopes, expiresDays)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().StringVar(&scopes, "scopes", "read,write", "Comma separated scopes: read, write, admin")
	cmd.Flags().IntVar(&expiresDays, "expires-days", 0, "Expire the key after this many days (0 = never)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runKeyCreate(cmd *cobra.Command, name, scopes string, expiresDays int) error {
	if expiresDays < 0 {
		return errors.New("--expires-days must not be negative")
	}
	a, err := openApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	authSvc := service.NewAuthService(a.store, a.cfg.Auth.JWTSecret, a.cfg.Auth.SessionTTL)
	key, plaintext, err := authSvc.CreateAPIKey(context.Background(), service.CreateKeyParams{
		Name:      name,
		Scopes:    parseScopes(scopes),
		ExpiresIn: time.Duration(expiresDays) * 24 * time.Hour,
	})
	if err != nil {
		return err
	}

	if !isTerminal(os.Stdout) {
		fmt.Println(plaintext)
		return nil
	}

	fmt.Println("API Key created:")
	fmt.Println()
	fmt.Printf("  Key:    %s\n", plaintext)
	fmt.Printf("  ID:     %s\n", key.ID)
	fmt.Printf("  Name:   %s\n", key.Name)
	fmt.Printf("  Scopes: %s\n", strings.Join(key.Scopes.Strings(), ","))
	if key.ExpiresAt != nil {
		fmt.Printf("  Expires: %s\n", key.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		jsonOutput bool
		all        bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(cmd, all, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&all, "all", false, "Include revoked keys")

	return cmd
}

func runKeyList(cmd *cobra.Command, all, jsonOutput bool) error {
	a, err := openApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	keys, err := a.store.ListAPIKeys(context.Background(), all)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		return printJSON(os.Stdout, keys)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys configured. Use 'yaa key create' to create one.")
		return nil
	}

	fmt.Printf("%-36s %-12s %-20s %-16s %-8s\n", "ID", "PREFIX", "NAME", "SCOPES", "ACTIVE")
	fmt.Printf("%-36s %-12s %-20s %-16s %-8s\n", "--", "------", "----", "------", "------")
	for _, k := range keys {
		active := "yes"
		if !k.IsActive {
			active = "no"
		}
		fmt.Printf("%-36s %-12s %-20s %-16s %-8s\n", k.ID, k.KeyPrefix, k.Name, strings.Join(k.Scopes.Strings(), ","), active)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id|prefix>",
		Short: "Revoke an API key by its ID or prefix",
		Long:  "Deactivate an API key, preventing any further authenticated requests using that key or its sessions.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(cmd, args[0])
		},
	}

	return cmd
}

func runKeyRevoke(cmd *cobra.Command, ref string) error {
	a, err := openApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	if _, parseErr := uuid.Parse(ref); parseErr == nil {
		err = a.store.DeactivateAPIKey(ctx, ref)
	} else {
		err = a.store.DeactivateAPIKeyByPrefix(ctx, ref)
	}
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no active API key matches %q", ref)
	}
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Printf("Revoked API key %q\n", ref)
	return nil
}
