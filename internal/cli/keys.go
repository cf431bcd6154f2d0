package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/chatterbox/internal/provider"
	"github.com/KafClaw/chatterbox/internal/secrets"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage provider API keys in the OS keyring",
}

var keysSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Store an API key read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := provider.NormalizeProviderID(args[0])
		fmt.Fprintf(os.Stderr, "API key for %s: ", id)
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			return fmt.Errorf("read key: %w", err)
		}
		if err := secrets.SaveAPIKey(id, line); err != nil {
			return err
		}
		fmt.Printf("%s stored key for %s\n", color.GreenString("✓"), id)
		return nil
	},
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Remove a stored API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := provider.NormalizeProviderID(args[0])
		if err := secrets.DeleteAPIKey(id); err != nil {
			return err
		}
		fmt.Printf("%s removed key for %s\n", color.GreenString("✓"), id)
		return nil
	},
}

func init() {
	keysCmd.AddCommand(keysSetCmd)
	keysCmd.AddCommand(keysDeleteCmd)
}
