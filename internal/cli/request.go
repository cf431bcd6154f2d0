package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KafClaw/chatterbox/internal/ingest"
)

var requestCmd = &cobra.Command{
	Use:   "request <personality> <destination> [text...]",
	Short: "Publish a turn request to the Kafka topic",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pub, err := ingest.NewPublisher(cfg.Kafka)
		if err != nil {
			return err
		}
		defer pub.Close()

		req := ingest.TurnRequest{
			Agent:       args[0],
			Destination: args[1],
			Text:        strings.Join(args[2:], " "),
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := pub.Publish(ctx, req); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Requested a turn for %s in %s\n", req.Agent, req.Destination)
		return nil
	},
}
