package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/chatterbox/internal/config"
	"github.com/KafClaw/chatterbox/internal/timeline"
)

var (
	turnsLimit int
	turnsAgent string
)

var turnsCmd = &cobra.Command{
	Use:   "turns",
	Short: "Show recent turns from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, err := config.ExpandHome(cfg.Journal.Path)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("journal %s: %w", path, err)
		}
		tl, err := timeline.NewTimelineService(path)
		if err != nil {
			return err
		}
		defer tl.Close()

		turns, err := tl.RecentTurns(turnsLimit)
		if err != nil {
			return err
		}
		counts, err := tl.OutcomeCounts(turnsAgent)
		if err != nil {
			return err
		}

		printHeader("📜 Recent turns")
		printTurns(cmd.OutOrStdout(), turns, turnsAgent)
		printCounts(cmd.OutOrStdout(), counts)
		return nil
	},
}

func init() {
	turnsCmd.Flags().IntVarP(&turnsLimit, "limit", "n", 20, "number of turns to show")
	turnsCmd.Flags().StringVar(&turnsAgent, "agent", "", "only show this personality")
}

func printTurns(w io.Writer, turns []timeline.TurnEvent, agent string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tAGENT\tDESTINATION\tWEIGHT\tOUTCOME\tDURATION\tERROR")
	for _, t := range turns {
		if agent != "" && t.Agent != agent {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			t.StartedAt.Local().Format(time.DateTime), t.Agent, t.Destination, t.Weight,
			colorOutcome(t.Outcome), t.Duration.Round(time.Millisecond), t.ErrorText)
	}
	tw.Flush()
}

func printCounts(w io.Writer, counts map[string]int) {
	outcomes := make([]string, 0, len(counts))
	for o := range counts {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	fmt.Fprintln(w)
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s: %d\n", colorOutcome(o), counts[o])
	}
}

func colorOutcome(o string) string {
	switch o {
	case timeline.OutcomeDelivered:
		return color.GreenString(o)
	case timeline.OutcomeTimeout:
		return color.YellowString(o)
	case timeline.OutcomeFailed:
		return color.RedString(o)
	default:
		return o
	}
}
