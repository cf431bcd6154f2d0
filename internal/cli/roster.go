package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	rosterPath    string
	rosterPrompts bool
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "List personalities and their system prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		roster, err := loadRoster(cfg, rosterPath)
		if err != nil {
			return err
		}

		printHeader("🎭 Roster")
		for _, p := range roster.Personalities {
			model := p.Model
			if model == "" {
				model = cfg.Model.Name + " (default)"
			}
			fmt.Printf("%s  kind=%s larping=%t model=%s\n", color.GreenString(p.Name), p.Kind, p.LarpingAllowed, model)
			if rosterPrompts {
				fmt.Printf("  %s\n\n", p.BuildContext())
			}
		}
		return nil
	},
}

func init() {
	rosterCmd.Flags().StringVar(&rosterPath, "roster", "", "roster file (.toml or .yaml); overrides config")
	rosterCmd.Flags().BoolVar(&rosterPrompts, "prompts", false, "print each personality's system prompt")
}
