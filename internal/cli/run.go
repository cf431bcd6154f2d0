package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KafClaw/chatterbox/internal/agent"
	"github.com/KafClaw/chatterbox/internal/bus"
	"github.com/KafClaw/chatterbox/internal/channels"
	"github.com/KafClaw/chatterbox/internal/config"
	"github.com/KafClaw/chatterbox/internal/ingest"
	"github.com/KafClaw/chatterbox/internal/persona"
	"github.com/KafClaw/chatterbox/internal/provider"
	"github.com/KafClaw/chatterbox/internal/scheduler"
	"github.com/KafClaw/chatterbox/internal/timeline"
)

var runRosterPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start every personality and the turn scheduler",
	RunE:  runBots,
}

func init() {
	runCmd.Flags().StringVar(&runRosterPath, "roster", "", "roster file (.toml or .yaml); overrides config")
}

// app is everything `run` supervises.
type app struct {
	timeline  *timeline.TimelineService
	scheduler *scheduler.Scheduler
	bus       *bus.MessageBus
	router    *agent.Router
	slack     []*channels.SlackChannel
	kafka     *ingest.KafkaSource
}

func runBots(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	roster, err := loadRoster(cfg, runRosterPath)
	if err != nil {
		return err
	}

	printHeader("🗣️ chatterbox")
	fmt.Printf("Personalities: %v\n", roster.Names())
	fmt.Printf("Budget: %d calls/minute, decay %.2f/minute\n", cfg.Scheduler.CallsPerMinute, cfg.Scheduler.DecayChancePerMinute)

	a, err := newApp(cfg, roster)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		slog.Error("chatterbox stopped", "error", err)
		return err
	}
	slog.Info("chatterbox stopped")
	return nil
}

func loadRoster(cfg *config.Config, override string) (*persona.Roster, error) {
	path := cfg.Paths.Roster
	if override != "" {
		path = override
	}
	path, err := config.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	roster, err := persona.LoadRoster(path)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return roster, nil
}

func newApp(cfg *config.Config, roster *persona.Roster) (*app, error) {
	a := &app{bus: bus.NewMessageBus()}

	if cfg.Journal.Enabled {
		path, err := config.ExpandHome(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("journal dir: %w", err)
		}
		tl, err := timeline.NewTimelineService(path)
		if err != nil {
			return nil, err
		}
		a.timeline = tl
	}

	a.scheduler = scheduler.New(scheduler.Config{
		CallsPerMinute:       cfg.Scheduler.CallsPerMinute,
		DecayChancePerMinute: cfg.Scheduler.DecayChancePerMinute,
		Seed:                 cfg.Scheduler.Seed,
	}, a.timeline)

	bots := make([]*agent.Bot, 0, len(roster.Personalities))
	for _, p := range roster.Personalities {
		botCfg, ok := cfg.Slack.Bots[p.Name]
		if !ok {
			a.Close()
			return nil, fmt.Errorf("no slack bot configured for %q (slack.bots.%s)", p.Name, p.Name)
		}
		ch, err := channels.NewSlackChannel(p.Name, botCfg, cfg.Slack.APIURL, a.bus, nil)
		if err != nil {
			a.Close()
			return nil, err
		}
		completer, err := provider.Resolve(cfg, p.Model)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("personality %q: %w", p.Name, err)
		}
		a.slack = append(a.slack, ch)
		bots = append(bots, agent.NewBot(agent.BotOptions{
			Personality:  p,
			Platform:     ch,
			Completer:    completer,
			Turns:        a.scheduler,
			HistoryLimit: cfg.Model.HistoryLimit,
			MaxTokens:    cfg.Model.MaxTokens,
			Temperature:  cfg.Model.Temperature,
		}))
	}
	a.router = agent.NewRouter(a.bus, bots...)

	if cfg.Kafka.Enabled {
		src, err := ingest.NewKafkaSource(cfg.Kafka, a.bus)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.kafka = src
	}
	return a, nil
}

// Run supervises every component. The first fatal error, such as a turn
// granted to an unregistered personality, cancels the rest. SIGHUP silences
// every personality.
func (a *app) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g.Go(func() error { return a.watchHangup(gctx, hup) })
	g.Go(func() error { return ignoreCancel(a.scheduler.Run(gctx)) })
	g.Go(func() error { return a.router.Run(gctx) })
	for _, ch := range a.slack {
		g.Go(func() error { return ch.Start(gctx) })
	}
	if a.kafka != nil {
		g.Go(func() error { return a.kafka.Run(gctx) })
	}

	return ignoreCancel(g.Wait())
}

func (a *app) watchHangup(ctx context.Context, hup <-chan os.Signal) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			a.silenceAll()
		}
	}
}

// silenceAll drops every pending turn and reports how many were dropped.
func (a *app) silenceAll() int {
	pending := a.scheduler.Pending()
	slog.Info("Silencing all personalities", "pending", len(pending), "inbound_queued", a.bus.InboundSize())
	for _, e := range pending {
		slog.Debug("Dropping pending turn", "key", e.Key.String(), "weight", e.Weight)
	}
	a.scheduler.SilenceAll()
	return len(pending)
}

// Close releases the journal.
func (a *app) Close() {
	if a.timeline != nil {
		if err := a.timeline.Close(); err != nil {
			slog.Warn("Failed to close journal", "error", err)
		}
		a.timeline = nil
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
