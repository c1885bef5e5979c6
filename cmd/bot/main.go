package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eliseohh/echobot/internal/bot"
	"github.com/eliseohh/echobot/internal/config"
	"github.com/eliseohh/echobot/internal/log"
	"github.com/eliseohh/echobot/internal/metrics"
	"github.com/eliseohh/echobot/internal/monobank"
	"github.com/eliseohh/echobot/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type options struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "echobot",
		Short:         "Telegram bot that echoes, reverses, counts your age and shows currency rates",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("ECHOBOT_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	root.AddCommand(newRatesCmd(opts), newStatsCmd(opts), newResetCmd(opts))
	return root
}

func loadConfig(opts *options) (config.Config, error) {
	// Logging comes first so config parsing can report its sources.
	log.Configure(log.Config{Level: opts.logLevel})
	return config.Load(opts.configPath)
}

func openStore(cfg config.Config) (*session.DB, *session.Store, error) {
	db, err := session.NewDB(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, session.NewStore(db), nil
}

func run(parent context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. State
	db, store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	// 2. Bot
	loc, _ := cfg.Location()
	rates := monobank.NewService(monobank.NewClient(cfg.MonobankURL), cfg.RatesCacheTTL)
	b, err := bot.New(bot.Config{
		Token:       cfg.Token,
		PollTimeout: cfg.PollTimeout,
		Location:    loc,
		ChatRate:    rate.Limit(cfg.ChatRate),
		ChatBurst:   cfg.ChatBurst,
	}, store, rates)
	if err != nil {
		return fmt.Errorf("bot init failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// 3. Janitor for abandoned age dialogues
	g.Go(func() error {
		store.RunJanitor(gctx, cfg.JanitorInterval, cfg.SessionTTL)
		return nil
	})

	// 4. Diagnostics
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.MetricsAddr)
		})
	}

	// 5. Long polling
	g.Go(func() error {
		b.Start()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		b.Stop()
		return nil
	})

	return g.Wait()
}

func newRatesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rates",
		Short: "Fetch and print the current Monobank rates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log.Configure(log.Config{Level: opts.logLevel})
			cfg, err := config.Read(opts.configPath)
			if err != nil {
				return err
			}
			table, err := monobank.NewClient(cfg.MonobankURL).Rates(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), table.Format())
			return nil
		},
	}
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print how many chats use each mode",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			db, store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			st, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chats: %d\n", st.Chats)
			for _, m := range []session.Mode{session.ModeEcho, session.ModeReverse, session.ModeAge} {
				fmt.Fprintf(out, "  %-8s %d\n", m, st.ByMode[m])
			}
			fmt.Fprintf(out, "age dialogues in progress: %d\n", st.AgeWizards)
			return nil
		},
	}
}

func newResetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop all stored chat modes and age dialogues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			db, err := session.NewDB(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Nuke(); err != nil {
				return err
			}
			if err := db.InitSchema(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✔ state cleared")
			return nil
		},
	}
}
