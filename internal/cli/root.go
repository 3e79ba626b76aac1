// Package cli provides the operator command-line interface: forced checks,
// stored data views and subscriber management.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"concursobot/internal/acquire"
	"concursobot/internal/bot"
	"concursobot/internal/config"
	"concursobot/internal/dispatch"
	"concursobot/internal/scheduler"
	"concursobot/internal/storage"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

// options holds the persistent flags. Empty values fall back to the
// environment.
type options struct {
	dbPath      string
	sourcesPath string
}

// NewRootCmd builds the watchctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "watchctl",
		Short:         "Operate the announcement watcher",
		Long:          "watchctl forces source checks, shows stored snapshots and manages the subscribers of the announcement watcher bot.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "path to sqlite database (default $DATABASE_PATH or "+config.DefaultDatabasePath+")")
	root.PersistentFlags().StringVar(&opts.sourcesPath, "sources", "", "path to sources file (default $SOURCES_FILE or "+config.DefaultSourcesFile+")")

	root.AddCommand(
		newCheckCmd(opts),
		newBroadcastCmd(opts),
		newShowCmd(opts),
		newSubscribersCmd(opts),
		newSourcesCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "watchctl %s (%s)\n", Version, Commit)
		},
	}
}

// env is the configuration shared by every command.
type env struct {
	cfg *config.Config
	log *slog.Logger
}

// loadEnv reads the environment. The bot token is only required when
// messages will be sent.
func (o *options) loadEnv(cmd *cobra.Command, needToken bool) (*env, error) {
	load := config.LoadEnv
	if needToken {
		load = config.Load
	}
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.dbPath != "" {
		cfg.DatabasePath = o.dbPath
	}
	if o.sourcesPath != "" {
		cfg.SourcesFile = o.sourcesPath
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Level()}))
	return &env{cfg: cfg, log: log}, nil
}

// pipeline is an open store plus a scheduler over the configured sources.
type pipeline struct {
	*env
	sources *config.Sources
	store   *storage.SQLite
	sched   *scheduler.Scheduler
}

func (p *pipeline) Close() error {
	return p.store.Close()
}

// openPipeline loads the sources, opens the store and builds a scheduler.
// With deliver set, updates go to subscribers through the Bot API.
func (o *options) openPipeline(cmd *cobra.Command, deliver bool) (*pipeline, error) {
	e, err := o.loadEnv(cmd, deliver)
	if err != nil {
		return nil, err
	}
	sources, err := config.LoadSources(e.cfg.SourcesFile)
	if err != nil {
		return nil, err
	}

	var deliverer scheduler.Deliverer = offline{}
	if deliver {
		api, err := bot.NewAPI(e.cfg.TelegramBotToken)
		if err != nil {
			return nil, err
		}
		deliverer = dispatch.New(bot.NewSender(api), e.cfg.MessagesPerMinute, e.log)
	}

	store, err := storage.Open(e.cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	fetcher := acquire.NewFetcher(acquire.DefaultClient())
	sched, err := scheduler.New(store, deliverer, scheduler.FromConfig(sources, fetcher), sources.Location(), e.log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sched.SetDeliveryTimeout(e.cfg.DeliveryTimeout)
	return &pipeline{env: e, sources: sources, store: store, sched: sched}, nil
}

// offline drops deliveries. It backs pipelines opened without --deliver.
type offline struct{}

func (offline) Deliver(context.Context, []string, []int64) dispatch.Report {
	return dispatch.Report{}
}
