package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mcoot/wordquizzle/internal/config"
	"github.com/mcoot/wordquizzle/internal/factory"
	"github.com/mcoot/wordquizzle/internal/model"
)

// serverFlags are the config overrides shared by serve and snapshot
type serverFlags struct {
	configPath   string
	tcpAddr      string
	udpAddr      string
	httpAddr     string
	storage      string
	snapshotPath string
	redisURL     string
	dictionary   string
	logLevel     string
	logFormat    string
	workers      int
}

func (f *serverFlags) registerStorage(fs *pflag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Config file (env: "+config.PathEnv+")")
	fs.StringVar(&f.storage, "storage", "", "Snapshot store: memory, file, redis")
	fs.StringVar(&f.snapshotPath, "snapshot-path", "", "Snapshot file for file storage")
	fs.StringVar(&f.redisURL, "redis-url", "", "Redis URL for redis storage")
}

func (f *serverFlags) registerServe(fs *pflag.FlagSet) {
	f.registerStorage(fs)
	fs.StringVar(&f.tcpAddr, "tcp-addr", "", "TCP request listener address")
	fs.StringVar(&f.udpAddr, "udp-addr", "", "UDP challenge listener address")
	fs.StringVar(&f.httpAddr, "http-addr", "", "Admin API address, empty to disable")
	fs.StringVar(&f.dictionary, "dictionary", "", "Tab separated word list")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format: json, text")
	fs.IntVar(&f.workers, "workers", 0, "Worker pool size")
}

// load reads file and environment configuration, then applies the flags
// that were set explicitly
func (f *serverFlags) load(fs *pflag.FlagSet) (config.Config, error) {
	c, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}

	set := func(name string, apply func()) {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			apply()
		}
	}
	set("tcp-addr", func() { c.TCP.Addr = f.tcpAddr })
	set("udp-addr", func() { c.UDP.Addr = f.udpAddr })
	set("http-addr", func() { c.HTTP.Addr = f.httpAddr })
	set("storage", func() { c.Storage.Type = config.StorageType(f.storage) })
	set("snapshot-path", func() { c.Storage.SnapshotPath = f.snapshotPath })
	set("redis-url", func() { c.Storage.Redis.URL = f.redisURL })
	set("dictionary", func() { c.Match.DictionaryPath = f.dictionary })
	set("log-format", func() { c.Log.Format = f.logFormat })
	set("workers", func() { c.Workers = f.workers })

	var levelErr error
	set("log-level", func() { levelErr = c.Log.Level.UnmarshalText([]byte(f.logLevel)) })
	if levelErr != nil {
		return config.Config{}, fmt.Errorf("%w: --log-level: %v", config.ErrInvalidConfig, levelErr)
	}

	if err := c.Validate(); err != nil {
		return config.Config{}, err
	}
	return c, nil
}

func newServeCmd() *cobra.Command {
	var flags serverFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}

			logger := c.Log.NewLogger(cmd.OutOrStdout())
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := factory.New(ctx, c, logger)
			if err != nil {
				logger.Error("failed to create application", slog.String("error", err.Error()))
				return err
			}
			if err := app.Listen(); err != nil {
				logger.Error("failed to listen", slog.String("error", err.Error()))
				return err
			}

			attrs := []any{
				slog.String("tcp", app.TCP.Addr().String()),
				slog.String("udp", app.Matchmaking.Addr().String()),
				slog.String("storage", string(c.Storage.Type)),
				slog.Bool("restored", app.Restored),
			}
			if app.API != nil {
				attrs = append(attrs, slog.String("http", app.API.Addr()))
			}
			logger.Info("server started", attrs...)

			if err := app.Run(ctx); err != nil {
				logger.Error("server error", slog.String("error", err.Error()))
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}

	flags.registerServe(cmd.Flags())
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect stored registry snapshots",
	}
	cmd.AddCommand(newSnapshotShowCmd())
	return cmd
}

func newSnapshotShowCmd() *cobra.Command {
	var flags serverFlags

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the latest snapshot without password hashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}

			store, err := factory.NewStore(c.Storage)
			if err != nil {
				return err
			}
			if closer, ok := store.(io.Closer); ok {
				defer closer.Close()
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			snap, err := store.LoadSnapshot(cmd.Context())
			if errors.Is(err, model.ErrNoSnapshot) {
				out.PrintMessage("no snapshot stored")
				return nil
			}
			if err != nil {
				return err
			}

			for i := range snap.Users {
				snap.Users[i].PasswordHash = ""
			}
			out.Print(snap)
			return nil
		},
	}

	flags.registerStorage(cmd.Flags())
	return cmd
}
