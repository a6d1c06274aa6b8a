package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/troian/healthcheck"
	"go.uber.org/zap"

	"github.com/VolantMQ/vlnats"
	"github.com/VolantMQ/vlnats/configuration"
	"github.com/VolantMQ/vlnats/keystore"
	"github.com/VolantMQ/vlnats/metrics"
	"github.com/VolantMQ/vlnats/server"
)

var logger *zap.SugaredLogger

// these are provided at compile time
var (
	// GitCommit SHA hash
	GitCommit string

	// BuildDate build date
	BuildDate string

	// Version application version
	Version string
)

func init() {
	if Version == "" {
		Version = vlnats.Version
	}

	if BuildDate == "" {
		BuildDate = "UNKNOWN"
	}

	if GitCommit == "" {
		GitCommit = "UNKNOWN"
	}
}

type rootOptions struct {
	config string
	port   int
}

// NewRootCmd returns the base root command.
func NewRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "vlnats",
		Short:         "NATS compatible message broker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(&opts)
		},
	}

	cmd.Flags().StringVarP(&opts.config, "config", "c", configuration.ConfigFile(),
		"path to yaml or toml config file. Env "+configuration.EnvConfig)
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "client port, overrides listeners.tcp.port")

	cmd.AddCommand(
		VersionCommand(),
		ConfigCommand(),
		KeygenCommand(),
	)

	return cmd
}

// VersionCommand prints build info
func VersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "vlnats %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
			return nil
		},
	}
}

// ConfigCommand prints default configuration
func ConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print default configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), configuration.DefaultConfigText())
			return nil
		},
	}
}

func run(opts *rootOptions) error {
	logger = configuration.GetHumanLogger()

	config, err := configuration.ReadConfig(opts.config)
	if err != nil {
		logger.Error("read config", zap.Error(err))
		return err
	}

	if opts.port > 0 {
		config.Listeners.TCP.Port = opts.port
	}

	if err = configuration.ConfigureLoggers(&config.System.Log); err != nil {
		return err
	}

	logger = configuration.GetHumanLogger()

	logger.Info("starting service...")
	logger.Infof("\n\tbuild info:\n"+
		"\t\tcommit : %s\n"+
		"\t\tdate   : %s\n"+
		"\t\tversion: %s\n", GitCommit, BuildDate, Version)

	if opts.config != "" {
		logger.Info("config file: ", opts.config)
	}

	stats, err := metrics.New(metrics.Config{
		Interval: config.System.Stats.Interval,
		Log:      configuration.GetLogger().Named("metrics"),
	})
	if err != nil {
		return err
	}

	health := healthcheck.NewHandler()

	var mon *httpServer

	if config.System.HTTP.Addr != "" {
		mon = newHTTPServer(config.System.HTTP.Addr, health, stats)
		mon.start()
	}

	srv, err := server.Start(context.Background(), server.Config{
		Nats:      config.Nats,
		Acceptor:  config.System.Acceptor,
		Listeners: config.Listeners,
		Stats:     config.System.Stats,
		Keystore:  keystore.New(config.Keystore.File),
		Health:    health,
		Metrics:   stats,
		Version:   Version,
	})
	if err != nil {
		logger.Error("server start", zap.Error(err))

		_ = stats.Shutdown()
		mon.shutdown()

		return err
	}

	logger.Info("NATS server started on ", srv.ClientURL())

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(ch)

	select {
	case sig := <-ch:
		logger.Info("service received signal: ", sig.String())
	case <-srv.Done():
	}

	if err = srv.Shutdown(); err != nil {
		logger.Error("shutdown server", zap.Error(err))
	}

	mon.shutdown()

	logger.Info("service stopped")

	return err
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
