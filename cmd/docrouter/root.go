package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/docrouter/core"
	"github.com/itsneelabh/docrouter/memory"
)

// globalOptions are the persistent flags shared by every subcommand
type globalOptions struct {
	configFile  string
	logLevel    string
	logFormat   string
	dev         bool
	memory      string
	redisURL    string
	sqlitePath  string
	serviceName string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "docrouter",
		Short: "Classify and extract JSON, email and PDF documents",
		Long: `docrouter detects the format and intent of incoming documents, routes them
to the JSON, email or PDF extractor and logs every result to a shared memory
(in-memory, Redis or SQLite).

Configuration is layered: defaults, then the file named by DOCROUTER_CONFIG,
then DOCROUTER_* environment variables, then flags. A --config file is applied
together with the flags.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (JSON or YAML)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: json or text")
	pf.BoolVar(&opts.dev, "dev", false, "development mode (text logs, debug level)")
	pf.StringVar(&opts.memory, "memory", "", "memory provider: inmemory, redis or sqlite")
	pf.StringVar(&opts.redisURL, "redis-url", "", "Redis URL for the redis memory provider")
	pf.StringVar(&opts.sqlitePath, "sqlite-path", "", "database file for the sqlite memory provider")
	pf.StringVar(&opts.serviceName, "name", "", "service name")

	root.AddCommand(
		newServeCmd(opts),
		newClassifyCmd(opts),
		newVersionCmd(),
	)
	return root
}

// configOptions turns the flags that were set into config options, so unset
// flags leave file and environment values alone.
func (g *globalOptions) configOptions(cmd *cobra.Command) []core.Option {
	var opts []core.Option
	flags := cmd.Flags()

	if g.configFile != "" {
		opts = append(opts, core.WithConfigFile(g.configFile))
	}
	if flags.Changed("name") {
		opts = append(opts, core.WithName(g.serviceName))
	}
	if flags.Changed("memory") {
		opts = append(opts, core.WithMemoryProvider(g.memory))
	}
	if flags.Changed("redis-url") {
		opts = append(opts, core.WithRedisURL(g.redisURL))
	}
	if flags.Changed("sqlite-path") {
		opts = append(opts, core.WithSQLitePath(g.sqlitePath))
	}
	if flags.Changed("dev") {
		opts = append(opts, core.WithDevelopmentMode(g.dev))
	}
	if flags.Changed("log-level") {
		opts = append(opts, core.WithLogLevel(g.logLevel))
	}
	if flags.Changed("log-format") {
		opts = append(opts, core.WithLogFormat(g.logFormat))
	}
	return opts
}

// setup loads configuration and builds the logger
func setup(cmd *cobra.Command, g *globalOptions, extra ...core.Option) (*core.Config, *core.ProductionLogger, error) {
	cfg, err := core.NewConfig(append(g.configOptions(cmd), extra...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := core.NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openMemory connects the configured backend and wraps it in a SharedMemory
func openMemory(cmd *cobra.Command, cfg *core.Config, logger core.Logger, t core.Telemetry) (*memory.SharedMemory, error) {
	backend, err := memory.NewBackend(cmd.Context(), cfg.Memory, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s memory: %w", cfg.Memory.Provider, err)
	}
	opts := []memory.Option{memory.WithLogger(logger)}
	if t != nil {
		opts = append(opts, memory.WithTelemetry(t))
	}
	return memory.New(backend, opts...), nil
}
