package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ansell/openrdf-sesame-sub028/internal/config"
	"github.com/ansell/openrdf-sesame-sub028/internal/storage"
	"github.com/ansell/openrdf-sesame-sub028/pkg/logger"
	"github.com/ansell/openrdf-sesame-sub028/pkg/store"
)

const envPrefix = "SAIL"

// env holds what every subcommand shares: the resolved configuration and
// the streams it talks to.
type env struct {
	cfg      *config.Config
	registry *storage.Registry
	metrics  *prometheus.Registry
	log      logger.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// open opens the configured store.
func (e *env) open() (*store.TripleStore, error) {
	return e.cfg.Open(e.registry, e.log, e.metrics)
}

func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	e := &env{
		cfg:      config.NewConfig(),
		registry: storage.NewRegistry(),
		metrics:  prometheus.NewRegistry(),
		log:      logger.NopLogger,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
	}

	rc := &cobra.Command{
		Use:   "sail",
		Short: "Sail is an embeddable RDF quad store.",
		Long: `Sail stores RDF statements in permutation indexes with snapshot
isolated reads and a single writer.

Settings are read from flags, SAIL_* environment variables and an
optional TOML file, in that order of priority.
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if err := setAllConfig(v, cmd.Flags()); err != nil {
				return err
			}
			log, err := logger.NewZapLogger(stderr, e.cfg.LogLevel)
			if err != nil {
				return err
			}
			e.log = log
			return nil
		},
	}
	rc.PersistentFlags().StringP("config", "c", "", "Configuration file to read from.")
	bindConfigFlags(rc.PersistentFlags(), e.cfg)

	rc.AddCommand(newDemoCommand(e))
	rc.AddCommand(newLoadCommand(e))
	rc.AddCommand(newDumpCommand(e))
	rc.AddCommand(newCountCommand(e))
	rc.AddCommand(newCompactCommand(e))
	rc.AddCommand(newGenerateConfigCommand(e))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// bindConfigFlags defines one flag per configuration key, writing straight
// into cfg. Flag names match the TOML keys.
func bindConfigFlags(flags *pflag.FlagSet, cfg *config.Config) {
	flags.StringVarP(&cfg.DataDir, "data-dir", "d", cfg.DataDir, "Directory of persistent backends.")
	flags.StringVar(&cfg.Backend, "backend", cfg.Backend, "Storage backend: memory, badger or bolt.")
	flags.StringVar(&cfg.Indexes, "indexes", cfg.Indexes, "Index specification, e.g. spoc,posc.")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error.")
	flags.StringVar(&cfg.Transaction.ConflictMode, "transaction.conflict-mode", cfg.Transaction.ConflictMode, "What a second writer does: block or fail-fast.")
	flags.Var(&cfg.Transaction.LockTimeout, "transaction.lock-timeout", "How long a blocked writer waits for the write lock.")
	flags.BoolVar(&cfg.Transaction.Sync, "transaction.sync", cfg.Transaction.Sync, "Flush storage after every commit.")
	flags.IntVar(&cfg.Compaction.Threshold, "compaction.threshold", cfg.Compaction.Threshold, "Dead statement versions that trigger compaction.")
	flags.StringVar(&cfg.Metric.Namespace, "metric.namespace", cfg.Metric.Namespace, "Prometheus namespace of the store metrics.")
}

// setAllConfig takes a FlagSet to be the definition of all configuration
// options, as well as their defaults. It then reads from the command line,
// the environment, and a config file (if specified), and applies the
// configuration in that priority order. Each flag holds a pointer to where
// its value is stored, so setAllConfig modifies the configuration directly.
//
// Environment variables are the flag names, capitalized, with dashes and
// dots replaced by underscores and prefixed with SAIL_.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	validTags := make(map[string]bool)
	flags.VisitAll(func(f *pflag.Flag) {
		validTags[f.Name] = true
	})

	if c := v.GetString("config"); c != "" {
		v.SetConfigFile(c)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %v", c, err)
		}
		for _, key := range v.AllKeys() {
			if !validTags[key] {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		value := v.GetString(f.Name)
		if f.Value.Type() == "stringSlice" {
			// v.GetString is empty for a slice read from a config file
			value = strings.Join(v.GetStringSlice(f.Name), ",")
		}
		if err := f.Value.Set(value); err != nil {
			flagErr = fmt.Errorf("invalid value for %s: %v", f.Name, err)
		}
	})
	return flagErr
}
