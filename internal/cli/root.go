// Package cli implements the multiquery command line: printing generated
// list queries, paging through a remote collection and serving collections
// from a data file.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nrfta/multiquery/schema"
)

const envPrefix = "MULTIQUERY"

// Execute runs the root command with the process arguments and returns the
// process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

// Run runs the command line given by args. Output goes to stdout; logs and
// the error that ended the command go to stderr. It returns the exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd(stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		cmd.PrintErrln("Error:", err)
		return 1
	}
	return 0
}

type app struct {
	v      *viper.Viper
	logger zerolog.Logger
	logOut io.Writer
}

// NewRootCmd builds the command tree. Logs are written to logOut.
//
// Every flag can also be set from the environment (MULTIQUERY_SCHEMA,
// MULTIQUERY_ENABLE_TOTAL, ...) or from the config file given by --config.
func NewRootCmd(logOut io.Writer) *cobra.Command {
	a := &app{
		v:      viper.New(),
		logger: zerolog.Nop(),
		logOut: logOut,
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "multiquery",
		Short:         "Build and run paginated GraphQL list queries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return a.setup()
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("schema", "", "schema file listing collections and fragments")

	cmd.AddCommand(
		newBuildCmd(a),
		newFetchCmd(a),
		newServeCmd(a),
	)

	return cmd
}

func (a *app) setup() error {
	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return err
		}
	}

	level, err := zerolog.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return err
	}

	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: a.logOut}).
		Level(level).
		With().
		Timestamp().
		Logger()

	return nil
}

func (a *app) registry() (*schema.Registry, error) {
	path := a.v.GetString("schema")
	if path == "" {
		return nil, errMissingFlag("schema")
	}
	return schema.Load(path)
}

func errMissingFlag(name string) error {
	env := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return fmt.Errorf("required flag --%s (or %s) not set", name, env)
}

func (a *app) require(names ...string) error {
	for _, name := range names {
		if a.v.GetString(name) == "" {
			return errMissingFlag(name)
		}
	}
	return nil
}
