// Command fraudctl manages fraud-classifier artifacts and deployments.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"fraud-classifier-service/internal/config"
	"fraud-classifier-service/internal/core/domain"
)

type command struct {
	summary string
	run     func(ctx context.Context, env *cliEnv, args []string) error
}

var commands = map[string]command{
	"save":     {"save a model bundle as a new artifact version", runSave},
	"load":     {"show an artifact, optionally scoring records with it", runLoad},
	"list":     {"list artifact names, or versions of one name", runList},
	"delete":   {"delete one artifact version", runDelete},
	"render":   {"print the manifests for a deployment descriptor", runRender},
	"apply":    {"apply a deployment descriptor to the cluster", runApply},
	"teardown": {"remove a deployment from the cluster", runTeardown},
	"status":   {"show the rollout status of a deployment", runStatus},
	"package":  {"validate a build spec against the registry", runPackage},
	"hash-key": {"print the bcrypt hash of an API key", runHashKey},
}

// cliEnv carries what every subcommand shares.
type cliEnv struct {
	viper  *viper.Viper
	stdout io.Writer
	cfg    *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "fraudctl:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("usage error")

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(stdout)
		if len(args) == 0 {
			return errUsage
		}
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage(stdout)
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	env := &cliEnv{viper: viper.New(), stdout: stdout}
	return cmd.run(ctx, env, args[1:])
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: fraudctl <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-9s %s\n", name, commands[name].summary)
	}
}

// newFlagSet returns a flag set carrying the flags every command accepts.
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("registry-driver", config.RegistrySQLite, "artifact store: sqlite or postgres")
	fs.String("sqlite-path", "registry.db", "sqlite registry file")
	fs.String("log-level", "info", "log level")
	fs.String("kubeconfig", "", "path to a kubeconfig file")
	return fs
}

var flagKeys = map[string]string{
	"registry-driver": "REGISTRY_DRIVER",
	"sqlite-path":     "REGISTRY_SQLITE_PATH",
	"log-level":       "LOGGER_LEVEL",
	"kubeconfig":      "K8S_KUBECONFIG",
}

// parse parses args, binds the shared flags over the environment and loads
// the configuration.
func (e *cliEnv) parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	for flag, key := range flagKeys {
		if f := fs.Lookup(flag); f != nil {
			if err := e.viper.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}
	cfg, err := config.LoadWith(e.viper)
	if err != nil {
		return err
	}
	e.cfg = cfg

	level, err := log.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = log.WarnLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	return nil
}

// refArg parses the single positional "name[:tag]" argument.
func refArg(fs *pflag.FlagSet) (name, tag string, err error) {
	if fs.NArg() != 1 {
		return "", "", fmt.Errorf("%w: expected one artifact reference", errUsage)
	}
	name, tag = domain.ParseRef(fs.Arg(0))
	return name, tag, nil
}
