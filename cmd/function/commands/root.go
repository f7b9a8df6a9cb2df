package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openfroyo/function-starlark/pkg/config"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	cfg := config.Default()

	rootCmd := &cobra.Command{
		Use:   "function-starlark",
		Short: "Crossplane composition function running Starlark compositions",
		Long: `function-starlark is a Crossplane composition function. Each request names
a composition, either inline Starlark source or a reference to a unit in a
module on the module search path, and the composition's compose method
fills the desired state.

Without a subcommand the function serves gRPC until interrupted.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg, version)
		},
	}

	addServeFlags(rootCmd.Flags(), cfg)

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}

func addServeFlags(flags *pflag.FlagSet, cfg *config.Config) {
	flags.BoolVarP(&cfg.Debug, "debug", "d", cfg.Debug, "emit debug logs")
	flags.StringVar(&cfg.Address, "address", cfg.Address, "address to listen for gRPC connections")
	flags.StringVar(&cfg.TLSCertsDir, "tls-certs-dir", cfg.TLSCertsDir,
		"directory holding tls.crt, tls.key and ca.crt (env "+config.EnvTLSCertsDir+")")
	flags.BoolVar(&cfg.Insecure, "insecure", cfg.Insecure, "serve without mTLS")
	flags.BoolVar(&cfg.AllowOversizeProtos, "allow-oversize-protos", cfg.AllowOversizeProtos,
		"accept requests larger than the default gRPC message limit")

	flags.StringArrayVar(&cfg.Modules.Paths, "module-path", cfg.Modules.Paths,
		"directory searched for script modules (repeatable)")
	flags.BoolVar(&cfg.Modules.Watch, "watch-modules", cfg.Modules.Watch,
		"recompile units when module files change")

	flags.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "default response TTL")
	flags.DurationVar(&cfg.ComposeTimeout, "compose-timeout", cfg.ComposeTimeout,
		"bound on each compose call (0 disables)")

	flags.BoolVar(&cfg.Packages.Enabled, "packages", cfg.Packages.Enabled,
		"materialize labelled ConfigMaps and Secrets as script packages")
	flags.StringVar(&cfg.Packages.Label, "packages-label", cfg.Packages.Label, "label selecting package objects")
	flags.StringVar(&cfg.Packages.Namespace, "packages-namespace", cfg.Packages.Namespace,
		"namespace to watch for packages (default all)")
	flags.StringVar(&cfg.Packages.Dir, "packages-dir", cfg.Packages.Dir, "directory packages are written to")
	flags.StringVar(&cfg.Packages.Kubeconfig, "kubeconfig", cfg.Packages.Kubeconfig,
		"kubeconfig used outside a cluster")

	flags.StringVar(&cfg.Observability.MetricsAddress, "metrics-address", cfg.Observability.MetricsAddress,
		"address to serve /metrics on (empty disables)")
	flags.StringVar(&cfg.Observability.LogFormat, "log-format", cfg.Observability.LogFormat, "log format: console or json")
	flags.StringVar(&cfg.Observability.TracingExporter, "tracing-exporter", cfg.Observability.TracingExporter,
		"trace exporter: none, otlp or stdout")
	flags.StringVar(&cfg.Observability.TracingEndpoint, "tracing-endpoint", cfg.Observability.TracingEndpoint,
		"OTLP collector endpoint")
}
