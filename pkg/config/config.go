package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/function-starlark/pkg/composite"
	"github.com/openfroyo/function-starlark/pkg/telemetry"
)

const (
	// EnvTLSCertsDir supplies TLSCertsDir when no flag sets it.
	EnvTLSCertsDir = "TLS_SERVER_CERTS_DIR"

	// DefaultAddress is the default gRPC listen address.
	DefaultAddress = "0.0.0.0:9443"

	// DefaultPackageLabel selects package ConfigMaps and Secrets.
	DefaultPackageLabel = "function-starlark.openfroyo.io/package"

	// DefaultPackagesDir is where packages are written by default.
	DefaultPackagesDir = "/tmp/function-starlark/packages"
)

var validate = validator.New()

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Address: DefaultAddress,
		TTL:     composite.DefaultTTL,
		Packages: PackagesConfig{
			Label: DefaultPackageLabel,
			Dir:   DefaultPackagesDir,
		},
		Observability: ObservabilityConfig{
			LogFormat:       "console",
			MetricsAddress:  ":8080",
			TracingExporter: "none",
		},
	}
}

// ApplyEnv fills unset fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if c.TLSCertsDir == "" {
		if dir, ok := lookup(EnvTLSCertsDir); ok {
			c.TLSCertsDir = dir
		}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validation failed: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "required_without":
		return fmt.Sprintf("%s is required unless %s is set", field, fe.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port, got %q", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must not be negative", field)
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}

// SearchPath returns the module search path: the module paths, then the
// packages directory when the package controller runs.
func (c *Config) SearchPath() []string {
	paths := append([]string{}, c.Modules.Paths...)
	if c.Packages.Enabled {
		paths = append(paths, c.Packages.Dir)
	}
	return paths
}

// Telemetry returns the telemetry configuration for version.
func (c *Config) Telemetry(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	if c.Debug {
		cfg.Logging.Level = "debug"
	}
	cfg.Logging.Format = c.Observability.LogFormat

	cfg.Metrics.Enabled = c.Observability.MetricsAddress != ""
	cfg.Metrics.ListenAddress = c.Observability.MetricsAddress

	if exporter := c.Observability.TracingExporter; exporter != "" && exporter != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = exporter
		cfg.Tracing.Endpoint = c.Observability.TracingEndpoint
	}
	return cfg
}
