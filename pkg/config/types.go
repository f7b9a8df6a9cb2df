package config

import "time"

// Config is the configuration of the function process.
type Config struct {
	// Debug enables debug logs.
	Debug bool `json:"debug"`

	// Address is the gRPC listen address.
	Address string `json:"address" validate:"required,hostname_port"`

	// TLSCertsDir holds tls.crt, tls.key and ca.crt. Required unless Insecure.
	TLSCertsDir string `json:"tls_certs_dir" validate:"required_without=Insecure"`

	// Insecure serves without mTLS.
	Insecure bool `json:"insecure"`

	// AllowOversizeProtos raises the gRPC receive limit.
	AllowOversizeProtos bool `json:"allow_oversize_protos"`

	// Modules configures where script modules are found.
	Modules ModulesConfig `json:"modules"`

	// TTL is the default response TTL.
	TTL time.Duration `json:"ttl" validate:"gte=0s"`

	// ComposeTimeout bounds each compose call. Zero disables the bound.
	ComposeTimeout time.Duration `json:"compose_timeout" validate:"gte=0s"`

	// Packages configures the package controller.
	Packages PackagesConfig `json:"packages"`

	// Observability configures logs, traces and metrics.
	Observability ObservabilityConfig `json:"observability"`
}

// ModulesConfig configures the module search path.
type ModulesConfig struct {
	// Paths are searched for script modules, in order.
	Paths []string `json:"paths" validate:"dive,required"`

	// Watch invalidates units when module files change.
	Watch bool `json:"watch"`
}

// PackagesConfig configures the controller materializing labelled
// ConfigMaps and Secrets as script packages.
type PackagesConfig struct {
	// Enabled starts the controller.
	Enabled bool `json:"enabled"`

	// Label selects package objects; its value names the package.
	Label string `json:"label" validate:"required_if=Enabled true"`

	// Namespace restricts the controller to one namespace. Empty watches all.
	Namespace string `json:"namespace,omitempty"`

	// Dir is where packages are written. It is searched after Modules.Paths.
	Dir string `json:"dir" validate:"required_if=Enabled true"`

	// Kubeconfig is used outside a cluster.
	Kubeconfig string `json:"kubeconfig,omitempty"`

	// ResyncPeriod is the informer resync period.
	ResyncPeriod time.Duration `json:"resync_period" validate:"gte=0s"`
}

// ObservabilityConfig configures logs, traces and metrics.
type ObservabilityConfig struct {
	// LogFormat is console or json.
	LogFormat string `json:"log_format" validate:"oneof=console json"`

	// MetricsAddress serves /metrics. Empty disables metrics.
	MetricsAddress string `json:"metrics_address" validate:"omitempty,hostname_port"`

	// TracingExporter is none, otlp or stdout.
	TracingExporter string `json:"tracing_exporter" validate:"oneof=none otlp stdout"`

	// TracingEndpoint is the OTLP collector endpoint.
	TracingEndpoint string `json:"tracing_endpoint" validate:"required_if=TracingExporter otlp"`
}
