// Package telemetry provides the observability instrumentation of the
// function: structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus).
//
// # Usage
//
// Initialize telemetry at startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Logging.Level = "debug"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	go tel.Metrics.ServeMetrics(ctx, tel.Logger)
//
// # Logging
//
// Loggers are plain zerolog.Logger values. Every RunFunction request gets a
// child logger carrying the composite apiVersion, kind and name, the first
// seven characters of the request tag, the pipeline step and a request id.
//
// # Tracing
//
// Each request runs inside one "function.run" span. Fatal results set the
// span status to Error and record the error class.
//
// # Metrics
//
// All metrics live in the function_starlark namespace:
//
//   - requests_total{outcome}, request_duration_seconds{outcome}, active_requests
//   - fatal_results_total{class}
//   - resources_total{action}: patched, dropped, deleted and auto_ready
//   - unit_compiles_total{result}, unit_cache_lookups_total{result},
//     unit_cache_invalidations_total, unit_cache_entries
//
// A nil *Metrics records nothing, so components can be built without
// metrics in tests.
package telemetry
