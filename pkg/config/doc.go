// Package config holds the configuration of the function process.
//
// Config is filled from command line flags and the environment, then
// checked with Validate, which applies the struct tag rules of
// github.com/go-playground/validator:
//
//	cfg := config.Default()
//	cfg.ApplyEnv(os.LookupEnv)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//
// The telemetry configuration and the module search path are derived from
// it with Telemetry and SearchPath.
package config
