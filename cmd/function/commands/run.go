package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	fnv1 "github.com/crossplane/function-sdk-go/proto/v1"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/function-starlark/pkg/composite"
	"github.com/openfroyo/function-starlark/pkg/function"
	"github.com/openfroyo/function-starlark/pkg/loader"
	"github.com/openfroyo/function-starlark/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	var (
		modulePaths    []string
		output         string
		ttl            time.Duration
		composeTimeout time.Duration
		debug          bool
	)

	cmd := &cobra.Command{
		Use:   "run <request-file>",
		Short: "Run the function once against a request file",
		Long: `Run the function once against a RunFunctionRequest read from a YAML or
JSON file, without serving gRPC, and print the RunFunctionResponse.

The request uses the protobuf JSON field names. A "-" reads the request from
standard input. The command fails when the response carries a fatal result.`,
		Example: `  # Render an inline composition
  function-starlark run request.yaml

  # Resolve referenced units from a module directory, print JSON
  function-starlark run request.yaml --module-path ./modules -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "yaml" && output != "json" {
				return fmt.Errorf("output must be one of [yaml json], got %q", output)
			}
			req, err := readRequest(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			logCfg := telemetry.DefaultConfig().Logging
			if debug {
				logCfg.Level = "debug"
			}
			logger := telemetry.NewLoggerTo(cmd.ErrOrStderr(), logCfg)

			l := loader.New(logger, loader.WithSearchPath(modulePaths...))
			runner := function.NewRunner(l, logger,
				function.WithTTL(ttl),
				function.WithComposeTimeout(composeTimeout),
			)
			rsp, err := runner.RunFunction(cmd.Context(), req)
			if err != nil {
				return err
			}

			b, err := encodeResponse(rsp, output)
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(b); err != nil {
				return err
			}

			for _, r := range rsp.GetResults() {
				if r.GetSeverity() == fnv1.Severity_SEVERITY_FATAL {
					return fmt.Errorf("function returned a fatal result: %s", r.GetMessage())
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&modulePaths, "module-path", nil, "directory searched for script modules (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format: yaml or json")
	cmd.Flags().DurationVar(&ttl, "ttl", composite.DefaultTTL, "default response TTL")
	cmd.Flags().DurationVar(&composeTimeout, "compose-timeout", 0, "bound on the compose call (0 disables)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "emit debug logs")

	return cmd
}

// readRequest decodes a YAML or JSON request from path, or from stdin when
// path is "-".
func readRequest(stdin io.Reader, path string) (*fnv1.RunFunctionRequest, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}

	// JSON is YAML, so one decoder serves both
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert request: %w", err)
	}

	req := &fnv1.RunFunctionRequest{}
	if err := protojson.Unmarshal(js, req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return req, nil
}

func encodeResponse(rsp *fnv1.RunFunctionResponse, format string) ([]byte, error) {
	js, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(rsp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	if format == "json" {
		return append(js, '\n'), nil
	}
	var doc interface{}
	if err := yaml.Unmarshal(js, &doc); err != nil {
		return nil, fmt.Errorf("failed to convert response: %w", err)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return out, nil
}
