package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	fnv1 "github.com/crossplane/function-sdk-go/proto/v1"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protojson"
	"gopkg.in/yaml.v3"
)

const request = `meta:
  tag: abcdef0123456789
observed:
  composite:
    resource:
      apiVersion: starlark.fn.openfroyo.io/v1alpha1
      kind: Composite
      metadata:
        name: demo
      spec:
        region: eu-west-1
        composite: |
          def compose(self):
              vpc = self.resources.vpc("ec2.aws.upbound.io/v1beta1", "VPC")
              vpc.spec.forProvider.region = self.spec.region

          Composite = BaseComposite(compose)
`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("v1.2.3", "abc123", "2026-01-01")
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeRequest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "request.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCommandJSON(t *testing.T) {
	out, err := execute(t, "", "run", writeRequest(t, request), "-o", "json")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	rsp := &fnv1.RunFunctionResponse{}
	if err := protojson.Unmarshal([]byte(out), rsp); err != nil {
		t.Fatalf("output is not a response: %v\n%s", err, out)
	}
	vpc := rsp.GetDesired().GetResources()["vpc"].GetResource().AsMap()
	want := map[string]interface{}{
		"apiVersion": "ec2.aws.upbound.io/v1beta1",
		"kind":       "VPC",
		"spec":       map[string]interface{}{"forProvider": map[string]interface{}{"region": "eu-west-1"}},
	}
	if diff := cmp.Diff(want, vpc); diff != "" {
		t.Errorf("desired vpc mismatch (-want +got):\n%s", diff)
	}
	if got := rsp.GetMeta().GetTag(); got != "abcdef0123456789" {
		t.Errorf("tag = %q", got)
	}
}

func TestRunCommandYAMLFromStdin(t *testing.T) {
	out, err := execute(t, request, "run", "-", "--ttl", "2m")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	var doc struct {
		Meta struct {
			TTL string `yaml:"ttl"`
		} `yaml:"meta"`
		Desired struct {
			Resources map[string]interface{} `yaml:"resources"`
		} `yaml:"desired"`
	}
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out)
	}
	if doc.Meta.TTL != "120s" {
		t.Errorf("ttl = %q, want 120s", doc.Meta.TTL)
	}
	if _, ok := doc.Desired.Resources["vpc"]; !ok {
		t.Errorf("desired resources = %v, want vpc", doc.Desired.Resources)
	}
}

func TestRunCommandFatal(t *testing.T) {
	body := strings.Replace(request, "composite: |", "ignored: |", 1)
	out, err := execute(t, "", "run", writeRequest(t, body), "-o", "json")
	if err == nil || !strings.Contains(err.Error(), `Missing spec "composite"`) {
		t.Fatalf("run error = %v, want the fatal result", err)
	}
	if !strings.Contains(out, "SEVERITY_FATAL") {
		t.Errorf("response not printed before failing:\n%s", out)
	}
}

func TestRunCommandErrors(t *testing.T) {
	tests := map[string]struct {
		args []string
		want string
	}{
		"MissingFile": {
			args: []string{"run", filepath.Join(t.TempDir(), "missing.yaml")},
			want: "failed to read request",
		},
		"BadOutput": {
			args: []string{"run", "-", "-o", "toml"},
			want: "output must be one of [yaml json]",
		},
		"NotARequest": {
			args: []string{"run", writeRequest(t, "observed: [1, 2]\n")},
			want: "failed to decode request",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, "", tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestServeValidatesConfig(t *testing.T) {
	t.Setenv("TLS_SERVER_CERTS_DIR", "")

	tests := map[string]struct {
		args []string
		want string
	}{
		"NoCredentials": {
			args: []string{},
			want: "TLSCertsDir is required unless Insecure is set",
		},
		"LogFormat": {
			args: []string{"--insecure", "--log-format", "xml"},
			want: "must be one of [console json]",
		},
		"Address": {
			args: []string{"--insecure", "--address", "nowhere"},
			want: "Address must be host:port",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, "", tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	want := "function-starlark v1.2.3\ncommit: abc123\nbuilt: 2026-01-01\n"
	if out != want {
		t.Errorf("version output = %q, want %q", out, want)
	}
}
