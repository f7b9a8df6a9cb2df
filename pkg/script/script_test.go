package script

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	fnv1 "github.com/crossplane/function-sdk-go/proto/v1"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openfroyo/function-starlark/pkg/composite"
	"github.com/openfroyo/function-starlark/pkg/value"
)

var nopLogger = zerolog.New(nil).Level(zerolog.Disabled)

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct() error = %v", err)
	}
	return s
}

func testRequest(t *testing.T) *fnv1.RunFunctionRequest {
	t.Helper()
	return &fnv1.RunFunctionRequest{
		Meta: &fnv1.RequestMeta{Tag: "0123456789"},
		Observed: &fnv1.State{
			Composite: &fnv1.Resource{
				Resource: mustStruct(t, map[string]interface{}{
					"apiVersion": "example.org/v1",
					"kind":       "XBucket",
					"metadata":   map[string]interface{}{"name": "my-bucket"},
					"spec":       map[string]interface{}{"region": "eu-west-1", "size": 3},
					"status":     map[string]interface{}{"phase": "Creating", "network": map[string]interface{}{"vpc": "vpc-1"}},
				}),
			},
			Resources: map[string]*fnv1.Resource{
				"bucket": {
					Resource: mustStruct(t, map[string]interface{}{
						"apiVersion": "s3.aws.upbound.io/v1beta1",
						"kind":       "Bucket",
						"status": map[string]interface{}{
							"atProvider": map[string]interface{}{"arn": "arn:aws:s3:::my-bucket"},
							"conditions": []interface{}{
								map[string]interface{}{"type": "Ready", "status": "True"},
							},
						},
					}),
				},
			},
		},
		Desired: &fnv1.State{
			Composite: &fnv1.Resource{Resource: mustStruct(t, map[string]interface{}{})},
		},
		ExtraResources: map[string]*fnv1.Resources{
			"vpcs": {Items: []*fnv1.Resource{{
				Resource: mustStruct(t, map[string]interface{}{
					"apiVersion": "ec2.aws.upbound.io/v1beta1",
					"kind":       "VPC",
					"metadata":   map[string]interface{}{"name": "shared"},
				}),
			}}},
		},
		Credentials: map[string]*fnv1.Credentials{
			"aws": {Source: &fnv1.Credentials_CredentialData{CredentialData: &fnv1.CredentialData{
				Data: map[string][]byte{"key": []byte("secret")},
			}}},
		},
	}
}

type harness struct {
	c   *composite.Composite
	rsp *fnv1.RunFunctionResponse
	res *value.Tree
}

func newHarness(req *fnv1.RunFunctionRequest, logger zerolog.Logger) *harness {
	rsp := &fnv1.RunFunctionResponse{
		Meta:    &fnv1.ResponseMeta{Tag: req.GetMeta().GetTag()},
		Desired: proto.Clone(req.GetDesired()).(*fnv1.State),
	}
	res := value.NewTree(rsp, "Function Response")
	c := composite.New(value.NewTree(req, "Function Request", value.ReadOnly()), res, logger)
	return &harness{c: c, rsp: rsp, res: res}
}

func compose(t *testing.T, src string, req *fnv1.RunFunctionRequest) (*harness, error) {
	t.Helper()
	m, err := Exec("<script>", "<script>", src, nil, nopLogger)
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	u, err := m.Unit("Composite")
	if err != nil {
		t.Fatalf("Unit() error = %v", err)
	}
	h := newHarness(req, nopLogger)
	comp, err := u.New(h.c)
	if err != nil {
		return h, err
	}
	if err := composite.Await(context.Background(), comp); err != nil {
		return h, err
	}
	return h, h.c.Commit()
}

func TestComposeWritesResources(t *testing.T) {
	src := `
def compose(self):
    bucket = self.resources.bucket("s3.aws.upbound.io/v1beta1", "Bucket")
    bucket.spec.forProvider.region = self.spec.region
    bucket.spec.forProvider.tags = {"owner": self.name, "size": self.spec.size}
    self.status.bucketArn = self.resources.bucket.status.atProvider.arn
    self.connection.bucket = "my-bucket"

Composite = BaseComposite(compose)
`
	h, err := compose(t, src, testRequest(t))
	if err != nil {
		t.Fatalf("compose error = %v", err)
	}

	got := h.rsp.GetDesired().GetResources()["bucket"].GetResource().AsMap()
	want := map[string]interface{}{
		"apiVersion": "s3.aws.upbound.io/v1beta1",
		"kind":       "Bucket",
		"spec": map[string]interface{}{
			"forProvider": map[string]interface{}{
				"region": "eu-west-1",
				"tags":   map[string]interface{}{"owner": "my-bucket", "size": float64(3)},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("desired bucket mismatch (-want +got):\n%s", diff)
	}

	status := h.rsp.GetDesired().GetComposite().GetResource().AsMap()["status"]
	if diff := cmp.Diff(map[string]interface{}{"bucketArn": "arn:aws:s3:::my-bucket"}, status); diff != "" {
		t.Errorf("desired status mismatch (-want +got):\n%s", diff)
	}
	if got := string(h.rsp.GetDesired().GetComposite().GetConnectionDetails()["bucket"]); got != "my-bucket" {
		t.Errorf("connection bucket = %q, want %q", got, "my-bucket")
	}
}

func TestComposeFacets(t *testing.T) {
	src := `
def compose(self):
    if self.status.phase != "Creating":
        fail("status should fall back to observed")
    if self.status.network.vpc != "vpc-1":
        fail("nested status should fall back to observed")
    if self.resources.bucket.conditions.Ready.status != True:
        fail("observed Ready condition should be True")
    if self.resources.missing:
        fail("missing resource should be falsy")
    if self.credentials.aws["key"] != b"secret":
        fail("credential data mismatch")
    if self.requireds.vpcs[0].metadata.name != "shared":
        fail("required resource mismatch")
    if self.requireds.vpcs[5]:
        fail("placeholder should be falsy")
    self.requireds.subnets("ec2.aws.upbound.io/v1beta1", "Subnet", matchLabels={"team": "a"})
    self.conditions.Synced(status=True, reason="Composed")
    self.results.warning("quota low", reason="Quota")
    self.results("done")
    self.ttl = 30
    self.ready = True

Composite = BaseComposite(compose)
`
	h, err := compose(t, src, testRequest(t))
	if err != nil {
		t.Fatalf("compose error = %v", err)
	}

	sel := h.rsp.GetRequirements().GetExtraResources()["subnets"]
	if sel.GetKind() != "Subnet" || sel.GetMatchLabels().GetLabels()["team"] != "a" {
		t.Errorf("subnets selector = %v", sel)
	}
	conds := h.rsp.GetConditions()
	if len(conds) != 1 || conds[0].GetType() != "Synced" || conds[0].GetStatus() != fnv1.Status_STATUS_CONDITION_TRUE || conds[0].GetReason() != "Composed" {
		t.Errorf("conditions = %v", conds)
	}
	results := h.rsp.GetResults()
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].GetSeverity() != fnv1.Severity_SEVERITY_WARNING || results[0].GetReason() != "Quota" {
		t.Errorf("results[0] = %v", results[0])
	}
	if results[1].GetSeverity() != fnv1.Severity_SEVERITY_NORMAL || results[1].GetMessage() != "done" {
		t.Errorf("results[1] = %v", results[1])
	}
	if got := h.rsp.GetMeta().GetTtl().AsDuration(); got != 30*time.Second {
		t.Errorf("ttl = %v, want 30s", got)
	}
	if got := h.rsp.GetDesired().GetComposite().GetReady(); got != fnv1.Ready_READY_TRUE {
		t.Errorf("ready = %v, want READY_TRUE", got)
	}
}

func TestRequiredSelectorAliases(t *testing.T) {
	src := `
def compose(self):
    self.requireds.shared("ec2.aws.upbound.io/v1beta1", "VPC", name="shared")
    self.requireds.subnets("ec2.aws.upbound.io/v1beta1", "Subnet", labels={"team": "a"})
    if self.requireds.shared.matchName != "shared":
        fail("name should select by name")
    if self.requireds.shared.matchLabels != None:
        fail("name selector should have no labels")
    if self.requireds.subnets.matchLabels != {"team": "a"}:
        fail("labels should select by label")

Composite = BaseComposite(compose)
`
	h, err := compose(t, src, testRequest(t))
	if err != nil {
		t.Fatalf("compose error = %v", err)
	}
	extra := h.rsp.GetRequirements().GetExtraResources()
	if got := extra["shared"].GetMatchName(); got != "shared" {
		t.Errorf("shared matchName = %q, want %q", got, "shared")
	}
	if got := extra["subnets"].GetMatchLabels().GetLabels(); got["team"] != "a" {
		t.Errorf("subnets matchLabels = %v", got)
	}

	dup := `
def compose(self):
    self.requireds.shared("ec2.aws.upbound.io/v1beta1", "VPC", name="a", matchName="b")

Composite = BaseComposite(compose)
`
	if _, err := compose(t, dup, testRequest(t)); err == nil {
		t.Error("compose error = nil, want an error for name given twice")
	}
}

func TestUnknownMarksResource(t *testing.T) {
	src := `
def compose(self):
    self.resources.subnet("ec2.aws.upbound.io/v1beta1", "Subnet")
    self.resources.subnet.spec.forProvider.vpcId = Unknown
    if self.resources.subnet.spec.forProvider.vpcId != Unknown:
        fail("Unknown should read back")

Composite = BaseComposite(compose)
`
	h, err := compose(t, src, testRequest(t))
	if err != nil {
		t.Fatalf("compose error = %v", err)
	}
	if !h.c.Resources.Get("subnet").HasUnknowns() {
		t.Error("subnet HasUnknowns() = false, want true")
	}
	spec, _ := h.rsp.GetDesired().GetResources()["subnet"].GetResource().AsMap()["spec"].(map[string]interface{})
	forProvider, _ := spec["forProvider"].(map[string]interface{})
	if v, ok := forProvider["vpcId"]; ok {
		t.Errorf("vpcId = %v, want the Unknown left out of the message", v)
	}
}

func TestInitRunsBeforeCompose(t *testing.T) {
	src := `
def init(self):
    self.prefix = "pre-"

def compose(self):
    self.status.name = self.prefix + self.name

Composite = BaseComposite(compose, init=init)
`
	h, err := compose(t, src, testRequest(t))
	if err != nil {
		t.Fatalf("compose error = %v", err)
	}
	status := h.rsp.GetDesired().GetComposite().GetResource().AsMap()["status"]
	if diff := cmp.Diff(map[string]interface{}{"name": "pre-my-bucket"}, status); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestYamlDocument(t *testing.T) {
	src := `
def compose(self):
    cm = self.resources.config("v1", "ConfigMap")
    cm.data["config.yaml"] = "replicas: 1\n"
    doc = Yaml(cm.data, "config.yaml")
    doc.replicas = 3
    doc.labels = {"app": "web"}
    if Json(Map(a=1)) != '{"a":1}':
        fail("Json encode mismatch: " + Json(Map(a=1)))
    if Yaml("x: [1, 2]").x[1] != 2:
        fail("Yaml decode mismatch")
    if B64Decode(B64Encode("hi")) != "hi":
        fail("base64 round trip")

Composite = BaseComposite(compose)
`
	h, err := compose(t, src, testRequest(t))
	if err != nil {
		t.Fatalf("compose error = %v", err)
	}
	data := h.rsp.GetDesired().GetResources()["config"].GetResource().AsMap()["data"].(map[string]interface{})
	got := data["config.yaml"].(string)
	for _, want := range []string{"replicas: 3", "app: web"} {
		if !strings.Contains(got, want) {
			t.Errorf("config.yaml = %q, want it to contain %q", got, want)
		}
	}
}

func TestComposeError(t *testing.T) {
	src := `
def compose(self):
    fail("boom")

Composite = BaseComposite(compose)
`
	_, err := compose(t, src, testRequest(t))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("compose error = %v, want boom", err)
	}
	if Backtrace(err) == "" {
		t.Error("Backtrace() is empty")
	}
}

func TestComposeCancelled(t *testing.T) {
	src := `
def compose(self):
    while True:
        pass

Composite = BaseComposite(compose)
`
	m, err := Exec("<script>", "<script>", src, nil, nopLogger)
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	u, err := m.Unit("Composite")
	if err != nil {
		t.Fatalf("Unit() error = %v", err)
	}
	comp, err := u.New(newHarness(testRequest(t), nopLogger).c)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = comp.Compose(ctx)
	if err == nil || !strings.Contains(err.Error(), "cancelled") {
		t.Fatalf("Compose() error = %v, want cancellation", err)
	}
}

func TestFrozenGlobals(t *testing.T) {
	src := `
seen = []

def compose(self):
    seen.append(self.name)

Composite = BaseComposite(compose)
`
	_, err := compose(t, src, testRequest(t))
	if err == nil || !strings.Contains(err.Error(), "frozen") {
		t.Fatalf("compose error = %v, want frozen list error", err)
	}
}

func TestModuleUnit(t *testing.T) {
	src := `
def compose(self):
    pass

def helper(self):
    pass

Composite = BaseComposite(compose)
Name = "not a class"
`
	m, err := Exec("pkg.mod", "pkg/mod.star", src, nil, nopLogger)
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}

	tests := map[string]struct {
		name string
		want error
	}{
		"Declared":    {name: "Composite"},
		"Missing":     {name: "Other", want: ErrNotDefined},
		"NotClass":    {name: "Name", want: ErrNotClass},
		"NotSubclass": {name: "helper", want: ErrNotSubclass},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			u, err := m.Unit(tc.name)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Unit(%q) error = %v, want %v", tc.name, err, tc.want)
			}
			if tc.want == nil && u.Name() != "pkg.mod.Composite" {
				t.Errorf("Name() = %q", u.Name())
			}
		})
	}
}

func TestBaseCompositeArity(t *testing.T) {
	src := `
def compose(self, extra):
    pass

Composite = BaseComposite(compose)
`
	_, err := Exec("<script>", "<script>", src, nil, nopLogger)
	if err == nil || !strings.Contains(err.Error(), "exactly one parameter") {
		t.Fatalf("Exec() error = %v, want arity error", err)
	}
}

func TestLoadAndPrint(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	load := func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
		if module != "lib.tags" {
			return nil, errors.New("no such module")
		}
		return starlark.StringDict{"owner": starlark.String("platform")}, nil
	}
	src := `
load("lib.tags", "owner")
print("loaded", owner)

def compose(self):
    pass

Composite = BaseComposite(compose)
`
	m, err := Exec("<script>", "<script>", src, load, logger)
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if diff := cmp.Diff([]string{"lib.tags"}, m.Loads); diff != "" {
		t.Errorf("Loads mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(buf.String(), "loaded platform") {
		t.Errorf("log output = %q, want print message", buf.String())
	}
}

func TestHandleSemantics(t *testing.T) {
	src := `
def compose(self):
    ctx = self.context
    ctx.settings = {"a": 1, "b": {"c": 2}}
    ctx.settings = {"b": {"d": 3}}
    if ctx.settings.a != 1 or ctx.settings.b.c != 2 or ctx.settings.b.d != 3:
        fail("assignment should merge maps: " + str(ctx.settings))
    ctx.settings.b()
    if len(ctx.settings.b) != 0:
        fail("calling a handle should reset it")
    ctx.items = [1, 2]
    ctx.items.append(3)
    ctx.items.extend([4])
    if len(ctx.items) != 4 or ctx.items[-1] != 4:
        fail("list operations")
    ctx.items[0] = None
    if len(ctx.items) != 3:
        fail("assigning None should delete")
    if ctx.nothing:
        fail("absent should be falsy")
    if sorted([k for k in ctx]) != ["items", "settings"]:
        fail("iteration should yield keys")

Composite = BaseComposite(compose)
`
	h, err := compose(t, src, testRequest(t))
	if err != nil {
		t.Fatalf("compose error = %v", err)
	}
	want := map[string]interface{}{
		"settings": map[string]interface{}{"a": float64(1), "b": map[string]interface{}{}},
		"items":    []interface{}{float64(2), float64(3), float64(4)},
	}
	if diff := cmp.Diff(want, h.rsp.GetContext().AsMap()); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}
}
