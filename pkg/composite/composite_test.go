package composite

import (
	"context"
	"errors"
	"testing"
	"time"

	fnv1 "github.com/crossplane/function-sdk-go/proto/v1"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openfroyo/function-starlark/pkg/value"
)

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct() error = %v", err)
	}
	return s
}

func newTestComposite(t *testing.T, req *fnv1.RunFunctionRequest) (*Composite, *fnv1.RunFunctionResponse) {
	t.Helper()
	rsp := &fnv1.RunFunctionResponse{}
	c := New(
		value.NewTree(req, "Function Request", value.ReadOnly()),
		value.NewTree(rsp, "Function Response"),
		zerolog.New(nil).Level(zerolog.Disabled),
	)
	return c, rsp
}

func observedComposite(t *testing.T) *fnv1.RunFunctionRequest {
	return &fnv1.RunFunctionRequest{
		Meta: &fnv1.RequestMeta{Tag: "abcdef0123"},
		Observed: &fnv1.State{
			Composite: &fnv1.Resource{
				Resource: mustStruct(t, map[string]interface{}{
					"apiVersion": "example.org/v1",
					"kind":       "XBucket",
					"metadata":   map[string]interface{}{"name": "my-bucket"},
					"spec":       map[string]interface{}{"region": "eu-west-1"},
					"status": map[string]interface{}{
						"phase": "Creating",
						"conditions": []interface{}{
							map[string]interface{}{
								"type":               "Synced",
								"status":             "True",
								"reason":             "ReconcileSuccess",
								"lastTransitionTime": "2024-05-01T10:00:00Z",
							},
						},
					},
				}),
				ConnectionDetails: map[string][]byte{"endpoint": []byte("observed.example.org")},
			},
			Resources: map[string]*fnv1.Resource{
				"vpc": {
					Resource: mustStruct(t, map[string]interface{}{
						"apiVersion": "ec2.aws.upbound.io/v1beta1",
						"kind":       "VPC",
						"metadata": map[string]interface{}{
							"annotations": map[string]interface{}{ExternalNameAnnotation: "vpc-0123"},
						},
						"status": map[string]interface{}{
							"conditions": []interface{}{
								map[string]interface{}{"type": "Ready", "status": "True", "reason": "Available"},
							},
						},
					}),
					Ready: fnv1.Ready_READY_TRUE,
				},
			},
		},
	}
}

func TestCompositeAccessors(t *testing.T) {
	c, _ := newTestComposite(t, observedComposite(t))

	if got := c.APIVersion(); got != "example.org/v1" {
		t.Errorf("APIVersion() = %q", got)
	}
	if got := c.Kind(); got != "XBucket" {
		t.Errorf("Kind() = %q", got)
	}
	if got := c.Name(); got != "my-bucket" {
		t.Errorf("Name() = %q", got)
	}
	if got := c.Tag(); got != "abcdef0123" {
		t.Errorf("Tag() = %q", got)
	}
	region, _ := c.Spec.Field("region").Value()
	if region.Str() != "eu-west-1" {
		t.Errorf("spec.region = %v", region)
	}
	if err := c.Spec.Field("region").Assign(value.String("x")); !errors.Is(err, value.ErrReadOnly) {
		t.Errorf("writing the observed spec error = %v, want read-only", err)
	}
}

func TestStatusFallsBackToObserved(t *testing.T) {
	c, rsp := newTestComposite(t, observedComposite(t))

	phase, err := c.Status.Get("phase")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if phase.Str() != "Creating" {
		t.Errorf("phase = %v, want observed Creating", phase)
	}

	if err := c.Status.Set(value.String("Ready"), "phase"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	phase, _ = c.Status.Get("phase")
	if phase.Str() != "Ready" {
		t.Errorf("phase = %v, want desired Ready", phase)
	}
	got := rsp.GetDesired().GetComposite().GetResource().GetFields()["status"].GetStructValue().GetFields()["phase"].GetStringValue()
	if got != "Ready" {
		t.Errorf("desired status.phase = %q", got)
	}
}

func TestConditionRoundTrip(t *testing.T) {
	c, rsp := newTestComposite(t, observedComposite(t))

	synced := c.Conditions.Get("Synced")
	if synced.Status() != StatusTrue {
		t.Errorf("observed Synced status = %v", synced.Status())
	}
	if ts, ok := synced.LastTransitionTime(); !ok || !ts.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("LastTransitionTime() = %v, %v", ts, ok)
	}

	ready := c.Conditions.Get("DatabaseReady")
	status := StatusFalse
	reason := "Provisioning"
	message := "waiting for the database"
	claim := true
	if err := ready.Update(ConditionUpdate{Status: &status, Reason: &reason, Message: &message, Claim: &claim}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if ready.Status() != StatusFalse || ready.Reason() != reason || ready.Message() != message {
		t.Errorf("read back = %v %q %q", ready.Status(), ready.Reason(), ready.Message())
	}
	if got := ready.Claim(); got == nil || !*got {
		t.Errorf("Claim() = %v, want true", got)
	}

	if len(rsp.GetConditions()) != 1 {
		t.Fatalf("response conditions = %d, want 1", len(rsp.GetConditions()))
	}
	cond := rsp.GetConditions()[0]
	if cond.GetType() != "DatabaseReady" || cond.GetStatus() != fnv1.Status_STATUS_CONDITION_FALSE ||
		cond.GetReason() != reason || cond.GetMessage() != message ||
		cond.GetTarget() != fnv1.Target_TARGET_COMPOSITE_AND_CLAIM {
		t.Errorf("response condition = %v", cond)
	}

	// Updating again must not append a second condition.
	if err := ready.SetStatus(StatusTrue); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if len(rsp.GetConditions()) != 1 || rsp.GetConditions()[0].GetStatus() != fnv1.Status_STATUS_CONDITION_TRUE {
		t.Errorf("response conditions = %v", rsp.GetConditions())
	}

	if got := c.Conditions.Types(); !cmp.Equal(got, []string{"Synced", "DatabaseReady"}) {
		t.Errorf("Types() = %v", got)
	}
}

func TestConditionSeededFromObserved(t *testing.T) {
	c, rsp := newTestComposite(t, observedComposite(t))

	if err := c.Conditions.Get("Synced").SetMessage("all good"); err != nil {
		t.Fatalf("SetMessage() error = %v", err)
	}
	cond := rsp.GetConditions()[0]
	if cond.GetStatus() != fnv1.Status_STATUS_CONDITION_TRUE || cond.GetReason() != "ReconcileSuccess" {
		t.Errorf("seeded condition = %v", cond)
	}
}

func TestConditionSeedKeepsObservedTarget(t *testing.T) {
	req := observedComposite(t)
	claimed, err := structpb.NewValue(map[string]interface{}{
		"type":   "Claimed",
		"status": "True",
		"reason": "Bound",
		"target": "TARGET_COMPOSITE_AND_CLAIM",
	})
	if err != nil {
		t.Fatalf("NewValue() error = %v", err)
	}
	conditions := req.Observed.Composite.Resource.Fields["status"].GetStructValue().Fields["conditions"].GetListValue()
	conditions.Values = append(conditions.Values, claimed)
	c, rsp := newTestComposite(t, req)

	if err := c.Conditions.Get("Claimed").SetMessage("bound to claim"); err != nil {
		t.Fatalf("SetMessage() error = %v", err)
	}
	if err := c.Conditions.Get("Synced").SetMessage("all good"); err != nil {
		t.Fatalf("SetMessage() error = %v", err)
	}
	got := map[string]fnv1.Target{}
	for _, cond := range rsp.GetConditions() {
		got[cond.GetType()] = cond.GetTarget()
	}
	want := map[string]fnv1.Target{
		"Claimed": fnv1.Target_TARGET_COMPOSITE_AND_CLAIM,
		"Synced":  fnv1.Target_TARGET_UNSPECIFIED,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("condition targets mismatch (-want +got):\n%s", diff)
	}
	if claim := c.Conditions.Get("Claimed").Claim(); claim == nil || !*claim {
		t.Errorf("Claim() = %v, want true", claim)
	}
}

func TestResourceConditionsAreReadOnly(t *testing.T) {
	c, _ := newTestComposite(t, observedComposite(t))

	vpc := c.Resources.Get("vpc")
	if vpc.Conditions.Get("Ready").Status() != StatusTrue {
		t.Errorf("vpc Ready = %v", vpc.Conditions.Get("Ready").Status())
	}
	if err := vpc.Conditions.Get("Ready").SetStatus(StatusFalse); !errors.Is(err, ErrReadOnly) {
		t.Errorf("SetStatus() error = %v, want ErrReadOnly", err)
	}
}

func TestResourceLifecycle(t *testing.T) {
	c, rsp := newTestComposite(t, observedComposite(t))

	vpc := c.Resources.Get("vpc")
	if vpc.Exists() {
		t.Fatal("vpc should not be desired yet")
	}
	if err := vpc.Reset(ResourceFields{APIVersion: "ec2.aws.upbound.io/v1beta1", Kind: "VPC"}); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if err := vpc.Spec().Field("forProvider", "cidrBlock").Assign(value.String("10.0.0.0/16")); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	if got := vpc.ExternalName(); got != "vpc-0123" {
		t.Errorf("ExternalName() = %q, want the observed annotation", got)
	}
	if vpc.Ready() != ReadyTrue {
		t.Errorf("Ready() = %v, want observed READY_TRUE", vpc.Ready())
	}
	if vpc.DesiredReady() != ReadyUnspecified {
		t.Errorf("DesiredReady() = %v", vpc.DesiredReady())
	}

	if !c.Resources.Has("vpc") || c.Resources.Len() != 1 {
		t.Errorf("Has/Len = %v/%d", c.Resources.Has("vpc"), c.Resources.Len())
	}
	body := rsp.GetDesired().GetResources()["vpc"].GetResource().AsMap()
	if body["kind"] != "VPC" {
		t.Errorf("desired body = %v", body)
	}

	if err := c.Resources.Delete("vpc"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if c.Resources.Has("vpc") {
		t.Error("vpc still desired after Delete()")
	}
}

func TestConnectionFallback(t *testing.T) {
	c, _ := newTestComposite(t, observedComposite(t))

	got, ok := c.Connection.Get("endpoint")
	if !ok || string(got) != "observed.example.org" {
		t.Errorf("Get() = %q, %v", got, ok)
	}
	if err := c.Connection.Set("endpoint", []byte("desired.example.org")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, _ = c.Connection.Get("endpoint")
	if string(got) != "desired.example.org" {
		t.Errorf("Get() after Set = %q", got)
	}

	extra := c.Requireds.Get("missing").Item(0)
	if err := extra.Connection.Set("k", nil); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Set() on required resource error = %v, want ErrReadOnly", err)
	}
}

func TestRequireds(t *testing.T) {
	req := observedComposite(t)
	req.ExtraResources = map[string]*fnv1.Resources{
		"network": {Items: []*fnv1.Resource{
			{Resource: mustStruct(t, map[string]interface{}{"apiVersion": "v1", "kind": "Network", "spec": map[string]interface{}{"cidr": "10.1.0.0/16"}})},
		}},
	}
	c, rsp := newTestComposite(t, req)

	network := c.Requireds.Get("network")
	if err := network.Select(Selector{APIVersion: "v1", Kind: "Network", MatchLabels: map[string]string{"env": "prod"}}); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	sel := rsp.GetRequirements().GetExtraResources()["network"]
	if sel.GetKind() != "Network" || sel.GetMatchLabels().GetLabels()["env"] != "prod" {
		t.Errorf("selector = %v", sel)
	}
	got, ok := network.Selector()
	if !ok || got.MatchLabels["env"] != "prod" {
		t.Errorf("Selector() = %v, %v", got, ok)
	}

	if network.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", network.Len())
	}
	cidr, _ := network.Item(0).Spec().Field("cidr").Value()
	if cidr.Str() != "10.1.0.0/16" {
		t.Errorf("cidr = %v", cidr)
	}
	placeholder := network.Item(3)
	if placeholder.Exists() || placeholder.Kind() != "" {
		t.Errorf("Item(3) should be an empty placeholder")
	}

	if names := c.Requireds.Names(); !cmp.Equal(names, []string{"network"}) {
		t.Errorf("Names() = %v", names)
	}
}

func TestResultsAndTTL(t *testing.T) {
	c, rsp := newTestComposite(t, observedComposite(t))

	if _, err := c.Results.Add(ResultSpec{Severity: SeverityWarning, Message: "slow", Reason: "Latency"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if c.Results.HasFatal() {
		t.Error("HasFatal() = true")
	}
	if _, err := c.Results.Add(ResultSpec{Severity: SeverityFatal, Message: "boom"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !c.Results.HasFatal() {
		t.Error("HasFatal() = false")
	}
	if rsp.GetResults()[0].GetSeverity() != fnv1.Severity_SEVERITY_WARNING || rsp.GetResults()[0].GetReason() != "Latency" {
		t.Errorf("results[0] = %v", rsp.GetResults()[0])
	}

	if err := c.SetTTL(5 * time.Minute); err != nil {
		t.Fatalf("SetTTL() error = %v", err)
	}
	if c.TTL() != 5*time.Minute || rsp.GetMeta().GetTtl().AsDuration() != 5*time.Minute {
		t.Errorf("TTL() = %v", c.TTL())
	}
	if err := c.SetReady(ReadyFalse); err != nil {
		t.Fatalf("SetReady() error = %v", err)
	}
	if rsp.GetDesired().GetComposite().GetReady() != fnv1.Ready_READY_FALSE {
		t.Errorf("ready = %v", rsp.GetDesired().GetComposite().GetReady())
	}
}

func TestCredentials(t *testing.T) {
	req := observedComposite(t)
	req.Credentials = map[string]*fnv1.Credentials{
		"aws": {Source: &fnv1.Credentials_CredentialData{CredentialData: &fnv1.CredentialData{
			Data: map[string][]byte{"key": []byte("AKIA")},
		}}},
	}
	c, _ := newTestComposite(t, req)

	if !c.Credentials.Has("aws") || c.Credentials.Has("gcp") {
		t.Error("Has() mismatch")
	}
	if got, ok := c.Credentials.Get("aws", "key"); !ok || string(got) != "AKIA" {
		t.Errorf("Get() = %q, %v", got, ok)
	}
	if got := c.Credentials.Data("aws"); string(got["key"]) != "AKIA" {
		t.Errorf("Data() = %v", got)
	}
}

type asyncComposition struct{ err error }

func (a asyncComposition) Compose(context.Context) error { return errors.New("Compose should not be called") }

func (a asyncComposition) ComposeAsync(context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- a.err }()
	return ch
}

func TestAwait(t *testing.T) {
	want := errors.New("async failure")
	if err := Await(context.Background(), asyncComposition{err: want}); !errors.Is(err, want) {
		t.Errorf("Await() = %v, want %v", err, want)
	}

	called := false
	unit := NewUnit("inline", func(ctx context.Context, c *Composite) error {
		called = true
		return nil
	})
	comp, err := unit.New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := Await(context.Background(), comp); err != nil || !called {
		t.Errorf("Await() = %v, called = %v", err, called)
	}
}
