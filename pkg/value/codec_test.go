package value

import (
	"testing"

	fnv1 "github.com/crossplane/function-sdk-go/proto/v1"
)

func TestOpenYAMLCommitsBack(t *testing.T) {
	h, err := NewMap(Map(map[string]Value{
		"data": Map(map[string]Value{"config.yaml": String("a: 1\n")}),
	}))
	if err != nil {
		t.Fatalf("NewMap() error = %v", err)
	}
	target := h.Field("data", "config.yaml")

	doc, err := Open(target, YAML)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := doc.Field("b").Assign(Int(2)); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	again, err := Open(target, YAML)
	if err != nil {
		t.Fatalf("Open() again error = %v", err)
	}
	if v, _ := again.Field("b").Value(); v.Number() != 2 {
		t.Errorf("second Open() did not return the same document, b = %v", v)
	}

	if err := h.Tree().Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	got, _ := target.Value()
	if got.Str() != "a: 1\nb: 2\n" {
		t.Errorf("committed = %q", got.Str())
	}
}

func TestOpenJSONOnAbsentField(t *testing.T) {
	rsp := &fnv1.RunFunctionResponse{}
	tree := NewTree(rsp, "Function Response")
	target := tree.Root().Field("desired", "composite", "resource", "metadata", "annotations", "settings")

	doc, err := Open(target, JSON)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := doc.Field("mode").Assign(String("fast")); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if err := tree.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	got, _ := target.Value()
	if got.Str() != `{"mode":"fast"}` {
		t.Errorf("committed = %q", got.Str())
	}
}

func TestOpenReadOnlyIsNotCommitted(t *testing.T) {
	req := &fnv1.RunFunctionRequest{
		Observed: &fnv1.State{Composite: &fnv1.Resource{
			Resource: mustStruct(t, map[string]interface{}{"spec": map[string]interface{}{"values": "x: 1"}}),
		}},
	}
	tree := NewTree(req, "Function Request", ReadOnly())
	doc, err := Open(tree.Root().Field("observed", "composite", "resource", "spec", "values"), YAML)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if v, _ := doc.Field("x").Value(); v.Number() != 1 {
		t.Errorf("x = %v, want 1", v)
	}
	if err := doc.Field("y").Assign(Int(2)); err != nil {
		t.Fatalf("document of a read-only tree should accept writes, got %v", err)
	}
	if err := tree.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if got := req.GetObserved().GetComposite().GetResource().GetFields()["spec"].GetStructValue().GetFields()["values"].GetStringValue(); got != "x: 1" {
		t.Errorf("read-only target changed to %q", got)
	}
}

func TestOpenRejectsScalarDocuments(t *testing.T) {
	h, err := NewMap(Map(map[string]Value{"s": String("just a string")}))
	if err != nil {
		t.Fatalf("NewMap() error = %v", err)
	}
	if _, err := Open(h.Field("s"), YAML); !IsTypeError(err) {
		t.Errorf("Open() error = %v, want type error", err)
	}
}

func TestOpenUnknownMarksTarget(t *testing.T) {
	rsp := &fnv1.RunFunctionResponse{}
	tree := NewTree(rsp, "Function Response")
	resource := tree.Root().Field("desired", "resources", "cm", "resource")
	target := resource.Field("data", "config.yaml")

	doc, err := Open(target, YAML)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := doc.Field("endpoint").Assign(Unknown()); err != nil {
		t.Fatalf("Assign(Unknown) error = %v", err)
	}
	if err := doc.Field("port").Assign(Int(5432)); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if err := tree.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if !HasUnknowns(resource) {
		t.Error("HasUnknowns(resource) = false, want true")
	}
	if got, _ := target.Value(); !got.IsUnknown() {
		t.Errorf("target = %v, want unknown", got)
	}
	data := rsp.GetDesired().GetResources()["cm"].GetResource().GetFields()["data"].GetStructValue()
	if _, ok := data.GetFields()["config.yaml"]; ok {
		t.Errorf("partial document reached the message: %v", data)
	}
}
