package packages

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/tools/cache"
)

const label = "function-starlark.openfroyo.io/package"

// recorder records invalidated ids.
type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) Invalidate(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return 1
}

func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.ids
	r.ids = nil
	sort.Strings(ids)
	return ids
}

func newController(t *testing.T) (*Controller, *recorder, string) {
	t.Helper()
	dir := t.TempDir()
	rec := &recorder{}
	c := NewController(fake.NewSimpleClientset(), rec, zerolog.Nop(), Options{Label: label, Dir: dir})
	return c, rec, dir
}

func configMap(name, version string, labels map[string]string, data map[string]string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:            name,
			Namespace:       "crossplane-system",
			ResourceVersion: version,
			Labels:          labels,
		},
		Data: data,
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return string(b)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestParsePackage(t *testing.T) {
	tests := map[string]struct {
		name    string
		want    []string
		wantErr bool
	}{
		"TopLevel": {name: "", want: nil},
		"Nested":   {name: "platform.network", want: []string{"platform", "network"}},
		"Dash":     {name: "platform.net-work", wantErr: true},
		"Digit":    {name: "1platform", wantErr: true},
		"Empty":    {name: "platform..network", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParsePackage(tc.name)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParsePackage(%q) error = %v, wantErr %v", tc.name, err, tc.wantErr)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ParsePackage(%q) mismatch (-want +got):\n%s", tc.name, diff)
			}
		})
	}
}

func TestCreateUpdateDelete(t *testing.T) {
	c, rec, dir := newController(t)
	pkgDir := filepath.Join(dir, "platform", "network")

	v1 := configMap("network", "1", map[string]string{label: "platform.network"}, map[string]string{
		"vpc.star":    "Composite = 1\n",
		"subnet.star": "x = 1\n",
		"README.md":   "docs",
	})
	c.onAdd(v1)

	if got := readFile(t, filepath.Join(pkgDir, "vpc.star")); got != "Composite = 1\n" {
		t.Errorf("vpc.star = %q", got)
	}
	if !exists(filepath.Join(pkgDir, "README.md")) {
		t.Error("README.md not written")
	}
	if diff := cmp.Diff([]string{"platform.network.subnet", "platform.network.vpc"}, rec.take()); diff != "" {
		t.Errorf("create invalidations mismatch (-want +got):\n%s", diff)
	}

	v2 := configMap("network", "2", map[string]string{label: "platform.network"}, map[string]string{
		"vpc.star":  "Composite = 2\n",
		"README.md": "docs",
	})
	c.onUpdate(v1, v2)

	if got := readFile(t, filepath.Join(pkgDir, "vpc.star")); got != "Composite = 2\n" {
		t.Errorf("vpc.star = %q after update", got)
	}
	if exists(filepath.Join(pkgDir, "subnet.star")) {
		t.Error("subnet.star should be removed")
	}
	if diff := cmp.Diff([]string{"platform.network.subnet", "platform.network.vpc"}, rec.take()); diff != "" {
		t.Errorf("update invalidations mismatch (-want +got):\n%s", diff)
	}

	// a resync delivers the same version
	c.onUpdate(v2, v2)
	if ids := rec.take(); len(ids) != 0 {
		t.Errorf("resync invalidated %v", ids)
	}

	c.onDelete(v2)
	if exists(filepath.Join(dir, "platform")) {
		t.Error("empty package directories should be pruned")
	}
	if !exists(dir) {
		t.Error("packages directory itself should be kept")
	}
	want := []string{"platform", "platform.network", "platform.network.vpc"}
	if diff := cmp.Diff(want, rec.take()); diff != "" {
		t.Errorf("delete invalidations mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateMovesPackage(t *testing.T) {
	c, rec, dir := newController(t)

	old := configMap("lib", "1", map[string]string{label: "lib"}, map[string]string{"tags.star": "owner = 1\n"})
	c.onAdd(old)
	rec.take()

	moved := configMap("lib", "2", map[string]string{label: "shared.lib"}, map[string]string{"tags.star": "owner = 1\n"})
	c.onUpdate(old, moved)

	if exists(filepath.Join(dir, "lib")) {
		t.Error("old package directory should be removed")
	}
	if !exists(filepath.Join(dir, "shared", "lib", "tags.star")) {
		t.Error("file not written to the new package")
	}
	want := []string{"lib", "lib.tags", "shared.lib.tags"}
	if diff := cmp.Diff(want, rec.take()); diff != "" {
		t.Errorf("move invalidations mismatch (-want +got):\n%s", diff)
	}
}

func TestSecretsAndTopLevel(t *testing.T) {
	c, rec, dir := newController(t)

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:            "helpers",
			Namespace:       "crossplane-system",
			ResourceVersion: "1",
			Labels:          map[string]string{label: ""},
		},
		Data: map[string][]byte{"helpers.star": []byte("token = 'x'\n")},
	}
	c.onAdd(secret)
	if got := readFile(t, filepath.Join(dir, "helpers.star")); got != "token = 'x'\n" {
		t.Errorf("helpers.star = %q", got)
	}

	c.onDelete(cache.DeletedFinalStateUnknown{Key: "crossplane-system/helpers", Obj: secret})
	if exists(filepath.Join(dir, "helpers.star")) {
		t.Error("helpers.star should be deleted")
	}
	if diff := cmp.Diff([]string{"helpers", "helpers"}, rec.take()); diff != "" {
		t.Errorf("invalidations mismatch (-want +got):\n%s", diff)
	}
}

func TestIgnoresInvalidObjects(t *testing.T) {
	c, rec, dir := newController(t)

	c.onAdd(configMap("bad", "1", map[string]string{label: "not-valid"}, map[string]string{"a.star": ""}))
	c.onAdd(configMap("unlabelled", "1", nil, map[string]string{"a.star": ""}))
	c.onAdd(configMap("traversal", "1", map[string]string{label: "ok"}, map[string]string{"..": ""}))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "ok" {
		t.Errorf("entries = %v, want only the ok package", entries)
	}
	if ids := rec.take(); len(ids) != 0 {
		t.Errorf("invalidations = %v, want none", ids)
	}
}

func TestRunWatchesConfigMaps(t *testing.T) {
	client := fake.NewSimpleClientset()
	rec := &recorder{}
	dir := t.TempDir()
	c := NewController(client, rec, zerolog.Nop(), Options{Label: label, Dir: dir})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the fake clientset drops events between list and watch, so the object
	// is created before the informers list
	cm := configMap("vpc", "", map[string]string{label: "platform"}, map[string]string{"vpc.star": "x = 1\n"})
	if _, err := client.CoreV1().ConfigMaps(cm.Namespace).Create(ctx, cm, metav1.CreateOptions{}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	path := filepath.Join(dir, "platform", "vpc.star")
	deadline := time.Now().Add(5 * time.Second)
	for !exists(path) && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if !exists(path) {
		t.Error("controller did not write the created ConfigMap")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not stop in time")
	}
	if diff := cmp.Diff([]string{"platform.vpc"}, rec.take()); diff != "" {
		t.Errorf("invalidations mismatch (-want +got):\n%s", diff)
	}
}
