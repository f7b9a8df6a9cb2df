package loader

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/openfroyo/function-starlark/pkg/composite"
)

const unitSource = `
print("compiled")

def compose(self):
    pass

Composite = BaseComposite(compose)
`

// printCounter counts the print() calls of compiled scripts.
type printCounter struct{ n atomic.Int64 }

func (c *printCounter) Run(_ *zerolog.Event, _ zerolog.Level, msg string) {
	if msg == "compiled" {
		c.n.Add(1)
	}
}

func newTestLoader(t *testing.T, files map[string]string) (*Loader, *printCounter, string) {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		writeModule(t, dir, name, src)
	}
	counter := &printCounter{}
	logger := zerolog.New(io.Discard).Hook(counter)
	return New(logger, WithSearchPath(dir)), counter, dir
}

func writeModule(t *testing.T, dir, name, src string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestResolveInlineCaches(t *testing.T) {
	l, counter, _ := newTestLoader(t, nil)
	ctx := context.Background()

	first, err := l.Resolve(ctx, unitSource)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := l.Resolve(ctx, unitSource)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if first != second {
		t.Error("second Resolve() returned a different unit, want the cached one")
	}
	if got := counter.n.Load(); got != 1 {
		t.Errorf("compiles = %d, want 1", got)
	}
	if got := first.Name(); got != "<script>.Composite" {
		t.Errorf("Name() = %q", got)
	}

	if n := l.Invalidate(unitSource); n != 1 {
		t.Errorf("Invalidate() = %d, want 1", n)
	}
	if _, err := l.Resolve(ctx, unitSource); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := counter.n.Load(); got != 2 {
		t.Errorf("compiles after invalidation = %d, want 2", got)
	}
}

func TestResolveConcurrentMissesCompileOnce(t *testing.T) {
	l, counter, _ := newTestLoader(t, map[string]string{"app/bucket.star": unitSource})

	var wg sync.WaitGroup
	units := make([]composite.Unit, 16)
	for i := range units {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := l.Resolve(context.Background(), "app.bucket.Composite")
			if err != nil {
				t.Errorf("Resolve() error = %v", err)
				return
			}
			units[i] = u
		}(i)
	}
	wg.Wait()

	if got := counter.n.Load(); got != 1 {
		t.Errorf("compiles = %d, want 1", got)
	}
	for i, u := range units {
		if u != units[0] {
			t.Errorf("units[%d] differs from units[0]", i)
		}
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestResolveErrors(t *testing.T) {
	l, _, _ := newTestLoader(t, map[string]string{
		"app/shapes.star": `
def compose(self):
    pass

def helper(self):
    pass

Composite = BaseComposite(compose)
Label = "bucket"
`,
		"app/broken.star": "def compose(self)\n",
		"app/loads.star":  "load(\"app.missing\", \"x\")\n",
	})

	tests := map[string]struct {
		id      string
		kind    error
		message string
	}{
		"NoModule": {
			id:      "Composite",
			kind:    ErrReference,
			message: "Composite class name does not include module: Composite",
		},
		"MissingModule": {
			id:      "app.nothing.Composite",
			kind:    ErrReference,
			message: "Import module exception: No module named 'app.nothing'",
		},
		"InvalidModuleName": {
			id:   "../etc.Composite",
			kind: ErrReference,
		},
		"MissingLoad": {
			id:      "app.loads.Composite",
			kind:    ErrReference,
			message: "Import module exception: No module named 'app.missing'",
		},
		"SyntaxError": {
			id:   "app.broken.Composite",
			kind: ErrSourceExecution,
		},
		"NotDefined": {
			id:      "app.shapes.Bucket",
			kind:    ErrUnitNotFound,
			message: "app.shapes did not define: Bucket",
		},
		"NotClass": {
			id:      "app.shapes.Label",
			kind:    ErrUnitShape,
			message: "app.shapes.Label is not a class",
		},
		"NotSubclass": {
			id:      "app.shapes.helper",
			kind:    ErrUnitShape,
			message: "app.shapes.helper is not a subclass of BaseComposite",
		},
		"InlineSyntaxError": {
			id:   "def compose(self)\n",
			kind: ErrSourceExecution,
		},
		"InlineNotDefined": {
			id:      "x = 1\n",
			kind:    ErrUnitNotFound,
			message: "Function did not define: Composite",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := l.Resolve(context.Background(), tc.id)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("Resolve(%q) error = %v, want %v", tc.id, err, tc.kind)
			}
			if tc.message != "" && err.Error() != tc.message {
				t.Errorf("Resolve(%q) message = %q, want %q", tc.id, err.Error(), tc.message)
			}
		})
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want failures left uncached", l.Len())
	}
}

func TestRegisteredUnits(t *testing.T) {
	l, _, _ := newTestLoader(t, map[string]string{"platform/network.star": unitSource})
	unit := composite.NewUnit("platform.network.VPC", func(context.Context, *composite.Composite) error { return nil })
	if err := l.Register("platform.network.VPC", unit); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := l.Register("VPC", unit); err == nil {
		t.Error("Register() without module should fail")
	}

	got, err := l.Resolve(context.Background(), "platform.network.VPC")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != unit {
		t.Error("Resolve() did not return the registered unit")
	}
	// registered modules shadow script modules
	if _, err := l.Resolve(context.Background(), "platform.network.Composite"); !errors.Is(err, ErrUnitNotFound) {
		t.Errorf("Resolve() error = %v, want ErrUnitNotFound", err)
	}
}

func TestInvalidateDependents(t *testing.T) {
	l, counter, dir := newTestLoader(t, map[string]string{
		"lib/tags.star": "owner = \"platform\"\n",
		"app/bucket.star": `load("lib.tags", "owner")
` + unitSource,
		"app/queue.star":   unitSource,
		"other/topic.star": unitSource,
	})
	ctx := context.Background()
	for _, id := range []string{"app.bucket.Composite", "app.queue.Composite", "other.topic.Composite"} {
		if _, err := l.Resolve(ctx, id); err != nil {
			t.Fatalf("Resolve(%q) error = %v", id, err)
		}
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}

	// a loaded module invalidates the units that loaded it
	if n := l.Invalidate("lib.tags"); n != 1 {
		t.Errorf("Invalidate(lib.tags) = %d, want 1", n)
	}
	writeModule(t, dir, "lib/tags.star", "owner = \"team-a\"\n")
	if _, err := l.Resolve(ctx, "app.bucket.Composite"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := counter.n.Load(); got != 4 {
		t.Errorf("compiles = %d, want 4", got)
	}

	// a package invalidates every module below it
	if n := l.Invalidate("app"); n != 2 {
		t.Errorf("Invalidate(app) = %d, want 2", n)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}

	// a location invalidates the units it defines
	if n := l.Invalidate("other.topic"); n != 1 {
		t.Errorf("Invalidate(other.topic) = %d, want 1", n)
	}
	if n := l.Invalidate("nothing"); n != 0 {
		t.Errorf("Invalidate(nothing) = %d, want 0", n)
	}
}

func TestLoadCycle(t *testing.T) {
	l, _, _ := newTestLoader(t, map[string]string{
		"a/one.star": "load(\"a.two\", \"x\")\n" + unitSource,
		"a/two.star": "load(\"a.one\", \"Composite\")\nx = 1\n",
	})
	_, err := l.Resolve(context.Background(), "a.one.Composite")
	if !errors.Is(err, ErrSourceExecution) {
		t.Fatalf("Resolve() error = %v, want ErrSourceExecution", err)
	}
}

func TestResolveCancelled(t *testing.T) {
	l, _, _ := newTestLoader(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Resolve(ctx, "app.slow.Composite"); err == nil {
		t.Error("Resolve() with a cancelled context should fail")
	}
}

func TestWatchInvalidates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l, _, dir := newTestLoader(t, map[string]string{"app/bucket.star": unitSource})
	if _, err := l.Resolve(context.Background(), "app.bucket.Composite"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for l.Len() != 0 && time.Now().Before(deadline) {
		writeModule(t, dir, "app/bucket.star", unitSource+"\n# touched\n")
		time.Sleep(50 * time.Millisecond)
	}
	if l.Len() != 0 {
		t.Error("Watch() did not invalidate the changed module")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}
