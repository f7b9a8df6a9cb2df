package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"golang.org/x/sync/singleflight"

	"github.com/openfroyo/function-starlark/pkg/composite"
	"github.com/openfroyo/function-starlark/pkg/script"
	"github.com/openfroyo/function-starlark/pkg/telemetry"
)

const (
	// InlineModule is the module name of inline sources.
	InlineModule = "<script>"
	// InlineUnit is the global an inline source must bind its unit to.
	InlineUnit = "Composite"
	// Ext is the file extension of script modules.
	Ext = ".star"
)

// Loader resolves composition identifiers to units and caches them. An
// identifier is either inline source (it contains a newline) or a dotted
// reference "a.b.Unit" naming the global Unit of module a.b, which is a
// registered Go module or the file a/b.star on the search path.
type Loader struct {
	logger     zerolog.Logger
	searchPath []string
	metrics    *telemetry.Metrics

	mu         sync.RWMutex
	cache      map[string]*entry
	modules    map[string]*module
	registered map[string]map[string]composite.Unit
	generation uint64

	group singleflight.Group
}

// entry is a resolved unit.
type entry struct {
	id       string
	location string
	unit     composite.Unit
	// deps are the modules the unit's module loaded, transitively.
	deps []string
}

// module is a compiled script module.
type module struct {
	m    *script.Module
	deps []string
}

// Option configures a Loader.
type Option func(*Loader)

// WithSearchPath sets the directories searched for script modules, in order.
func WithSearchPath(dirs ...string) Option {
	return func(l *Loader) { l.searchPath = append(l.searchPath, dirs...) }
}

// WithMetrics records compile and cache metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// New creates a loader.
func New(logger zerolog.Logger, opts ...Option) *Loader {
	l := &Loader{
		logger:     logger.With().Str("component", "loader").Logger(),
		cache:      make(map[string]*entry),
		modules:    make(map[string]*module),
		registered: make(map[string]map[string]composite.Unit),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register makes a Go unit resolvable as id, e.g. "platform.network.VPC".
// Registered modules shadow script modules of the same name.
func (l *Loader) Register(id string, u composite.Unit) error {
	location, name, ok := split(id)
	if !ok {
		return fmt.Errorf("unit id does not include module: %s", id)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.registered[location] == nil {
		l.registered[location] = make(map[string]composite.Unit)
	}
	l.registered[location][name] = u
	return nil
}

// SearchPath returns the module search path.
func (l *Loader) SearchPath() []string { return l.searchPath }

// Len returns the number of cached units.
func (l *Loader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache)
}

// Resolve returns the unit named by id. Concurrent misses for the same id
// compile once.
func (l *Loader) Resolve(ctx context.Context, id string) (composite.Unit, error) {
	l.mu.RLock()
	e, ok := l.cache[id]
	l.mu.RUnlock()
	l.metrics.RecordCacheLookup(ok)
	if ok {
		return e.unit, nil
	}

	ch := l.group.DoChan(id, func() (interface{}, error) {
		return l.resolve(id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entry).unit, nil
	}
}

func (l *Loader) resolve(id string) (*entry, error) {
	l.mu.RLock()
	gen := l.generation
	l.mu.RUnlock()

	var (
		e   *entry
		err error
	)
	if strings.Contains(id, "\n") {
		e, err = l.resolveInline(id)
	} else {
		e, err = l.resolveReference(id)
	}
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if l.generation == gen {
		l.cache[id] = e
	}
	size := len(l.cache)
	l.mu.Unlock()
	l.metrics.SetCacheSize(size)

	l.logger.Debug().Str("unit", e.unit.Name()).Strs("deps", e.deps).Msg("Unit loaded")
	return e, nil
}

func (l *Loader) resolveInline(src string) (*entry, error) {
	m, err := l.compile(InlineModule, InlineModule, []byte(src), nil)
	if err != nil {
		var re *ResolveError
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, resolveError(ErrSourceExecution, err, fmt.Sprintf("Exec exception: %s", err))
	}
	u, err := m.m.Unit(InlineUnit)
	if err != nil {
		return nil, shapeError("Function", InlineUnit, InlineUnit, err)
	}
	return &entry{id: src, location: InlineModule, unit: u, deps: m.deps}, nil
}

func (l *Loader) resolveReference(id string) (*entry, error) {
	location, name, ok := split(id)
	if !ok {
		return nil, resolveError(ErrReference, nil, fmt.Sprintf("Composite class name does not include module: %s", id))
	}

	l.mu.RLock()
	units, isRegistered := l.registered[location]
	l.mu.RUnlock()
	if isRegistered {
		u, ok := units[name]
		if !ok {
			return nil, resolveError(ErrUnitNotFound, nil, fmt.Sprintf("%s did not define: %s", location, name))
		}
		return &entry{id: id, location: location, unit: u}, nil
	}

	m, err := l.module(location, nil)
	if err != nil {
		return nil, err
	}
	u, err := m.m.Unit(name)
	if err != nil {
		return nil, shapeError(location, name, id, err)
	}
	return &entry{id: id, location: location, unit: u, deps: m.deps}, nil
}

func shapeError(location, name, id string, err error) *ResolveError {
	switch {
	case errors.Is(err, script.ErrNotDefined):
		return resolveError(ErrUnitNotFound, err, fmt.Sprintf("%s did not define: %s", location, name))
	case errors.Is(err, script.ErrNotSubclass):
		return resolveError(ErrUnitShape, err, fmt.Sprintf("%s is not a subclass of BaseComposite", id))
	}
	return resolveError(ErrUnitShape, err, fmt.Sprintf("%s is not a class", id))
}

// module returns the compiled script module name. stack holds the modules
// being compiled by the current load chain.
func (l *Loader) module(name string, stack []string) (*module, error) {
	l.mu.RLock()
	m, ok := l.modules[name]
	l.mu.RUnlock()
	if ok {
		return m, nil
	}
	for _, s := range stack {
		if s == name {
			return nil, resolveError(ErrSourceExecution, nil,
				fmt.Sprintf("Import module exception: cycle in load graph: %s -> %s", strings.Join(stack, " -> "), name))
		}
	}

	path, err := l.find(name)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, resolveError(ErrReference, err, fmt.Sprintf("Import module exception: %s", err))
	}

	l.mu.RLock()
	gen := l.generation
	l.mu.RUnlock()

	m, err = l.compile(name, path, src, stack)
	if err != nil {
		var re *ResolveError
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, resolveError(ErrSourceExecution, err, fmt.Sprintf("Import module exception: %s", err))
	}

	l.mu.Lock()
	if l.generation == gen {
		l.modules[name] = m
	}
	l.mu.Unlock()
	return m, nil
}

// compile runs a script. load() statements resolve through the loader and
// record the loaded modules as dependencies.
func (l *Loader) compile(name, filename string, src []byte, stack []string) (*module, error) {
	deps := map[string]bool{}
	var loadErr error
	load := func(_ *starlark.Thread, dep string) (starlark.StringDict, error) {
		d, err := l.module(dep, append(append([]string{}, stack...), name))
		if err != nil {
			if loadErr == nil {
				loadErr = err
			}
			return nil, err
		}
		deps[dep] = true
		for _, x := range d.deps {
			deps[x] = true
		}
		return d.m.Globals, nil
	}

	m, err := script.Exec(name, filename, src, load, l.logger)
	l.metrics.RecordCompile(err)
	if err != nil {
		// a failed load is reported as the failure of the loaded module
		var re *ResolveError
		if errors.As(loadErr, &re) {
			return nil, re
		}
		l.logger.Debug().Err(err).Str("module", name).Str("backtrace", script.Backtrace(err)).Msg("Module failed to compile")
		return nil, err
	}

	sorted := make([]string, 0, len(deps))
	for d := range deps {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)
	return &module{m: m, deps: sorted}, nil
}

// find locates the file of a dotted module on the search path.
func (l *Loader) find(name string) (string, error) {
	for _, seg := range strings.Split(name, ".") {
		if !validSegment(seg) {
			return "", resolveError(ErrReference, nil, fmt.Sprintf("Import module exception: invalid module name %q", name))
		}
	}
	rel := filepath.Join(strings.Split(name, ".")...) + Ext
	for _, dir := range l.searchPath {
		path := filepath.Join(dir, rel)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", resolveError(ErrReference, nil, fmt.Sprintf("Import module exception: No module named '%s'", name))
}

func validSegment(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '-':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// split splits "a.b.Unit" into "a.b" and "Unit".
func split(id string) (string, string, bool) {
	i := strings.LastIndex(id, ".")
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}

// Invalidate drops every cached unit whose id or module is id, whose module
// lies in package id, or whose module loaded id. It returns the number of
// units dropped. The removal is atomic with respect to Resolve.
func (l *Loader) Invalidate(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.generation++
	n := 0
	for key, e := range l.cache {
		if e.id == id || matches(e.location, e.deps, id) {
			delete(l.cache, key)
			n++
		}
	}
	for name, m := range l.modules {
		if matches(name, m.deps, id) {
			delete(l.modules, name)
		}
	}
	l.metrics.RecordInvalidation(n, len(l.cache))
	if n > 0 {
		l.logger.Info().Str("id", id).Int("units", n).Msg("Units invalidated")
	}
	return n
}

func matches(location string, deps []string, id string) bool {
	if location == id || strings.HasPrefix(location, id+".") {
		return true
	}
	for _, d := range deps {
		if d == id || strings.HasPrefix(d, id+".") {
			return true
		}
	}
	return false
}
