package script

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"

	"github.com/openfroyo/function-starlark/pkg/composite"
)

func init() {
	// Units are ordinary programs: top-level loops and ifs, sets, while
	// loops and recursion are all allowed.
	resolve.AllowSet = true
	resolve.AllowGlobalReassign = true
	resolve.AllowRecursion = true
}

var (
	// ErrNotDefined means the module has no global of the requested name.
	ErrNotDefined = errors.New("not defined")
	// ErrNotClass means the global is not callable.
	ErrNotClass = errors.New("not a class")
	// ErrNotSubclass means the global is callable but not a BaseComposite
	// declaration.
	ErrNotSubclass = errors.New("not a subclass of BaseComposite")
)

// LoadFunc resolves a load() statement to the globals of another module.
type LoadFunc func(thread *starlark.Thread, module string) (starlark.StringDict, error)

// Module is an executed script.
type Module struct {
	// Name is the dotted module name, or "<script>" for inline sources.
	Name     string
	Filename string
	Globals  starlark.StringDict
	// Loads lists the modules pulled in with load(), in order.
	Loads []string
}

// Exec runs a script's top level and freezes its globals. src is a string,
// []byte or nil, in which case filename is read. print output goes to
// logger.
func Exec(name, filename string, src interface{}, load LoadFunc, logger zerolog.Logger) (*Module, error) {
	m := &Module{Name: name, Filename: filename}
	thread := newThread(name, logger)
	thread.Load = func(t *starlark.Thread, module string) (starlark.StringDict, error) {
		if load == nil {
			return nil, fmt.Errorf("cannot load %s: load is not supported here", module)
		}
		m.Loads = append(m.Loads, module)
		return load(t, module)
	}
	globals, err := starlark.ExecFile(thread, filename, src, Universe())
	if err != nil {
		return nil, err
	}
	globals.Freeze()
	m.Globals = globals
	return m, nil
}

// Names returns the sorted global names of the module.
func (m *Module) Names() []string {
	names := make([]string, 0, len(m.Globals))
	for k := range m.Globals {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Unit returns the BaseComposite declaration bound to the global name.
func (m *Module) Unit(name string) (composite.Unit, error) {
	v, ok := m.Globals[name]
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", m.Name, name, ErrNotDefined)
	}
	switch c := v.(type) {
	case *Class:
		return &unit{name: m.Name + "." + name, class: c}, nil
	case starlark.Callable:
		return nil, fmt.Errorf("%s.%s: %w", m.Name, name, ErrNotSubclass)
	}
	return nil, fmt.Errorf("%s.%s: %w", m.Name, name, ErrNotClass)
}

func newThread(name string, logger zerolog.Logger) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(t *starlark.Thread, msg string) {
			logger.Info().Str("unit", t.Name).Msg(msg)
		},
	}
}

// Backtrace returns the Starlark call stack of err, if it carries one.
func Backtrace(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return ""
}
