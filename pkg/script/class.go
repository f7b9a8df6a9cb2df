package script

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"

	"github.com/openfroyo/function-starlark/pkg/composite"
)

// Class is a composable unit declared by a script:
//
//	def compose(self):
//	    self.status.ok = True
//
//	Composite = BaseComposite(compose)
type Class struct {
	compose starlark.Callable
	init    starlark.Callable
	frozen  bool
}

var _ starlark.HasAttrs = (*Class)(nil)

func (c *Class) String() string        { return fmt.Sprintf("<BaseComposite %s>", c.compose.Name()) }
func (c *Class) Type() string          { return "BaseComposite" }
func (c *Class) Freeze()               { c.frozen = true }
func (c *Class) Truth() starlark.Bool  { return starlark.True }
func (c *Class) Hash() (uint32, error) { return starlark.String(c.compose.Name()).Hash() }

func (c *Class) Attr(name string) (starlark.Value, error) {
	switch name {
	case "compose":
		return c.compose, nil
	case "init":
		if c.init == nil {
			return starlark.None, nil
		}
		return c.init, nil
	}
	return nil, nil
}

func (c *Class) AttrNames() []string { return []string{"compose", "init"} }

func checkMethod(name string, fn starlark.Value) (starlark.Callable, error) {
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("BaseComposite: %s must be callable, got %s", name, fn.Type())
	}
	if f, ok := fn.(*starlark.Function); ok && (f.NumParams() != 1 || f.HasVarargs() || f.HasKwargs()) {
		return nil, fmt.Errorf("BaseComposite: %s %s must take exactly one parameter (self)", name, f.Name())
	}
	return callable, nil
}

// baseComposite implements BaseComposite(compose, init=None).
func baseComposite(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var compose, init starlark.Value = nil, starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "compose", &compose, "init?", &init); err != nil {
		return nil, err
	}
	c := &Class{}
	var err error
	if c.compose, err = checkMethod("compose", compose); err != nil {
		return nil, err
	}
	if init != starlark.None {
		if c.init, err = checkMethod("init", init); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// unit adapts a Class to composite.Unit.
type unit struct {
	name  string
	class *Class
}

func (u *unit) Name() string { return u.name }

// New instantiates the class for one request. init, when declared, runs on
// a thread of its own before compose.
func (u *unit) New(c *composite.Composite) (composite.Composition, error) {
	self := newCompositeValue(c)
	if u.class.init != nil {
		thread := newThread(u.name, c.Logger)
		if _, err := starlark.Call(thread, u.class.init, starlark.Tuple{self}, nil); err != nil {
			return nil, err
		}
	}
	return &composition{unit: u, self: self, logger: c.Logger}, nil
}

type composition struct {
	unit   *unit
	self   *compositeValue
	logger zerolog.Logger
}

// Compose calls compose(self). The thread is cancelled when ctx is done.
func (cp *composition) Compose(ctx context.Context) error {
	thread := newThread(cp.unit.name, cp.logger)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()
	_, err := starlark.Call(thread, cp.unit.class.compose, starlark.Tuple{cp.self}, nil)
	return err
}
