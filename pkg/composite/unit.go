package composite

import "context"

// Composition composes one request. Compose runs synchronously.
type Composition interface {
	Compose(ctx context.Context) error
}

// AsyncComposition is implemented by compositions that compose in the
// background. When a Composition also implements AsyncComposition the
// result of ComposeAsync is awaited instead of calling Compose.
type AsyncComposition interface {
	ComposeAsync(ctx context.Context) <-chan error
}

// Unit is a loadable composition: a named constructor of Compositions.
type Unit interface {
	Name() string
	New(c *Composite) (Composition, error)
}

// ComposeFunc composes the given composite.
type ComposeFunc func(ctx context.Context, c *Composite) error

type funcUnit struct {
	name string
	fn   ComposeFunc
}

// NewUnit returns a Unit whose compositions call fn.
func NewUnit(name string, fn ComposeFunc) Unit {
	return &funcUnit{name: name, fn: fn}
}

func (u *funcUnit) Name() string { return u.name }

func (u *funcUnit) New(c *Composite) (Composition, error) {
	return &funcComposition{c: c, fn: u.fn}, nil
}

type funcComposition struct {
	c  *Composite
	fn ComposeFunc
}

func (f *funcComposition) Compose(ctx context.Context) error { return f.fn(ctx, f.c) }

// Await runs comp to completion. Asynchronous compositions are awaited until
// they report or ctx is done.
func Await(ctx context.Context, comp Composition) error {
	async, ok := comp.(AsyncComposition)
	if !ok {
		return comp.Compose(ctx)
	}
	select {
	case err, ok := <-async.ComposeAsync(ctx):
		if !ok {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
