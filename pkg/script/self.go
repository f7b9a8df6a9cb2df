package script

import (
	"fmt"
	"sort"
	"time"

	"go.starlark.net/starlark"

	"github.com/openfroyo/function-starlark/pkg/composite"
	"github.com/openfroyo/function-starlark/pkg/value"
)

// compositeValue is `self` inside init and compose.
type compositeValue struct {
	c      *composite.Composite
	extras map[string]starlark.Value
}

var (
	_ starlark.HasAttrs    = (*compositeValue)(nil)
	_ starlark.HasSetField = (*compositeValue)(nil)
)

var compositeAttrs = []string{
	"apiVersion", "autoReady", "conditions", "connection", "context",
	"credentials", "desired", "environment", "kind", "logger", "metadata",
	"name", "observed", "ready", "request", "requireds", "resources",
	"response", "results", "spec", "status", "ttl",
}

func newCompositeValue(c *composite.Composite) *compositeValue {
	return &compositeValue{c: c, extras: map[string]starlark.Value{}}
}

func (cv *compositeValue) String() string {
	return fmt.Sprintf("<composite %s/%s %s>", cv.c.APIVersion(), cv.c.Kind(), cv.c.Name())
}
func (cv *compositeValue) Type() string          { return "Composite" }
func (cv *compositeValue) Freeze()               {}
func (cv *compositeValue) Truth() starlark.Bool  { return starlark.True }
func (cv *compositeValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Composite") }

func (cv *compositeValue) Attr(name string) (starlark.Value, error) {
	c := cv.c
	switch name {
	case "request":
		return wrap(c.Request)
	case "response":
		return wrap(c.Response)
	case "logger":
		return newLogger(c.Logger), nil
	case "autoReady":
		return starlark.Bool(c.AutoReady), nil
	case "credentials":
		return newCredentials(c.Credentials), nil
	case "context":
		return wrap(c.Context)
	case "environment":
		return wrap(c.Environment)
	case "requireds":
		return newRequireds(c.Requireds), nil
	case "resources":
		return newResources(c.Resources), nil
	case "results":
		return newResults(c.Results), nil
	case "observed":
		return wrap(c.Observed)
	case "desired":
		return wrap(c.Desired)
	case "apiVersion":
		return starlark.String(c.APIVersion()), nil
	case "kind":
		return starlark.String(c.Kind()), nil
	case "name":
		return starlark.String(c.Name()), nil
	case "metadata":
		return wrap(c.Metadata)
	case "spec":
		return wrap(c.Spec)
	case "status":
		return &overlayValue{label: "status", observed: c.Status.Observed(), desired: c.Status.Desired()}, nil
	case "conditions":
		return newConditions(c.Conditions), nil
	case "connection":
		return newConnection(c.Connection), nil
	case "ttl":
		return starlark.Float(c.TTL().Seconds()), nil
	case "ready":
		return readyValue(c.Ready()), nil
	}
	if v, ok := cv.extras[name]; ok {
		return v, nil
	}
	return nil, nil
}

func (cv *compositeValue) AttrNames() []string {
	names := append([]string{}, compositeAttrs...)
	for k := range cv.extras {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (cv *compositeValue) SetField(name string, v starlark.Value) error {
	c := cv.c
	switch name {
	case "autoReady":
		c.AutoReady = bool(v.Truth())
		return nil
	case "ttl":
		secs, ok := starlark.AsFloat(v)
		if !ok {
			return fmt.Errorf("ttl: want a number of seconds, got %s", v.Type())
		}
		return c.SetTTL(time.Duration(secs * float64(time.Second)))
	case "ready":
		r, err := parseReady(v)
		if err != nil {
			return err
		}
		return c.SetReady(r)
	case "context":
		return assign(c.Context, v)
	case "environment":
		return assign(c.Environment, v)
	case "desired":
		return assign(c.Desired, v)
	case "status":
		return assign(c.Status.Desired(), v)
	case "request", "response", "logger", "credentials", "requireds",
		"resources", "results", "observed", "apiVersion", "kind", "name",
		"metadata", "spec", "conditions", "connection":
		return fmt.Errorf("self.%s: %w", name, composite.ErrReadOnly)
	}
	cv.extras[name] = v
	return nil
}

func readyValue(r composite.Ready) starlark.Value {
	switch r {
	case composite.ReadyTrue:
		return starlark.True
	case composite.ReadyFalse:
		return starlark.False
	}
	return starlark.None
}

func parseReady(v starlark.Value) (composite.Ready, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return composite.ReadyUnspecified, nil
	case starlark.Bool:
		if x {
			return composite.ReadyTrue, nil
		}
		return composite.ReadyFalse, nil
	case starlark.String:
		return composite.ReadyFromValue(value.String(string(x))), nil
	}
	return composite.ReadyUnspecified, fmt.Errorf("ready: want True, False or None, got %s", v.Type())
}

// overlayValue reads a mapping from its desired side, falling back to the
// observed side, and writes to the desired side.
type overlayValue struct {
	label    string
	observed value.Handle
	desired  value.Handle
}

var (
	_ starlark.HasAttrs    = (*overlayValue)(nil)
	_ starlark.HasSetField = (*overlayValue)(nil)
	_ starlark.HasSetKey   = (*overlayValue)(nil)
)

func (o *overlayValue) String() string {
	v, err := o.value()
	if err != nil {
		return o.label
	}
	return v.String()
}
func (o *overlayValue) Type() string         { return "Map" }
func (o *overlayValue) Freeze()              {}
func (o *overlayValue) Truth() starlark.Bool { return starlark.Bool(o.desired.Truthy() || o.observed.Truthy()) }
func (o *overlayValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: Map")
}

// value snapshots the observed side with the desired side merged over it.
func (o *overlayValue) value() (value.Value, error) {
	observed, err := o.observed.Value()
	if err != nil {
		return value.Value{}, err
	}
	desired, err := o.desired.Value()
	if err != nil {
		return value.Value{}, err
	}
	if observed.Kind() != value.KindMap {
		return desired, nil
	}
	h, err := value.NewMap(observed)
	if err != nil {
		return value.Value{}, err
	}
	if desired.Kind() == value.KindMap {
		if err := h.Assign(desired); err != nil {
			return value.Value{}, err
		}
	}
	return h.Value()
}

func (o *overlayValue) child(key string) (starlark.Value, error) {
	d, od := o.desired.Field(key), o.observed.Field(key)
	dk, err := d.Kind()
	if err != nil {
		return nil, err
	}
	obk, _ := od.Kind()
	if (dk == value.KindMap || dk == value.KindAbsent) && obk == value.KindMap {
		return &overlayValue{label: o.label + "." + key, observed: od, desired: d}, nil
	}
	if dk != value.KindAbsent || obk == value.KindAbsent {
		return wrap(d)
	}
	return wrap(od)
}

func (o *overlayValue) Attr(name string) (starlark.Value, error) { return o.child(name) }

func (o *overlayValue) AttrNames() []string { return o.keys() }

func (o *overlayValue) keys() []string {
	seen := map[string]bool{}
	var keys []string
	for _, k := range append(o.desired.Keys(), o.observed.Keys()...) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (o *overlayValue) SetField(name string, v starlark.Value) error {
	return assign(o.desired.Field(name), v)
}

func (o *overlayValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	key, ok := k.(starlark.String)
	if !ok {
		return nil, false, fmt.Errorf("%s: key must be a string, got %s", o.label, k.Type())
	}
	v, err := o.child(string(key))
	return v, err == nil, err
}

func (o *overlayValue) SetKey(k, v starlark.Value) error {
	key, ok := k.(starlark.String)
	if !ok {
		return fmt.Errorf("%s: key must be a string, got %s", o.label, k.Type())
	}
	return assign(o.desired.Field(string(key)), v)
}

func (o *overlayValue) Len() int { return len(o.keys()) }

func (o *overlayValue) Iterate() starlark.Iterator { return stringIterator(o.keys()) }

func stringIterator(keys []string) starlark.Iterator {
	items := make([]starlark.Value, len(keys))
	for i, k := range keys {
		items[i] = starlark.String(k)
	}
	return &sliceIterator{items: items}
}
