package composite

import (
	"fmt"
	"sort"

	"github.com/openfroyo/function-starlark/pkg/value"
)

// Connection is a set of connection details. Reads prefer the desired
// details and fall back to the observed ones.
type Connection struct {
	observed value.Handle
	// desired is zero when the details can only be read.
	desired value.Handle
}

// ReadOnly reports whether writes are rejected.
func (c *Connection) ReadOnly() bool { return c.desired.IsZero() }

// Get returns the secret value of key.
func (c *Connection) Get(key string) ([]byte, bool) {
	if !c.desired.IsZero() {
		if v := val(c.desired.Field(key)); !v.IsAbsent() {
			return v.Bytes(), true
		}
	}
	v := val(c.observed.Field(key))
	if v.IsAbsent() {
		return nil, false
	}
	return v.Bytes(), true
}

// Set writes key into the desired details.
func (c *Connection) Set(key string, data []byte) error {
	if c.ReadOnly() {
		return fmt.Errorf("connection %s: %w", key, ErrReadOnly)
	}
	return c.desired.Field(key).Assign(value.Bytes(data))
}

// Delete removes key from the desired details.
func (c *Connection) Delete(key string) error {
	if c.ReadOnly() {
		return fmt.Errorf("connection %s: %w", key, ErrReadOnly)
	}
	return c.desired.Field(key).Remove()
}

// Keys returns the sorted union of desired and observed keys.
func (c *Connection) Keys() []string {
	var desired []string
	if !c.desired.IsZero() {
		desired = c.desired.Keys()
	}
	keys := union(desired, c.observed.Keys())
	sort.Strings(keys)
	return keys
}
