package composite

import (
	"fmt"
	"time"

	"github.com/openfroyo/function-starlark/pkg/value"
)

// Conditions are the status conditions of a resource. Conditions of the
// composite can be written, which adds them to the response; conditions of
// composed and required resources are read only.
type Conditions struct {
	// observed is the resource body carrying status.conditions.
	observed value.Handle
	// response is the response root, zero for read-only sets.
	response value.Handle
}

// ReadOnly reports whether writes are rejected.
func (c *Conditions) ReadOnly() bool { return c.response.IsZero() }

// Get returns the condition of the given type. The condition need not exist.
func (c *Conditions) Get(typ string) *Condition {
	return &Condition{typ: typ, set: c}
}

// Types returns the types of every observed and desired condition.
func (c *Conditions) Types() []string {
	var observed, desired []string
	list := c.observed.Field("status", "conditions")
	for i := 0; i < list.Len(); i++ {
		if t := str(list.Index(i).Field("type")); t != "" {
			observed = append(observed, t)
		}
	}
	if !c.ReadOnly() {
		list = c.response.Field("conditions")
		for i := 0; i < list.Len(); i++ {
			if t := str(list.Index(i).Field("type")); t != "" {
				desired = append(desired, t)
			}
		}
	}
	return union(observed, desired)
}

func (c *Conditions) observedEntry(typ string) (value.Handle, bool) {
	list := c.observed.Field("status", "conditions")
	for i := 0; i < list.Len(); i++ {
		if str(list.Index(i).Field("type")) == typ {
			return list.Index(i), true
		}
	}
	return value.Handle{}, false
}

func (c *Conditions) desiredEntry(typ string) (value.Handle, bool) {
	if c.ReadOnly() {
		return value.Handle{}, false
	}
	list := c.response.Field("conditions")
	for i := 0; i < list.Len(); i++ {
		if str(list.Index(i).Field("type")) == typ {
			return list.Index(i), true
		}
	}
	return value.Handle{}, false
}

// ensureDesired returns the response condition of typ, appending one seeded
// from the observed condition when missing.
func (c *Conditions) ensureDesired(typ string) (value.Handle, error) {
	if c.ReadOnly() {
		return value.Handle{}, fmt.Errorf("condition %s: %w", typ, ErrReadOnly)
	}
	if h, ok := c.desiredEntry(typ); ok {
		return h, nil
	}
	seed := map[string]value.Value{
		"type":   value.String(typ),
		"status": StatusUnknown.Value(),
		"reason": value.String(""),
	}
	if obs, ok := c.observedEntry(typ); ok {
		seed["status"] = ConditionStatusFromValue(val(obs.Field("status"))).Value()
		seed["reason"] = value.String(str(obs.Field("reason")))
		if msg := str(obs.Field("message")); msg != "" {
			seed["message"] = value.String(msg)
		}
		if claim := claimFromTarget(val(obs.Field("target"))); claim != nil {
			seed["target"] = targetValue(claim)
		}
	}
	list := c.response.Field("conditions")
	if err := list.Append(value.Map(seed)); err != nil {
		return value.Handle{}, err
	}
	return list.Index(list.Len() - 1), nil
}

// Condition is one condition type of a Conditions set. Reads prefer the
// condition being added to the response over the observed one.
type Condition struct {
	typ string
	set *Conditions
}

// ConditionUpdate carries the fields to change; nil fields are left alone.
type ConditionUpdate struct {
	Status  *ConditionStatus
	Reason  *string
	Message *string
	Claim   *bool
}

// Type returns the condition type.
func (c *Condition) Type() string { return c.typ }

func (c *Condition) read(key string) value.Value {
	if h, ok := c.set.desiredEntry(c.typ); ok {
		if v := val(h.Field(key)); !v.IsAbsent() {
			return v
		}
	}
	if h, ok := c.set.observedEntry(c.typ); ok {
		return val(h.Field(key))
	}
	return value.Absent()
}

// Exists reports whether the condition is observed or being set.
func (c *Condition) Exists() bool {
	if _, ok := c.set.desiredEntry(c.typ); ok {
		return true
	}
	_, ok := c.set.observedEntry(c.typ)
	return ok
}

// Status returns the condition status.
func (c *Condition) Status() ConditionStatus { return ConditionStatusFromValue(c.read("status")) }

// Reason returns the condition reason.
func (c *Condition) Reason() string { return c.read("reason").Str() }

// Message returns the condition message.
func (c *Condition) Message() string { return c.read("message").Str() }

// LastTransitionTime returns the observed transition time, if any.
func (c *Condition) LastTransitionTime() (time.Time, bool) {
	h, ok := c.set.observedEntry(c.typ)
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, str(h.Field("lastTransitionTime")))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Claim reports whether the condition is also surfaced on the claim. Nil
// means the target was never set.
func (c *Condition) Claim() *bool { return claimFromTarget(c.read("target")) }

// Update adds the condition to the response, seeded from the observed one,
// and applies u.
func (c *Condition) Update(u ConditionUpdate) error {
	h, err := c.set.ensureDesired(c.typ)
	if err != nil {
		return err
	}
	if u.Status != nil {
		if err := h.Field("status").Assign(u.Status.Value()); err != nil {
			return err
		}
	}
	if u.Reason != nil {
		if err := h.Field("reason").Assign(value.String(*u.Reason)); err != nil {
			return err
		}
	}
	if u.Message != nil {
		if err := h.Field("message").Assign(value.String(*u.Message)); err != nil {
			return err
		}
	}
	if u.Claim != nil {
		if err := h.Field("target").Assign(targetValue(u.Claim)); err != nil {
			return err
		}
	}
	return nil
}

// SetStatus updates the status only.
func (c *Condition) SetStatus(s ConditionStatus) error {
	return c.Update(ConditionUpdate{Status: &s})
}

// SetReason updates the reason only.
func (c *Condition) SetReason(r string) error {
	return c.Update(ConditionUpdate{Reason: &r})
}

// SetMessage updates the message only.
func (c *Condition) SetMessage(m string) error {
	return c.Update(ConditionUpdate{Message: &m})
}

// SetClaim updates the target only.
func (c *Condition) SetClaim(claim bool) error {
	return c.Update(ConditionUpdate{Claim: &claim})
}
