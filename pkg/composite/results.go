package composite

import (
	"sort"

	"github.com/openfroyo/function-starlark/pkg/value"
)

// Results are the results reported in the response.
type Results struct {
	h value.Handle
}

// ResultSpec describes a result to add.
type ResultSpec struct {
	Severity Severity
	Message  string
	Reason   string
	// Claim surfaces the result on the claim too. Nil leaves the target
	// unset.
	Claim *bool
}

// Add appends a result.
func (r *Results) Add(spec ResultSpec) (*Result, error) {
	fields := map[string]value.Value{
		"severity": value.String(spec.Severity.String()),
		"message":  value.String(spec.Message),
	}
	if spec.Reason != "" {
		fields["reason"] = value.String(spec.Reason)
	}
	if t := targetValue(spec.Claim); !t.IsAbsent() {
		fields["target"] = t
	}
	if err := r.h.Append(value.Map(fields)); err != nil {
		return nil, err
	}
	return &Result{h: r.h.Index(r.h.Len() - 1)}, nil
}

// Len returns the number of results.
func (r *Results) Len() int { return r.h.Len() }

// Item returns the i-th result.
func (r *Results) Item(i int) *Result { return &Result{h: r.h.Index(i)} }

// HasFatal reports whether a fatal result was added.
func (r *Results) HasFatal() bool {
	for i := 0; i < r.Len(); i++ {
		if r.Item(i).Severity() == SeverityFatal {
			return true
		}
	}
	return false
}

// Result is one reported result.
type Result struct {
	h value.Handle
}

// Severity returns the result severity.
func (r *Result) Severity() Severity { return severityFromValue(val(r.h.Field("severity"))) }

// Message returns the result message.
func (r *Result) Message() string { return str(r.h.Field("message")) }

// Reason returns the result reason.
func (r *Result) Reason() string { return str(r.h.Field("reason")) }

// Claim reports whether the result targets the claim.
func (r *Result) Claim() *bool { return claimFromTarget(val(r.h.Field("target"))) }

// Credentials are the credentials supplied with the request.
type Credentials struct {
	h value.Handle
}

// Names returns the sorted credential names.
func (c *Credentials) Names() []string {
	names := c.h.Keys()
	sort.Strings(names)
	return names
}

// Has reports whether the named credentials were supplied.
func (c *Credentials) Has(name string) bool { return c.h.Field(name).Exists() }

// Data returns the data of the named credentials.
func (c *Credentials) Data(name string) map[string][]byte {
	v := val(c.h.Field(name, "credential_data", "data"))
	if v.Kind() != value.KindMap {
		return nil
	}
	out := make(map[string][]byte, v.Len())
	for _, k := range v.Keys() {
		out[k] = v.Field(k).Bytes()
	}
	return out
}

// Get returns one key of the named credentials.
func (c *Credentials) Get(name, key string) ([]byte, bool) {
	v := val(c.h.Field(name, "credential_data", "data", key))
	if v.IsAbsent() {
		return nil, false
	}
	return v.Bytes(), true
}
