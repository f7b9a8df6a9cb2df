package composite

import (
	"sort"

	"github.com/openfroyo/function-starlark/pkg/value"
)

// Resources are the composed resources, keyed by resource name.
type Resources struct {
	request  value.Handle
	response value.Handle
}

// Get returns the named resource. The resource need not exist yet; writing
// to it adds it to the desired state.
func (r *Resources) Get(name string) *Resource {
	observed := r.request.Field("observed", "resources", name)
	desired := r.response.Field("desired", "resources", name)
	return &Resource{
		Name:     name,
		Observed: observed,
		Desired:  desired,
		Conditions: &Conditions{
			observed: observed.Field("resource"),
		},
		Connection: &Connection{
			observed: observed.Field("connection_details"),
			desired:  desired.Field("connection_details"),
		},
	}
}

// Names returns the sorted names of the desired resources.
func (r *Resources) Names() []string {
	names := r.response.Field("desired", "resources").Keys()
	sort.Strings(names)
	return names
}

// ObservedNames returns the sorted names of the observed resources.
func (r *Resources) ObservedNames() []string {
	names := r.request.Field("observed", "resources").Keys()
	sort.Strings(names)
	return names
}

// Has reports whether the named resource is desired.
func (r *Resources) Has(name string) bool {
	return r.response.Field("desired", "resources", name).Exists()
}

// Len returns the number of desired resources.
func (r *Resources) Len() int {
	return r.response.Field("desired", "resources").Len()
}

// Delete removes the named resource from the desired state.
func (r *Resources) Delete(name string) error {
	return r.response.Field("desired", "resources").Delete(value.Key(name))
}

// Resource is one composed resource: its observed state from the request and
// its desired state in the response.
type Resource struct {
	Name string
	// Observed is the observed protocol Resource (resource body,
	// connection_details and ready).
	Observed value.Handle
	// Desired is the desired protocol Resource.
	Desired    value.Handle
	Conditions *Conditions
	Connection *Connection
}

// ResourceFields initialize a resource body on Reset. Empty fields are left
// unset.
type ResourceFields struct {
	APIVersion string
	Kind       string
	Name       string
	Namespace  string
}

// Body returns the desired resource body.
func (r *Resource) Body() value.Handle { return r.Desired.Field("resource") }

// ObservedBody returns the observed resource body.
func (r *Resource) ObservedBody() value.Handle { return r.Observed.Field("resource") }

// Metadata returns the desired metadata.
func (r *Resource) Metadata() value.Handle { return r.Body().Field("metadata") }

// Spec returns the desired spec.
func (r *Resource) Spec() value.Handle { return r.Body().Field("spec") }

// Status returns the observed status.
func (r *Resource) Status() value.Handle { return r.ObservedBody().Field("status") }

// Exists reports whether the resource is desired.
func (r *Resource) Exists() bool { return r.Desired.Exists() }

// IsObserved reports whether the resource was observed.
func (r *Resource) IsObserved() bool { return r.Observed.Exists() }

// Reset clears the desired resource body and initializes it from f.
func (r *Resource) Reset(f ResourceFields) error {
	body := r.Body()
	if err := body.Reset(); err != nil {
		return err
	}
	fields := map[string]value.Value{}
	if f.APIVersion != "" {
		fields["apiVersion"] = value.String(f.APIVersion)
	}
	if f.Kind != "" {
		fields["kind"] = value.String(f.Kind)
	}
	meta := map[string]value.Value{}
	if f.Name != "" {
		meta["name"] = value.String(f.Name)
	}
	if f.Namespace != "" {
		meta["namespace"] = value.String(f.Namespace)
	}
	if len(meta) > 0 {
		fields["metadata"] = value.Map(meta)
	}
	if len(fields) == 0 {
		return nil
	}
	return body.Assign(value.Map(fields))
}

func (r *Resource) observedOrDesired(keys ...string) string {
	if s := str(r.ObservedBody().Field(keys...)); s != "" {
		return s
	}
	return str(r.Body().Field(keys...))
}

// APIVersion returns the observed apiVersion, or the desired one for a
// resource that was not observed yet.
func (r *Resource) APIVersion() string { return r.observedOrDesired("apiVersion") }

// SetAPIVersion sets the desired apiVersion.
func (r *Resource) SetAPIVersion(v string) error {
	return r.Body().Field("apiVersion").Assign(value.String(v))
}

// Kind returns the observed kind, or the desired one.
func (r *Resource) Kind() string { return r.observedOrDesired("kind") }

// SetKind sets the desired kind.
func (r *Resource) SetKind(k string) error {
	return r.Body().Field("kind").Assign(value.String(k))
}

// ExternalName returns the external-name annotation, desired first.
func (r *Resource) ExternalName() string {
	if s := str(r.Body().Field("metadata", "annotations", ExternalNameAnnotation)); s != "" {
		return s
	}
	return str(r.ObservedBody().Field("metadata", "annotations", ExternalNameAnnotation))
}

// SetExternalName sets the desired external-name annotation.
func (r *Resource) SetExternalName(name string) error {
	return r.Body().Field("metadata", "annotations", ExternalNameAnnotation).Assign(value.String(name))
}

// Ready returns the desired readiness, falling back to the observed one.
func (r *Resource) Ready() Ready {
	if ready := r.DesiredReady(); ready != ReadyUnspecified {
		return ready
	}
	return ReadyFromValue(val(r.Observed.Field("ready")))
}

// DesiredReady returns the desired readiness only.
func (r *Resource) DesiredReady() Ready {
	return ReadyFromValue(val(r.Desired.Field("ready")))
}

// SetReady sets the desired readiness.
func (r *Resource) SetReady(ready Ready) error {
	return r.Desired.Field("ready").Assign(ready.Value())
}

// HasUnknowns reports whether the desired resource holds unknown values.
func (r *Resource) HasUnknowns() bool { return value.HasUnknowns(r.Desired) }
