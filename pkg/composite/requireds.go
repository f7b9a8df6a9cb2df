package composite

import (
	"sort"

	"github.com/openfroyo/function-starlark/pkg/value"
)

// Requireds are the extra resources a composition asks the control plane to
// fetch. Selectors go into the response requirements; the control plane
// answers in the extra_resources of the next request.
type Requireds struct {
	request  value.Handle
	response value.Handle
}

// Get returns the named requirement.
func (r *Requireds) Get(name string) *RequiredResources {
	return &RequiredResources{
		Name:     name,
		selector: r.response.Field("requirements", "extra_resources", name),
		items:    r.request.Field("extra_resources", name, "items"),
	}
}

// Names returns the sorted union of requested and supplied requirements.
func (r *Requireds) Names() []string {
	names := union(
		r.response.Field("requirements", "extra_resources").Keys(),
		r.request.Field("extra_resources").Keys(),
	)
	sort.Strings(names)
	return names
}

// Selector selects required resources by name or by labels.
type Selector struct {
	APIVersion  string
	Kind        string
	MatchName   string
	MatchLabels map[string]string
}

// RequiredResources is one named requirement.
type RequiredResources struct {
	Name     string
	selector value.Handle
	items    value.Handle
}

// Select replaces the selector of the requirement.
func (r *RequiredResources) Select(s Selector) error {
	fields := map[string]value.Value{
		"api_version": value.String(s.APIVersion),
		"kind":        value.String(s.Kind),
	}
	if s.MatchName != "" {
		fields["match_name"] = value.String(s.MatchName)
	} else {
		labels := make(map[string]value.Value, len(s.MatchLabels))
		for k, v := range s.MatchLabels {
			labels[k] = value.String(v)
		}
		fields["match_labels"] = value.Map(map[string]value.Value{"labels": value.Map(labels)})
	}
	return r.selector.Replace(value.Map(fields))
}

// Selector returns the current selector, if one is set.
func (r *RequiredResources) Selector() (Selector, bool) {
	if !r.selector.Exists() {
		return Selector{}, false
	}
	s := Selector{
		APIVersion: str(r.selector.Field("api_version")),
		Kind:       str(r.selector.Field("kind")),
		MatchName:  str(r.selector.Field("match_name")),
	}
	labels := val(r.selector.Field("match_labels", "labels"))
	if labels.Kind() == value.KindMap {
		s.MatchLabels = make(map[string]string, labels.Len())
		for _, k := range labels.Keys() {
			s.MatchLabels[k] = labels.Field(k).Str()
		}
	}
	return s, true
}

// Clear removes the selector.
func (r *RequiredResources) Clear() error { return r.selector.Remove() }

// Len returns the number of supplied resources.
func (r *RequiredResources) Len() int { return r.items.Len() }

// Item returns the i-th supplied resource. Indexing past the supplied items
// yields an empty resource that reads as absent.
func (r *RequiredResources) Item(i int) *RequiredResource {
	h := r.items.Index(i)
	return &RequiredResource{
		Name:       r.Name,
		Handle:     h,
		Conditions: &Conditions{observed: h.Field("resource")},
		Connection: &Connection{observed: h.Field("connection_details")},
	}
}

// RequiredResource is one supplied extra resource. It is read only.
type RequiredResource struct {
	Name       string
	Handle     value.Handle
	Conditions *Conditions
	Connection *Connection
}

// Exists reports whether the resource was supplied.
func (r *RequiredResource) Exists() bool { return r.Handle.Exists() }

// Body returns the resource body.
func (r *RequiredResource) Body() value.Handle { return r.Handle.Field("resource") }

// APIVersion returns the apiVersion of the resource.
func (r *RequiredResource) APIVersion() string { return str(r.Body().Field("apiVersion")) }

// Kind returns the kind of the resource.
func (r *RequiredResource) Kind() string { return str(r.Body().Field("kind")) }

// Metadata returns the resource metadata.
func (r *RequiredResource) Metadata() value.Handle { return r.Body().Field("metadata") }

// Spec returns the resource spec.
func (r *RequiredResource) Spec() value.Handle { return r.Body().Field("spec") }

// Status returns the resource status.
func (r *RequiredResource) Status() value.Handle { return r.Body().Field("status") }
