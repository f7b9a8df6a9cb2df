package composite

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/function-starlark/pkg/value"
)

const (
	// EnvironmentKey is the context key holding the composition environment.
	EnvironmentKey = "apiextensions.crossplane.io/environment"

	// ExternalNameAnnotation holds the external name of a managed resource.
	ExternalNameAnnotation = "crossplane.io/external-name"

	// DefaultTTL is the response TTL unless a composition changes it.
	DefaultTTL = 60 * time.Second
)

// ErrReadOnly is returned when writing through a facet that only has an
// observed side.
var ErrReadOnly = errors.New("read only")

// Composite is the base every composition builds on. It exposes the request
// and response of one RunFunction call through typed facets.
type Composite struct {
	// Request is the read-only RunFunctionRequest.
	Request value.Handle
	// Response is the RunFunctionResponse under construction.
	Response value.Handle
	// Logger is bound to the composite and the request.
	Logger zerolog.Logger
	// AutoReady marks composed resources ready once their Ready condition
	// is True.
	AutoReady bool

	Credentials *Credentials
	Context     value.Handle
	Environment value.Handle
	Requireds   *Requireds
	Resources   *Resources
	Results     *Results

	// Observed is the observed composite resource body.
	Observed value.Handle
	// Desired is the desired composite resource body.
	Desired    value.Handle
	Metadata   value.Handle
	Spec       value.Handle
	Status     *Status
	Conditions *Conditions
	Connection *Connection
}

// New builds the composite over a request and a response tree.
func New(request, response *value.Tree, logger zerolog.Logger) *Composite {
	req := request.Root()
	rsp := response.Root()
	observed := req.Field("observed", "composite")
	desired := rsp.Field("desired", "composite")

	c := &Composite{
		Request:   req,
		Response:  rsp,
		Logger:    logger,
		AutoReady: true,

		Credentials: &Credentials{h: req.Field("credentials")},
		Context:     rsp.Field("context"),
		Environment: rsp.Field("context", EnvironmentKey),
		Requireds:   &Requireds{request: req, response: rsp},
		Results:     &Results{h: rsp.Field("results")},

		Observed: observed.Field("resource"),
		Desired:  desired.Field("resource"),
		Metadata: observed.Field("resource", "metadata"),
		Spec:     observed.Field("resource", "spec"),
		Status: &Status{
			observed: observed.Field("resource", "status"),
			desired:  desired.Field("resource", "status"),
		},
		Conditions: &Conditions{
			observed: observed.Field("resource"),
			response: rsp,
		},
		Connection: &Connection{
			observed: observed.Field("connection_details"),
			desired:  desired.Field("connection_details"),
		},
	}
	c.Resources = &Resources{request: req, response: rsp}
	return c
}

// APIVersion returns the apiVersion of the observed composite.
func (c *Composite) APIVersion() string { return str(c.Observed.Field("apiVersion")) }

// Kind returns the kind of the observed composite.
func (c *Composite) Kind() string { return str(c.Observed.Field("kind")) }

// Name returns the metadata.name of the observed composite.
func (c *Composite) Name() string { return str(c.Metadata.Field("name")) }

// Tag returns the request tag.
func (c *Composite) Tag() string { return str(c.Request.Field("meta", "tag")) }

// TTL returns the response TTL.
func (c *Composite) TTL() time.Duration {
	v := val(c.Response.Field("meta", "ttl"))
	if v.Kind() != value.KindNumber {
		return 0
	}
	return time.Duration(v.Number() * float64(time.Second))
}

// SetTTL sets the response TTL.
func (c *Composite) SetTTL(d time.Duration) error {
	return c.Response.Field("meta", "ttl").Assign(value.Number(d.Seconds()))
}

// Ready returns the desired readiness of the composite.
func (c *Composite) Ready() Ready {
	return ReadyFromValue(val(c.Response.Field("desired", "composite", "ready")))
}

// SetReady sets the desired readiness of the composite.
func (c *Composite) SetReady(r Ready) error {
	return c.Response.Field("desired", "composite", "ready").Assign(r.Value())
}

// Commit writes every open document of the response back.
func (c *Composite) Commit() error {
	return c.Response.Tree().Commit()
}

// Status reads the desired status first and falls back to the observed one.
// Writes always go to the desired status.
type Status struct {
	observed value.Handle
	desired  value.Handle
}

// Observed returns the observed status.
func (s *Status) Observed() value.Handle { return s.observed }

// Desired returns the desired status.
func (s *Status) Desired() value.Handle { return s.desired }

// Get returns the value at keys below the status.
func (s *Status) Get(keys ...string) (value.Value, error) {
	v, err := s.desired.Field(keys...).Value()
	if err != nil {
		return value.Value{}, err
	}
	if !v.IsAbsent() {
		return v, nil
	}
	return s.observed.Field(keys...).Value()
}

// Set writes v at keys below the desired status.
func (s *Status) Set(v value.Value, keys ...string) error {
	return s.desired.Field(keys...).Assign(v)
}

// Delete removes the desired value at keys.
func (s *Status) Delete(keys ...string) error {
	return s.desired.Field(keys...).Remove()
}

// Keys returns the union of desired and observed status keys.
func (s *Status) Keys() []string {
	return union(s.desired.Keys(), s.observed.Keys())
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, k := range list {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
