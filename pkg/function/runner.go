package function

import (
	"context"
	"fmt"
	"time"

	fnv1 "github.com/crossplane/function-sdk-go/proto/v1"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openfroyo/function-starlark/pkg/composite"
	"github.com/openfroyo/function-starlark/pkg/script"
	"github.com/openfroyo/function-starlark/pkg/telemetry"
	"github.com/openfroyo/function-starlark/pkg/value"
)

const (
	// BootstrapAPIVersion and BootstrapKind identify composites that carry
	// their composition in spec.composite.
	BootstrapAPIVersion = "starlark.fn.openfroyo.io/v1alpha1"
	BootstrapKind       = "Composite"

	// IdentifierField names the field holding the composition identifier.
	IdentifierField = "composite"
)

// Resolver resolves composition identifiers to units.
type Resolver interface {
	Resolve(ctx context.Context, id string) (composite.Unit, error)
}

// Runner runs compositions for RunFunction requests.
type Runner struct {
	fnv1.UnimplementedFunctionRunnerServiceServer

	resolver       Resolver
	logger         zerolog.Logger
	tracer         *telemetry.Tracer
	metrics        *telemetry.Metrics
	ttl            time.Duration
	composeTimeout time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithTelemetry traces and measures requests.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(r *Runner) {
		if t.Tracer != nil {
			r.tracer = t.Tracer
		}
		r.metrics = t.Metrics
	}
}

// WithTTL sets the response TTL compositions start from.
func WithTTL(d time.Duration) Option {
	return func(r *Runner) { r.ttl = d }
}

// WithComposeTimeout bounds each compose call. Zero disables the bound.
func WithComposeTimeout(d time.Duration) Option {
	return func(r *Runner) { r.composeTimeout = d }
}

// NewRunner creates a runner resolving units through resolver.
func NewRunner(resolver Resolver, logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		resolver: resolver,
		logger:   logger,
		tracer:   telemetry.NewNopTracer(),
		ttl:      composite.DefaultTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunFunction runs the composition named by the request. Failures are
// reported as a fatal result in the response, never as an error.
func (r *Runner) RunFunction(ctx context.Context, req *fnv1.RunFunctionRequest) (*fnv1.RunFunctionResponse, error) {
	timer := telemetry.NewTimer()
	r.metrics.RecordRequestStarted()

	rsp := r.respondTo(req)
	request := value.NewTree(req, "Function Request", value.ReadOnly())
	response := value.NewTree(rsp, "Function Response")

	ctx, span := r.tracer.StartRequestSpan(ctx, req.GetMeta().GetTag())
	defer span.End()

	requestID := uuid.NewString()
	log := r.requestLogger(request.Root(), requestID)
	span.SetAttributes(
		telemetry.AttrRequestID.String(requestID),
		telemetry.AttrComposite.String(str(request.Root().Field("observed", "composite", "resource", "metadata", "name"))),
		telemetry.AttrCompositeGK.String(str(request.Root().Field("observed", "composite", "resource", "kind"))),
	)
	log.Debug().Msg("Running")

	if err := r.run(ctx, request, response, log); err != nil {
		r.fatal(rsp, response, span, log, err)
		r.metrics.RecordRequestCompleted(telemetry.OutcomeFatal, timer.Duration())
		return rsp, nil
	}

	span.SetAttributes(telemetry.AttrResources.Int(len(rsp.GetDesired().GetResources())))
	telemetry.RecordSuccess(span)
	r.metrics.RecordRequestCompleted(telemetry.OutcomeSuccess, timer.Duration())
	log.Debug().Msg("Returning")
	return rsp, nil
}

func (r *Runner) run(ctx context.Context, request, response *value.Tree, log zerolog.Logger) error {
	id, err := Identify(request.Root())
	if err != nil {
		return err
	}

	unit, err := r.resolver.Resolve(ctx, id)
	if err != nil {
		return NewResolveError(err)
	}
	trace.SpanFromContext(ctx).SetAttributes(telemetry.AttrUnit.String(unit.Name()))

	c := composite.New(request, response, log)
	comp, err := instantiate(unit, c)
	if err != nil {
		return NewInstantiationError(err)
	}

	if err := r.compose(ctx, comp); err != nil {
		return NewComposeError(err)
	}
	if err := c.Commit(); err != nil {
		return NewComposeError(err)
	}

	if err := r.reconcile(c, log); err != nil {
		return NewComposeError(err)
	}
	if err := r.deriveReady(c, log); err != nil {
		return NewComposeError(err)
	}
	return nil
}

// respondTo returns the response skeleton: the request tag, the default TTL,
// and the desired state and context passed through from the request.
func (r *Runner) respondTo(req *fnv1.RunFunctionRequest) *fnv1.RunFunctionResponse {
	rsp := &fnv1.RunFunctionResponse{
		Meta: &fnv1.ResponseMeta{
			Tag: req.GetMeta().GetTag(),
			Ttl: durationpb.New(r.ttl),
		},
		Desired: &fnv1.State{},
	}
	if d := req.GetDesired(); d != nil {
		rsp.Desired = proto.Clone(d).(*fnv1.State)
	}
	if c := req.GetContext(); c != nil {
		rsp.Context = proto.Clone(c).(*structpb.Struct)
	}
	return rsp
}

func (r *Runner) requestLogger(req value.Handle, requestID string) zerolog.Logger {
	xr := req.Field("observed", "composite", "resource")
	lc := r.logger.With().
		Str("request_id", requestID).
		Str("apiVersion", str(xr.Field("apiVersion"))).
		Str("kind", str(xr.Field("kind"))).
		Str("name", str(xr.Field("metadata", "name")))
	if tag := str(req.Field("meta", "tag")); tag != "" {
		if len(tag) > 7 {
			tag = tag[:7]
		}
		lc = lc.Str("tag", tag)
	}
	if step, err := req.Field("input", "step").Value(); err == nil && !step.IsAbsent() {
		lc = lc.Interface("step", step.Interface())
	}
	return lc.Logger()
}

// Identify returns the composition identifier of a request. Bootstrap
// composites carry it in spec.composite, everything else in the function
// input.
func Identify(req value.Handle) (string, error) {
	xr := req.Field("observed", "composite", "resource")
	if str(xr.Field("apiVersion")) == BootstrapAPIVersion && str(xr.Field("kind")) == BootstrapKind {
		v, err := xr.Field("spec", IdentifierField).Value()
		if err != nil || v.Kind() != value.KindString {
			return "", NewMissingIdentifierError(`Missing spec "composite"`)
		}
		return v.Str(), nil
	}
	v, err := req.Field("input", IdentifierField).Value()
	if err != nil || v.Kind() != value.KindString {
		return "", NewMissingIdentifierError(`Missing input "composite"`)
	}
	return v.Str(), nil
}

func instantiate(unit composite.Unit, c *composite.Composite) (comp composite.Composition, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return unit.New(c)
}

// compose awaits comp. The transport context does not cancel it; only the
// compose timeout does.
func (r *Runner) compose(ctx context.Context, comp composite.Composition) (err error) {
	ctx = context.WithoutCancel(ctx)
	if r.composeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.composeTimeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return composite.Await(ctx, comp)
}

// reconcile resolves the unknowns of desired resources. A resource with an
// observed counterpart takes the observed values and loses the unknowns that
// remain; one without is dropped from the response.
func (r *Runner) reconcile(c *composite.Composite, log zerolog.Logger) error {
	for _, name := range c.Resources.Names() {
		res := c.Resources.Get(name)
		if !res.HasUnknowns() {
			continue
		}
		if !res.IsObserved() {
			if err := c.Resources.Delete(name); err != nil {
				return err
			}
			r.metrics.RecordResources(telemetry.ActionDeleted, 1)
			log.Debug().Str("resource", name).Msg("Dropped resource with unknown values")
			continue
		}
		patched, _, err := value.PatchUnknowns(res.Desired, res.Observed)
		if err != nil {
			return err
		}
		dropped, err := value.DropUnknowns(res.Desired)
		if err != nil {
			return err
		}
		r.metrics.RecordResources(telemetry.ActionPatched, patched)
		r.metrics.RecordResources(telemetry.ActionDropped, dropped)
		log.Debug().
			Str("resource", name).
			Int("patched", patched).
			Int("dropped", dropped).
			Msg("Patched unknown values from observed")
	}

	dropped, err := value.DropUnknowns(c.Response)
	if err != nil {
		return err
	}
	r.metrics.RecordResources(telemetry.ActionDropped, dropped)
	return nil
}

// deriveReady marks resources ready whose readiness is unset and whose Ready
// condition is True.
func (r *Runner) deriveReady(c *composite.Composite, log zerolog.Logger) error {
	if !c.AutoReady {
		return nil
	}
	for _, name := range c.Resources.Names() {
		res := c.Resources.Get(name)
		if res.DesiredReady() != composite.ReadyUnspecified {
			continue
		}
		if res.Conditions.Get("Ready").Status() != composite.StatusTrue {
			continue
		}
		if err := res.SetReady(composite.ReadyTrue); err != nil {
			return err
		}
		r.metrics.RecordResources(telemetry.ActionAutoReady, 1)
		log.Debug().Str("resource", name).Msg("Resource is ready")
	}
	return nil
}

// fatal appends a fatal result carrying the error message and logs the
// error with its full detail.
func (r *Runner) fatal(rsp *fnv1.RunFunctionResponse, response *value.Tree, span trace.Span, log zerolog.Logger, err error) {
	class := ClassOf(err)

	ev := log.Error().Str("class", string(class))
	if fe, ok := err.(*FunctionError); ok && fe.Err != nil {
		ev = ev.AnErr("cause", fe.Err)
	}
	if bt := script.Backtrace(err); bt != "" {
		ev = ev.Str("backtrace", bt)
	}
	ev.Msg(err.Error())

	if _, dropErr := value.DropUnknowns(response.Root()); dropErr != nil {
		log.Warn().Err(dropErr).Msg("Failed to drop unknown values")
	}

	rsp.Results = append(rsp.Results, &fnv1.Result{
		Severity: fnv1.Severity_SEVERITY_FATAL,
		Message:  err.Error(),
	})

	span.SetAttributes(telemetry.AttrErrorClass.String(string(class)))
	telemetry.RecordError(span, err)
	r.metrics.RecordFatal(string(class))
}

func str(h value.Handle) string {
	v, err := h.Value()
	if err != nil || v.Kind() != value.KindString {
		return ""
	}
	return v.Str()
}
