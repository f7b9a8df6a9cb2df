package script

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"

	"github.com/openfroyo/function-starlark/pkg/composite"
)

// facet carries the parts of starlark.Value every facet shares.
type facet struct {
	name string
}

func (f facet) String() string        { return "<" + f.name + ">" }
func (f facet) Type() string          { return f.name }
func (f facet) Freeze()               {}
func (f facet) Truth() starlark.Bool  { return starlark.True }
func (f facet) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", f.name) }

func stringKey(label string, k starlark.Value) (string, error) {
	s, ok := k.(starlark.String)
	if !ok {
		return "", fmt.Errorf("%s: key must be a string, got %s", label, k.Type())
	}
	return string(s), nil
}

func optString(v starlark.Value) (*string, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		s := string(x)
		return &s, nil
	}
	return nil, fmt.Errorf("want string or None, got %s", v.Type())
}

func optBool(v starlark.Value) *bool {
	if v == starlark.None {
		return nil
	}
	b := bool(v.Truth())
	return &b
}

func boolValue(b *bool) starlark.Value {
	if b == nil {
		return starlark.None
	}
	return starlark.Bool(*b)
}

func toBytes(label string, v starlark.Value) ([]byte, error) {
	switch x := v.(type) {
	case starlark.String:
		return []byte(x), nil
	case starlark.Bytes:
		return []byte(x), nil
	}
	return nil, fmt.Errorf("%s: want string or bytes, got %s", label, v.Type())
}

// conditionsValue is a set of conditions indexed by type.
type conditionsValue struct {
	facet
	c *composite.Conditions
}

func newConditions(c *composite.Conditions) *conditionsValue {
	return &conditionsValue{facet: facet{"Conditions"}, c: c}
}

func (cs *conditionsValue) Attr(name string) (starlark.Value, error) {
	return newCondition(cs.c.Get(name)), nil
}
func (cs *conditionsValue) AttrNames() []string { return cs.c.Types() }

func (cs *conditionsValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	typ, err := stringKey("conditions", k)
	if err != nil {
		return nil, false, err
	}
	return newCondition(cs.c.Get(typ)), true, nil
}

func (cs *conditionsValue) Len() int                   { return len(cs.c.Types()) }
func (cs *conditionsValue) Iterate() starlark.Iterator { return stringIterator(cs.c.Types()) }

// conditionValue is one condition. Status reads as True, False or None.
type conditionValue struct {
	facet
	c *composite.Condition
}

func newCondition(c *composite.Condition) *conditionValue {
	return &conditionValue{facet: facet{"Condition"}, c: c}
}

func (cv *conditionValue) String() string {
	return fmt.Sprintf("<Condition %s %s>", cv.c.Type(), cv.c.Status())
}

func (cv *conditionValue) Truth() starlark.Bool { return starlark.Bool(cv.c.Exists()) }

func (cv *conditionValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "type":
		return starlark.String(cv.c.Type()), nil
	case "status":
		return statusValue(cv.c.Status()), nil
	case "reason":
		return starlark.String(cv.c.Reason()), nil
	case "message":
		return starlark.String(cv.c.Message()), nil
	case "claim":
		return boolValue(cv.c.Claim()), nil
	case "lastTransitionTime":
		if ts, ok := cv.c.LastTransitionTime(); ok {
			return starlark.String(ts.Format(time.RFC3339)), nil
		}
		return starlark.None, nil
	}
	return nil, nil
}

func (cv *conditionValue) AttrNames() []string {
	return []string{"claim", "lastTransitionTime", "message", "reason", "status", "type"}
}

func (cv *conditionValue) SetField(name string, v starlark.Value) error {
	var u composite.ConditionUpdate
	switch name {
	case "status":
		s := parseStatus(v)
		u.Status = &s
	case "reason", "message":
		s, ok := v.(starlark.String)
		if !ok {
			return fmt.Errorf("condition %s: want string, got %s", name, v.Type())
		}
		str := string(s)
		if name == "reason" {
			u.Reason = &str
		} else {
			u.Message = &str
		}
	case "claim":
		u.Claim = optBool(v)
		if u.Claim == nil {
			return fmt.Errorf("condition claim: want True or False")
		}
	default:
		return fmt.Errorf("condition has no field %s", name)
	}
	return cv.c.Update(u)
}

// CallInternal updates several fields at once:
//
//	self.conditions.Ready(status=True, reason="Available")
func (cv *conditionValue) CallInternal(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var status, reason, message, claim starlark.Value = nil, starlark.None, starlark.None, starlark.None
	if err := starlark.UnpackArgs(cv.c.Type(), args, kwargs,
		"status?", &status, "reason?", &reason, "message?", &message, "claim?", &claim); err != nil {
		return nil, err
	}
	var u composite.ConditionUpdate
	var err error
	if status != nil {
		s := parseStatus(status)
		u.Status = &s
	}
	if u.Reason, err = optString(reason); err != nil {
		return nil, fmt.Errorf("%s reason: %w", cv.c.Type(), err)
	}
	if u.Message, err = optString(message); err != nil {
		return nil, fmt.Errorf("%s message: %w", cv.c.Type(), err)
	}
	u.Claim = optBool(claim)
	if err := cv.c.Update(u); err != nil {
		return nil, err
	}
	return cv, nil
}

func (cv *conditionValue) Name() string { return cv.c.Type() }

func statusValue(s composite.ConditionStatus) starlark.Value {
	switch s {
	case composite.StatusTrue:
		return starlark.True
	case composite.StatusFalse:
		return starlark.False
	}
	return starlark.None
}

func parseStatus(v starlark.Value) composite.ConditionStatus {
	switch x := v.(type) {
	case starlark.Bool:
		if x {
			return composite.StatusTrue
		}
		return composite.StatusFalse
	case starlark.String:
		switch string(x) {
		case "True":
			return composite.StatusTrue
		case "False":
			return composite.StatusFalse
		}
	}
	return composite.StatusUnknown
}

// connectionValue maps connection detail keys to bytes.
type connectionValue struct {
	facet
	c *composite.Connection
}

func newConnection(c *composite.Connection) *connectionValue {
	return &connectionValue{facet: facet{"Connection"}, c: c}
}

func (cv *connectionValue) lookup(key string) starlark.Value {
	if b, ok := cv.c.Get(key); ok {
		return starlark.Bytes(b)
	}
	return starlark.None
}

func (cv *connectionValue) Attr(name string) (starlark.Value, error) { return cv.lookup(name), nil }
func (cv *connectionValue) AttrNames() []string                      { return cv.c.Keys() }

func (cv *connectionValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	key, err := stringKey("connection", k)
	if err != nil {
		return nil, false, err
	}
	return cv.lookup(key), true, nil
}

func (cv *connectionValue) set(key string, v starlark.Value) error {
	if v == starlark.None {
		return cv.c.Delete(key)
	}
	b, err := toBytes("connection."+key, v)
	if err != nil {
		return err
	}
	return cv.c.Set(key, b)
}

func (cv *connectionValue) SetField(name string, v starlark.Value) error { return cv.set(name, v) }

func (cv *connectionValue) SetKey(k, v starlark.Value) error {
	key, err := stringKey("connection", k)
	if err != nil {
		return err
	}
	return cv.set(key, v)
}

func (cv *connectionValue) Len() int                   { return len(cv.c.Keys()) }
func (cv *connectionValue) Iterate() starlark.Iterator { return stringIterator(cv.c.Keys()) }

// resourcesValue indexes composed resources by name.
type resourcesValue struct {
	facet
	r *composite.Resources
}

func newResources(r *composite.Resources) *resourcesValue {
	return &resourcesValue{facet: facet{"Resources"}, r: r}
}

func (rs *resourcesValue) Attr(name string) (starlark.Value, error) {
	return newResource(rs.r.Get(name)), nil
}
func (rs *resourcesValue) AttrNames() []string { return rs.r.Names() }

func (rs *resourcesValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	name, err := stringKey("resources", k)
	if err != nil {
		return nil, false, err
	}
	return newResource(rs.r.Get(name)), true, nil
}

// set replaces the desired body of a resource. None deletes it.
func (rs *resourcesValue) set(name string, v starlark.Value) error {
	if v == starlark.None {
		return rs.r.Delete(name)
	}
	cv, err := toValue(v)
	if err != nil {
		return fmt.Errorf("resources.%s: %w", name, err)
	}
	return rs.r.Get(name).Body().Replace(cv)
}

func (rs *resourcesValue) SetField(name string, v starlark.Value) error { return rs.set(name, v) }

func (rs *resourcesValue) SetKey(k, v starlark.Value) error {
	name, err := stringKey("resources", k)
	if err != nil {
		return err
	}
	return rs.set(name, v)
}

func (rs *resourcesValue) Len() int                   { return rs.r.Len() }
func (rs *resourcesValue) Iterate() starlark.Iterator { return stringIterator(rs.r.Names()) }

// resourceValue is one composed resource. Unknown attributes address the
// desired body.
type resourceValue struct {
	facet
	r *composite.Resource
}

func newResource(r *composite.Resource) *resourceValue {
	return &resourceValue{facet: facet{"Resource"}, r: r}
}

func (rv *resourceValue) String() string       { return fmt.Sprintf("<Resource %s>", rv.r.Name) }
func (rv *resourceValue) Truth() starlark.Bool { return starlark.Bool(rv.r.Exists()) }
func (rv *resourceValue) Name() string         { return rv.r.Name }

func (rv *resourceValue) Attr(name string) (starlark.Value, error) {
	r := rv.r
	switch name {
	case "name":
		return starlark.String(r.Name), nil
	case "observed":
		return wrap(r.ObservedBody())
	case "desired":
		return wrap(r.Body())
	case "apiVersion":
		return starlark.String(r.APIVersion()), nil
	case "kind":
		return starlark.String(r.Kind()), nil
	case "status":
		return wrap(r.Status())
	case "conditions":
		return newConditions(r.Conditions), nil
	case "connection":
		return newConnection(r.Connection), nil
	case "externalName":
		if n := r.ExternalName(); n != "" {
			return starlark.String(n), nil
		}
		return starlark.None, nil
	case "ready":
		return readyValue(r.Ready()), nil
	}
	return wrap(r.Body().Field(name))
}

func (rv *resourceValue) AttrNames() []string {
	names := []string{"apiVersion", "conditions", "connection", "desired", "externalName", "kind", "name", "observed", "ready", "status"}
	names = append(names, rv.r.Body().Keys()...)
	sort.Strings(names)
	return names
}

func (rv *resourceValue) SetField(name string, v starlark.Value) error {
	r := rv.r
	switch name {
	case "apiVersion", "kind", "externalName":
		s, ok := v.(starlark.String)
		if !ok {
			return fmt.Errorf("%s.%s: want string, got %s", r.Name, name, v.Type())
		}
		switch name {
		case "apiVersion":
			return r.SetAPIVersion(string(s))
		case "kind":
			return r.SetKind(string(s))
		}
		return r.SetExternalName(string(s))
	case "ready":
		ready, err := parseReady(v)
		if err != nil {
			return err
		}
		return r.SetReady(ready)
	case "desired":
		return assign(r.Body(), v)
	case "name", "observed", "status", "conditions", "connection":
		return fmt.Errorf("%s.%s: %w", r.Name, name, composite.ErrReadOnly)
	}
	return assign(r.Body().Field(name), v)
}

// CallInternal resets the desired body:
//
//	self.resources.vpc("ec2.aws.upbound.io/v1beta1", "VPC")
func (rv *resourceValue) CallInternal(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var f composite.ResourceFields
	if err := starlark.UnpackArgs(rv.r.Name, args, kwargs,
		"apiVersion?", &f.APIVersion, "kind?", &f.Kind, "name?", &f.Name, "namespace?", &f.Namespace); err != nil {
		return nil, err
	}
	if err := rv.r.Reset(f); err != nil {
		return nil, err
	}
	return rv, nil
}

// requiredsValue indexes requirements by name.
type requiredsValue struct {
	facet
	r *composite.Requireds
}

func newRequireds(r *composite.Requireds) *requiredsValue {
	return &requiredsValue{facet: facet{"Requireds"}, r: r}
}

func (rs *requiredsValue) Attr(name string) (starlark.Value, error) {
	return newRequiredResources(rs.r.Get(name)), nil
}
func (rs *requiredsValue) AttrNames() []string { return rs.r.Names() }

func (rs *requiredsValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	name, err := stringKey("requireds", k)
	if err != nil {
		return nil, false, err
	}
	return newRequiredResources(rs.r.Get(name)), true, nil
}

func (rs *requiredsValue) Len() int                   { return len(rs.r.Names()) }
func (rs *requiredsValue) Iterate() starlark.Iterator { return stringIterator(rs.r.Names()) }

// requiredResourcesValue is one requirement. Calling it sets the selector;
// indexing it reads the supplied resources.
type requiredResourcesValue struct {
	facet
	r *composite.RequiredResources
}

func newRequiredResources(r *composite.RequiredResources) *requiredResourcesValue {
	return &requiredResourcesValue{facet: facet{"RequiredResources"}, r: r}
}

var (
	_ starlark.Mapping  = (*requiredResourcesValue)(nil)
	_ starlark.Callable = (*requiredResourcesValue)(nil)
)

func (rr *requiredResourcesValue) Name() string         { return rr.r.Name }
func (rr *requiredResourcesValue) Truth() starlark.Bool { return starlark.Bool(rr.r.Len() > 0) }
func (rr *requiredResourcesValue) Len() int             { return rr.r.Len() }

func (rr *requiredResourcesValue) Index(i int) starlark.Value {
	return newRequiredResource(rr.r.Item(i))
}

// Get indexes the supplied resources. Indexes past the end yield a falsy
// placeholder instead of failing.
func (rr *requiredResourcesValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	i, err := toInt(k)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", rr.r.Name, err)
	}
	return rr.Index(i), true, nil
}

func (rr *requiredResourcesValue) Iterate() starlark.Iterator {
	items := make([]starlark.Value, rr.r.Len())
	for i := range items {
		items[i] = rr.Index(i)
	}
	return &sliceIterator{items: items}
}

func (rr *requiredResourcesValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(rr.r.Name), nil
	case "apiVersion", "kind", "matchName":
		s, ok := rr.r.Selector()
		if !ok {
			return starlark.None, nil
		}
		switch name {
		case "apiVersion":
			return starlark.String(s.APIVersion), nil
		case "kind":
			return starlark.String(s.Kind), nil
		}
		if s.MatchName == "" {
			return starlark.None, nil
		}
		return starlark.String(s.MatchName), nil
	case "matchLabels":
		s, ok := rr.r.Selector()
		if !ok || s.MatchLabels == nil {
			return starlark.None, nil
		}
		keys := make([]string, 0, len(s.MatchLabels))
		for k := range s.MatchLabels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(keys))
		for _, k := range keys {
			if err := d.SetKey(starlark.String(k), starlark.String(s.MatchLabels[k])); err != nil {
				return nil, err
			}
		}
		return d, nil
	case "clear":
		return starlark.NewBuiltin("clear", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return starlark.None, rr.r.Clear()
		}), nil
	}
	return nil, nil
}

func (rr *requiredResourcesValue) AttrNames() []string {
	return []string{"apiVersion", "clear", "kind", "matchLabels", "matchName", "name"}
}

// selectorAliases are the short keyword forms accepted for the selector.
var selectorAliases = map[string]string{
	"name":   "matchName",
	"labels": "matchLabels",
}

// CallInternal selects the resources to fetch:
//
//	self.requireds.vpcs("ec2.aws.upbound.io/v1beta1", "VPC", matchLabels={"team": "a"})
//	self.requireds.vpc("ec2.aws.upbound.io/v1beta1", "VPC", name="shared")
func (rr *requiredResourcesValue) CallInternal(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s composite.Selector
	var labels starlark.Value = starlark.None
	var matchName starlark.Value = starlark.None
	renamed := make([]starlark.Tuple, len(kwargs))
	for i, kv := range kwargs {
		renamed[i] = kv
		if k, ok := kv[0].(starlark.String); ok {
			if canonical, ok := selectorAliases[string(k)]; ok {
				renamed[i] = starlark.Tuple{starlark.String(canonical), kv[1]}
			}
		}
	}
	kwargs = renamed
	if err := starlark.UnpackArgs(rr.r.Name, args, kwargs,
		"apiVersion", &s.APIVersion, "kind", &s.Kind, "matchName?", &matchName, "matchLabels?", &labels); err != nil {
		return nil, err
	}
	if name, ok := matchName.(starlark.String); ok {
		s.MatchName = string(name)
	}
	if labels != starlark.None {
		cv, err := toValue(labels)
		if err != nil {
			return nil, fmt.Errorf("%s matchLabels: %w", rr.r.Name, err)
		}
		s.MatchLabels = map[string]string{}
		for _, k := range cv.Keys() {
			s.MatchLabels[k] = cv.Field(k).Str()
		}
	}
	if err := rr.r.Select(s); err != nil {
		return nil, err
	}
	return rr, nil
}

// requiredResourceValue is one supplied extra resource. Unknown attributes
// address its body.
type requiredResourceValue struct {
	facet
	r *composite.RequiredResource
}

func newRequiredResource(r *composite.RequiredResource) *requiredResourceValue {
	return &requiredResourceValue{facet: facet{"RequiredResource"}, r: r}
}

func (rv *requiredResourceValue) Truth() starlark.Bool { return starlark.Bool(rv.r.Exists()) }

func (rv *requiredResourceValue) Attr(name string) (starlark.Value, error) {
	r := rv.r
	switch name {
	case "name":
		return starlark.String(r.Name), nil
	case "apiVersion":
		return starlark.String(r.APIVersion()), nil
	case "kind":
		return starlark.String(r.Kind()), nil
	case "conditions":
		return newConditions(r.Conditions), nil
	case "connection":
		return newConnection(r.Connection), nil
	}
	return wrap(r.Body().Field(name))
}

func (rv *requiredResourceValue) AttrNames() []string {
	names := append([]string{"apiVersion", "conditions", "connection", "kind", "name"}, rv.r.Body().Keys()...)
	sort.Strings(names)
	return names
}

// resultsValue appends results to the response:
//
//	self.results.warning("quota low", reason="Quota")
type resultsValue struct {
	facet
	r *composite.Results
}

func newResults(r *composite.Results) *resultsValue {
	return &resultsValue{facet: facet{"Results"}, r: r}
}

func (rs *resultsValue) Name() string { return "results" }
func (rs *resultsValue) Len() int     { return rs.r.Len() }

func (rs *resultsValue) Index(i int) starlark.Value { return newResult(rs.r.Item(i)) }

func (rs *resultsValue) Iterate() starlark.Iterator {
	items := make([]starlark.Value, rs.r.Len())
	for i := range items {
		items[i] = rs.Index(i)
	}
	return &sliceIterator{items: items}
}

func (rs *resultsValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "info":
		return rs.adder(name, composite.SeverityNormal), nil
	case "warning":
		return rs.adder(name, composite.SeverityWarning), nil
	case "fatal":
		return rs.adder(name, composite.SeverityFatal), nil
	}
	return nil, nil
}

func (rs *resultsValue) AttrNames() []string { return []string{"fatal", "info", "warning"} }

func (rs *resultsValue) adder(name string, severity composite.Severity) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var message string
		var reason, claim starlark.Value = starlark.None, starlark.None
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "message", &message, "reason?", &reason, "claim?", &claim); err != nil {
			return nil, err
		}
		return rs.add(severity, message, reason, claim)
	})
}

// CallInternal adds a result; fatal and warning pick the severity.
func (rs *resultsValue) CallInternal(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string
	var fatal, warning bool
	var reason, claim starlark.Value = starlark.None, starlark.None
	if err := starlark.UnpackArgs("results", args, kwargs,
		"message", &message, "fatal?", &fatal, "warning?", &warning, "reason?", &reason, "claim?", &claim); err != nil {
		return nil, err
	}
	severity := composite.SeverityNormal
	switch {
	case fatal:
		severity = composite.SeverityFatal
	case warning:
		severity = composite.SeverityWarning
	}
	return rs.add(severity, message, reason, claim)
}

func (rs *resultsValue) add(severity composite.Severity, message string, reason, claim starlark.Value) (starlark.Value, error) {
	spec := composite.ResultSpec{Severity: severity, Message: message, Claim: optBool(claim)}
	r, err := optString(reason)
	if err != nil {
		return nil, fmt.Errorf("results reason: %w", err)
	}
	if r != nil {
		spec.Reason = *r
	}
	res, err := rs.r.Add(spec)
	if err != nil {
		return nil, err
	}
	return newResult(res), nil
}

type resultValue struct {
	facet
	r *composite.Result
}

func newResult(r *composite.Result) *resultValue {
	return &resultValue{facet: facet{"Result"}, r: r}
}

func (rv *resultValue) String() string {
	return fmt.Sprintf("<Result %s %q>", rv.r.Severity(), rv.r.Message())
}

func (rv *resultValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "severity":
		return starlark.String(strings.TrimPrefix(rv.r.Severity().String(), "SEVERITY_")), nil
	case "message":
		return starlark.String(rv.r.Message()), nil
	case "reason":
		return starlark.String(rv.r.Reason()), nil
	case "claim":
		return boolValue(rv.r.Claim()), nil
	}
	return nil, nil
}

func (rv *resultValue) AttrNames() []string { return []string{"claim", "message", "reason", "severity"} }

// credentialsValue maps credential names to dicts of bytes.
type credentialsValue struct {
	facet
	c *composite.Credentials
}

func newCredentials(c *composite.Credentials) *credentialsValue {
	return &credentialsValue{facet: facet{"Credentials"}, c: c}
}

func (cv *credentialsValue) lookup(name string) starlark.Value {
	if !cv.c.Has(name) {
		return starlark.None
	}
	data := cv.c.Data(name)
	d := starlark.NewDict(len(data))
	for k, v := range data {
		_ = d.SetKey(starlark.String(k), starlark.Bytes(v))
	}
	d.Freeze()
	return d
}

func (cv *credentialsValue) Attr(name string) (starlark.Value, error) { return cv.lookup(name), nil }
func (cv *credentialsValue) AttrNames() []string                      { return cv.c.Names() }

func (cv *credentialsValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	name, err := stringKey("credentials", k)
	if err != nil {
		return nil, false, err
	}
	return cv.lookup(name), true, nil
}

func (cv *credentialsValue) Len() int                   { return len(cv.c.Names()) }
func (cv *credentialsValue) Iterate() starlark.Iterator { return stringIterator(cv.c.Names()) }

// loggerValue logs through the request logger. Keyword arguments become
// fields:
//
//	self.logger.info("created", bucket=name)
type loggerValue struct {
	facet
	logger zerolog.Logger
}

func newLogger(logger zerolog.Logger) *loggerValue {
	return &loggerValue{facet: facet{"Logger"}, logger: logger}
}

func (lv *loggerValue) Attr(name string) (starlark.Value, error) {
	var level zerolog.Level
	switch name {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	default:
		return nil, nil
	}
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			if s, ok := a.(starlark.String); ok {
				parts[i] = string(s)
			} else {
				parts[i] = a.String()
			}
		}
		fields := make(map[string]interface{}, len(kwargs))
		for _, kv := range kwargs {
			fields[string(kv[0].(starlark.String))] = toGo(kv[1])
		}
		lv.logger.WithLevel(level).Fields(fields).Msg(strings.Join(parts, " "))
		return starlark.None, nil
	}), nil
}

func (lv *loggerValue) AttrNames() []string { return []string{"debug", "error", "info", "warning"} }
