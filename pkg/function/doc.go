// Package function implements the RunFunction service of the composition
// function.
//
// A Runner takes each request through the same steps: it identifies the
// composition the request names, resolves it to a unit, instantiates the
// unit over the request and a response built from it, and awaits compose.
// Desired resources still holding unknown values are then patched from
// their observed counterparts or dropped, and resources whose Ready
// condition is True are marked ready unless the composition opted out.
//
// Every failure ends the request with a fatal result carrying the error
// message and is logged with its class; RunFunction itself never returns an
// error:
//
//	rsp, _ := runner.RunFunction(ctx, req)
//	for _, r := range rsp.GetResults() {
//		if r.GetSeverity() == fnv1.Severity_SEVERITY_FATAL {
//			log.Println(r.GetMessage())
//		}
//	}
package function
