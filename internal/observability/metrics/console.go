package metrics

import (
	"time"

	obserrors "github.com/acme/acct-console/internal/observability/errors"
	"github.com/acme/acct-console/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultPresent = "present"
	ResultAbsent  = "absent"
	ResultSuccess = "success"
	ResultError   = "error"
)

// EmitGuardDecision counts one guard evaluation.
func EmitGuardDecision(sink statsd.Sink, decision, client string) {
	if sink == nil {
		return
	}
	sink.Count("guard.decision", 1, map[string]string{
		"decision": decision,
		"client":   client,
	})
}

// IdentityFetch captures one upstream identity lookup made by the identity cache.
type IdentityFetch struct {
	Present  bool
	Duration time.Duration
	Err      error
}

// EmitIdentityFetch emits identity fetch count and timing.
func EmitIdentityFetch(sink statsd.Sink, in IdentityFetch) {
	if sink == nil {
		return
	}

	result := ResultAbsent
	if in.Present {
		result = ResultPresent
	}
	tags := map[string]string{"result": result}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("identity.fetch", 1, tags)
	if in.Duration > 0 {
		sink.Timing("identity.fetch", in.Duration, CloneTags(tags))
	}
}

// UpstreamCall captures one account API request.
type UpstreamCall struct {
	Operation string
	Status    int
	Duration  time.Duration
	Err       error
}

// EmitUpstreamCall emits account API call count and timing.
func EmitUpstreamCall(sink statsd.Sink, in UpstreamCall) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"operation": in.Operation,
		"result":    ResultSuccess,
	}
	if in.Err != nil {
		tags["result"] = ResultError
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("account_api.request", 1, tags)
	if in.Duration > 0 {
		sink.Timing("account_api.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
