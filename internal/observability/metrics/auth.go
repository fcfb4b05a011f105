// Package metrics maps auth events onto StatsD counters and timers.
package metrics

import (
	"time"

	domainauth "github.com/target/tokengate/internal/domain/auth"
	obserrors "github.com/target/tokengate/internal/observability/errors"
	"github.com/target/tokengate/internal/ports"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Operation names used as the "op" tag.
const (
	OpRegister = "register"
	OpLogin    = "login"
	OpRefresh  = "refresh"
	OpLogout   = "logout"
	OpRevoke   = "revoke"
)

// EmitGateOutcome counts one authentication gate decision.
func EmitGateOutcome(sink ports.MetricsSink, outcome domainauth.GateOutcome) {
	if sink == nil {
		return
	}
	sink.Count("auth.gate", 1, map[string]string{"outcome": string(outcome)})
}

// EmitOperation counts one auth operation and tags failures with their error class.
func EmitOperation(sink ports.MetricsSink, op string, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"op": op, "result": ResultSuccess}
	if err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(err)
	}
	sink.Count("auth.operation", 1, tags)
}

// TimingSink is implemented by sinks that also record durations.
type TimingSink interface {
	Timing(name string, value time.Duration, tags map[string]string)
}

// EmitRequest records an HTTP request duration when sink supports timings.
func EmitRequest(sink ports.MetricsSink, route string, status int, d time.Duration) {
	ts, ok := sink.(TimingSink)
	if !ok {
		return
	}
	ts.Timing("http.request", d, map[string]string{"route": route, "status": statusClass(status)})
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
