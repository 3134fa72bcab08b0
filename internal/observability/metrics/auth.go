package metrics

import (
	"time"

	apperrors "github.com/spie-ics/meraki-captive-portal/internal/errors"
	obserrors "github.com/spie-ics/meraki-captive-portal/internal/observability/errors"
	"github.com/spie-ics/meraki-captive-portal/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Stage names the step of the sign-in flow a metric belongs to.
type Stage string

const (
	StageLogin    Stage = "login"
	StageRedirect Stage = "redirect"
	StageLogout   Stage = "logout"
)

// AuthMetric captures one sign-in flow step for metric emission.
type AuthMetric struct {
	Stage    Stage
	Result   string
	Duration time.Duration
	Err      error
}

// EmitAuthFlow emits standardised sign-in flow metrics.
func EmitAuthFlow(sink statsd.Sink, in AuthMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"stage":  string(in.Stage),
		"result": in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if code := apperrors.GetCode(in.Err); code != "" {
			tags["error_code"] = string(code)
		}
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("auth.flow", 1, tags)

	if in.Duration > 0 {
		sink.Timing("auth.flow.duration", in.Duration, CloneTags(tags))
	}
}

// EmitExchangeTiming records how long the code redemption took.
func EmitExchangeTiming(sink statsd.Sink, d time.Duration, err error) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	sink.Timing("auth.exchange.duration", d, map[string]string{"result": result})
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
