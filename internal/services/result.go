package services

// CallStatus tags the outcome of an external-collaborator call.
type CallStatus string

const (
	StatusOk       CallStatus = "ok"
	StatusFallback CallStatus = "fallback"
	StatusFatal    CallStatus = "fatal"
)

// CallResult is the single result type every external collaborator (reply
// generator, suggestion generator, config store) returns. Recoverable
// failures carry a usable fallback value plus the reason; only Fatal results
// have no value at all. Callers decide presentation in one place instead of
// scattering alert/log/ignore across call sites.
type CallResult struct {
	Status CallStatus `json:"status"`
	Value  string     `json:"value,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

func Ok(value string) CallResult {
	return CallResult{Status: StatusOk, Value: value}
}

func Fallback(value, reason string) CallResult {
	return CallResult{Status: StatusFallback, Value: value, Reason: reason}
}

func Fatal(reason string) CallResult {
	return CallResult{Status: StatusFatal, Reason: reason}
}

// Usable reports whether the result carries a value the caller can present.
func (r CallResult) Usable() bool {
	return r.Status == StatusOk || r.Status == StatusFallback
}
