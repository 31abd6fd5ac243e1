package fake

import "sync"

// Call records a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// CallRecorder tracks method calls for assertion in tests.
type CallRecorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *CallRecorder) record(method string, args ...any) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Method: method, Args: args})
	r.mu.Unlock()
}

// Calls returns recorded calls. If method is "", returns all calls.
func (r *CallRecorder) Calls(method string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	if method == "" {
		out := make([]Call, len(r.calls))
		copy(out, r.calls)
		return out
	}

	var out []Call
	for _, c := range r.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Mutations returns the names of recorded calls that change remote state,
// in order.
func (r *CallRecorder) Mutations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, c := range r.calls {
		if mutating[c.Method] {
			out = append(out, c.Method)
		}
	}
	return out
}

// Reset clears all recorded calls.
func (r *CallRecorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

var mutating = map[string]bool{
	"UpdateApplication":   true,
	"CreateService":       true,
	"CreateInstance":      true,
	"UpdateService":       true,
	"UpdateInstance":      true,
	"ReprovisionInstance": true,
	"DeleteInstance":      true,
	"DeleteService":       true,
	"SetBootParams":       true,
	"CommandExecute":      true,
	"UpdateVM":            true,
	"ImportRemoteImage":   true,
	"AddPackage":          true,
}
