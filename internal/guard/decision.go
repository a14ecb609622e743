package guard

import "encoding/json"

// State is the authorizer FSM state a decision ends in.
type State string

const (
	StateLoading          State = "Loading"
	StateUnauthenticated  State = "Unauthenticated"
	StateAwaitingProfile  State = "AwaitingProfile"
	StateStalled          State = "Stalled"
	StateAllow            State = "Allow"
	StateAllowPending     State = "AllowPending" // pending staff, allowed by configuration
	StateRedirectLogin    State = "RedirectLogin"
	StateRedirectHome     State = "RedirectHome"
	StateRedirectPlatform State = "RedirectPlatform"
)

// Kind collapses states into what an adapter has to do.
type Kind string

const (
	KindLoading         Kind = "loading"
	KindAwaitingProfile Kind = "awaiting_profile"
	KindStalled         Kind = "stalled"
	KindAllow           Kind = "allow"
	KindRedirect        Kind = "redirect"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is the single user-visible message attached to a denial.
type Notice struct {
	Level Level  `json:"level"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Decision is the outcome of one policy evaluation. Target and From are
// set for redirects; From is the originally requested path when the caller
// should return there after signing in.
type Decision struct {
	State  State   `json:"state"`
	Target string  `json:"target,omitempty"`
	From   string  `json:"from,omitempty"`
	Notice *Notice `json:"notice,omitempty"`
}

func (d Decision) Kind() Kind {
	switch d.State {
	case StateLoading:
		return KindLoading
	case StateAwaitingProfile:
		return KindAwaitingProfile
	case StateStalled:
		return KindStalled
	case StateAllow, StateAllowPending:
		return KindAllow
	case StateUnauthenticated, StateRedirectLogin, StateRedirectHome, StateRedirectPlatform:
		return KindRedirect
	default:
		return KindRedirect
	}
}

func (d Decision) Allowed() bool { return d.Kind() == KindAllow }

// key identifies a decision for act-once bookkeeping.
func (d Decision) key() string {
	b, _ := json.Marshal(d)
	return string(b)
}

// MarshalJSON adds the derived kind.
func (d Decision) MarshalJSON() ([]byte, error) {
	type plain Decision
	return json.Marshal(struct {
		plain
		Kind Kind `json:"kind"`
	}{plain(d), d.Kind()})
}

func loading() Decision  { return Decision{State: StateLoading} }
func awaiting() Decision { return Decision{State: StateAwaitingProfile} }
func allow() Decision    { return Decision{State: StateAllow} }

func stalled() Decision {
	return Decision{State: StateStalled, Notice: &Notice{
		Level: LevelError,
		Title: "Still loading",
		Body:  "Your account details could not be loaded. Please try again.",
	}}
}
