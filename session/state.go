package session

import "fmt"

// State is the authentication status of the session.
type State int

const (
	Anonymous State = iota
	// Authenticating: callback tokens stored, first verification outstanding.
	Authenticating
	Authenticated
	// Expired: the access token was rejected and a refresh is under way.
	Expired
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{Anonymous, Authenticating, Authenticated, Expired} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}
