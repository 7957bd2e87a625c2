package auth

// Status is the authoritative session state. Transitions are owned
// exclusively by the Manager; every other component reads the session or
// requests a transition through the Manager's entry points.
type Status string

const (
	StatusAnonymous      Status = "anonymous"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	StatusError          Status = "error"
)

// Session answers "am I logged in, and as whom". Error carries the
// user-facing failure message while Status is StatusError.
type Session struct {
	Status Status
	User   *User
	Error  string
}

// Authenticated reports whether a valid user is signed in.
func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// SessionChanged is published on the event bus after every transition.
type SessionChanged struct {
	Previous Session
	Current  Session
}
