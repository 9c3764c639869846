package types

// Session is the request-scoped actor context attached to every mutating
// call. It replaces any ambient global: handlers build it from the incoming
// request, services only ever receive it explicitly.
type Session struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	IPAddress string `json:"ipAddress"`
}

// SystemSession is the sentinel identity recorded when no authenticated
// actor is available. Audit writes never fail for lack of an actor.
func SystemSession() *Session {
	return &Session{UserID: "system", UserName: "System"}
}

// OrSystem returns s, or the System identity when s is nil or empty.
func (s *Session) OrSystem() *Session {
	if s == nil || s.UserID == "" {
		return SystemSession()
	}
	return s
}
