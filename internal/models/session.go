// internal/models/session.go
package models

// Session is the explicit caller context passed into every externally
// triggered operation. It replaces ambient global session state and is used
// for audit logging only; authentication happens outside this service.
type Session struct {
	ActorID string `json:"actorId"`
	Role    string `json:"role"`
}

// SystemSession is the session attached to background work such as
// scheduler ticks.
var SystemSession = Session{ActorID: "system", Role: "scheduler"}
