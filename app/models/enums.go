package models

// SessionStatus defines the lifecycle states of a proctoring session.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionActive     SessionStatus = "active"
	SessionPaused     SessionStatus = "paused"
	SessionCompleted  SessionStatus = "completed"
	SessionTerminated SessionStatus = "terminated"
	SessionFailed     SessionStatus = "failed"
)

// IsTerminal reports whether no further events or interventions are accepted.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionTerminated, SessionFailed:
		return true
	}
	return false
}

// Severity defines how serious an integrity event is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// EventType names what the detector observed. Unknown values are stored as-is.
type EventType string

const (
	EventMultipleFaces     EventType = "multiple_faces"
	EventNoFace            EventType = "no_face"
	EventFaceMismatch      EventType = "face_mismatch"
	EventLookingAway       EventType = "looking_away"
	EventObjectDetected    EventType = "object_detected"
	EventAudioConversation EventType = "audio_conversation"
	EventAudioUnusual      EventType = "audio_unusual"
	EventTabSwitch         EventType = "tab_switch"
	EventWindowSwitch      EventType = "window_switch"
	EventScreenShare       EventType = "screen_share"
	EventFullscreenExit    EventType = "fullscreen_exit"
	EventFocusLost         EventType = "focus_lost"
	EventCopyPaste         EventType = "copy_paste"
	EventNetworkDisconnect EventType = "network_disconnect"
	EventNetworkReconnect  EventType = "network_reconnect"
	EventSystemInfo        EventType = "system_info"
	EventIdentityVerified  EventType = "identity_verified"
	EventOther             EventType = "other"
)

// AlertStatus defines the reviewer workflow of an alert.
type AlertStatus string

const (
	AlertPending      AlertStatus = "pending"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// InterventionType defines the actions a reviewer can take against a session.
type InterventionType string

const (
	InterventionWarning   InterventionType = "warning"
	InterventionMessage   InterventionType = "message"
	InterventionPause     InterventionType = "pause_exam"
	InterventionTerminate InterventionType = "terminate_exam"
)

// Valid reports whether t is a known intervention type.
func (t InterventionType) Valid() bool {
	switch t {
	case InterventionWarning, InterventionMessage, InterventionPause, InterventionTerminate:
		return true
	}
	return false
}

// Reviewer role names carried in JWT claims.
const (
	RoleAdmin      = "admin"
	RoleInstructor = "instructor"
	RoleProctor    = "proctor"
	RoleStudent    = "student"
)
