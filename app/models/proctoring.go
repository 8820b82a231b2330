package models

import "time"

// ProctoringSession is one monitored attempt by one student at one exam or quiz.
type ProctoringSession struct {
	ID                 string         `json:"id"`
	StudentID          string         `json:"student_id"`
	ExamID             *string        `json:"exam_id,omitempty"`
	QuizID             *string        `json:"quiz_id,omitempty"`
	CollegeID          string         `json:"college_id"`
	SettingsID         *string        `json:"settings_id,omitempty"`
	Status             SessionStatus  `json:"status"`
	ConsentGiven       bool           `json:"consent_given"`
	ConsentAt          *time.Time     `json:"consent_at,omitempty"`
	IdentityVerified   bool           `json:"identity_verified"`
	IdentityVerifiedAt *time.Time     `json:"identity_verified_at,omitempty"`
	DeviceInfo         map[string]any `json:"device_info,omitempty"`
	StartedAt          *time.Time     `json:"started_at,omitempty"`
	EndedAt            *time.Time     `json:"ended_at,omitempty"`
	DurationSeconds    int64          `json:"duration_seconds"`
	TotalCount         int            `json:"total_violations_count"`
	CriticalCount      int            `json:"critical_violations_count"`
	HighCount          int            `json:"high_violations_count"`
	MediumCount        int            `json:"medium_violations_count"`
	LowCount           int            `json:"low_violations_count"`
	IngestTokenHash    string         `json:"-"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with s.
func (s *ProctoringSession) Clone() *ProctoringSession {
	if s == nil {
		return nil
	}
	c := *s
	c.DeviceInfo = copyMap(s.DeviceInfo)
	return &c
}

// copyMap deep-copies decoded JSON objects and arrays.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// CountSeverity applies one accepted event of the given severity to the counters.
// Info events only count towards the total.
func (s *ProctoringSession) CountSeverity(sev Severity) {
	s.TotalCount++
	switch sev {
	case SeverityCritical:
		s.CriticalCount++
	case SeverityHigh:
		s.HighCount++
	case SeverityMedium:
		s.MediumCount++
	case SeverityLow:
		s.LowCount++
	}
}

// ProctoringEvent is one atomic observation reported by the detector.
type ProctoringEvent struct {
	ID               string         `json:"id"`
	SessionID        string         `json:"session_id"`
	EventType        EventType      `json:"event_type"`
	Severity         Severity       `json:"severity"`
	Description      string         `json:"description,omitempty"`
	Details          map[string]any `json:"details,omitempty"`
	SnapshotURL      string         `json:"snapshot_url,omitempty"`
	VideoURL         string         `json:"video_url,omitempty"`
	AudioURL         string         `json:"audio_url,omitempty"`
	AIConfidence     *float64       `json:"ai_confidence,omitempty"`
	AIModelVersion   string         `json:"ai_model_version,omitempty"`
	FlaggedForReview bool           `json:"flagged_for_review"`
	FlaggedBy        string         `json:"flagged_by,omitempty"`
	FlagReason       string         `json:"flag_reason,omitempty"`
	FlaggedAt        *time.Time     `json:"flagged_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Clone returns a copy that shares no mutable state with e.
func (e *ProctoringEvent) Clone() *ProctoringEvent {
	if e == nil {
		return nil
	}
	c := *e
	c.Details = copyMap(e.Details)
	if e.AIConfidence != nil {
		conf := *e.AIConfidence
		c.AIConfidence = &conf
	}
	if e.FlaggedAt != nil {
		at := *e.FlaggedAt
		c.FlaggedAt = &at
	}
	return &c
}

// ProctoringViolation is an integrity issue confirmed by a reviewer or a policy.
type ProctoringViolation struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"session_id"`
	EventID         *string    `json:"event_id,omitempty"`
	ViolationType   string     `json:"violation_type"`
	Severity        Severity   `json:"severity"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	EvidenceURLs    []string   `json:"evidence_urls"`
	Reviewed        bool       `json:"reviewed"`
	ReviewedBy      string     `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes     string     `json:"review_notes,omitempty"`
	ActionTaken     string     `json:"action_taken,omitempty"`
	IsFalsePositive bool       `json:"is_false_positive"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ProctoringAlert pages reviewers about a single high or critical event.
type ProctoringAlert struct {
	ID              string      `json:"id"`
	SessionID       string      `json:"session_id"`
	EventID         string      `json:"event_id"`
	AlertType       string      `json:"alert_type"`
	Severity        Severity    `json:"severity"`
	Title           string      `json:"title"`
	Message         string      `json:"message,omitempty"`
	Status          AlertStatus `json:"status"`
	AcknowledgedBy  string      `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time  `json:"acknowledged_at,omitempty"`
	ResolvedBy      string      `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
	ResolutionNotes string      `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// ProctoringIntervention is an append-only record of a reviewer action.
type ProctoringIntervention struct {
	ID               string           `json:"id"`
	SessionID        string           `json:"session_id"`
	AlertID          *string          `json:"alert_id,omitempty"`
	IntervenedBy     string           `json:"intervened_by"`
	InterventionType InterventionType `json:"intervention_type"`
	Message          string           `json:"message,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// ProctoringSettings is the per-exam detector configuration. Owned by exam setup;
// this service only reads it.
type ProctoringSettings struct {
	ID                           string    `json:"id" firestore:"id"`
	ExamID                       *string   `json:"exam_id,omitempty" firestore:"exam_id"`
	QuizID                       *string   `json:"quiz_id,omitempty" firestore:"quiz_id"`
	FaceDetection                bool      `json:"face_detection" firestore:"face_detection"`
	MultipleFaceDetection        bool      `json:"multiple_face_detection" firestore:"multiple_face_detection"`
	AudioMonitoring              bool      `json:"audio_monitoring" firestore:"audio_monitoring"`
	TabSwitchDetection           bool      `json:"tab_switch_detection" firestore:"tab_switch_detection"`
	FullscreenRequired           bool      `json:"fullscreen_required" firestore:"fullscreen_required"`
	CopyPasteBlocked             bool      `json:"copy_paste_blocked" firestore:"copy_paste_blocked"`
	IdentityVerificationRequired bool      `json:"identity_verification_required" firestore:"identity_verification_required"`
	FaceConfidenceThreshold      float64   `json:"face_confidence_threshold" firestore:"face_confidence_threshold"`
	AudioThresholdDB             float64   `json:"audio_threshold_db" firestore:"audio_threshold_db"`
	MaxTabSwitches               int       `json:"max_tab_switches" firestore:"max_tab_switches"`
	SnapshotIntervalSeconds      int       `json:"snapshot_interval_seconds" firestore:"snapshot_interval_seconds"`
	CreatedAt                    time.Time `json:"created_at" firestore:"created_at"`
	UpdatedAt                    time.Time `json:"updated_at" firestore:"updated_at"`
}

// SessionSummary is a session plus the reviewer workload still attached to it.
type SessionSummary struct {
	Session              *ProctoringSession `json:"session"`
	OpenAlerts           int                `json:"open_alerts"`
	UnreviewedViolations int                `json:"unreviewed_violations"`
}
