package database

import (
	"context"
	"database/sql"
	"errors"

	"campus-portal/app/models"
)

const settingsColumns = `id, exam_id, quiz_id, face_detection, multiple_face_detection, audio_monitoring,
	tab_switch_detection, fullscreen_required, copy_paste_blocked, identity_verification_required,
	face_confidence_threshold, audio_threshold_db, max_tab_switches, snapshot_interval_seconds,
	created_at, updated_at`

func scanSettings(row rowScanner) (*models.ProctoringSettings, error) {
	var st models.ProctoringSettings
	err := row.Scan(
		&st.ID, &st.ExamID, &st.QuizID, &st.FaceDetection, &st.MultipleFaceDetection, &st.AudioMonitoring,
		&st.TabSwitchDetection, &st.FullscreenRequired, &st.CopyPasteBlocked, &st.IdentityVerificationRequired,
		&st.FaceConfidenceThreshold, &st.AudioThresholdDB, &st.MaxTabSwitches, &st.SnapshotIntervalSeconds,
		&st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *ProctoringStore) GetSettings(ctx context.Context, id string) (*models.ProctoringSettings, error) {
	query := `SELECT ` + settingsColumns + ` FROM proctoring_settings WHERE id = $1`
	st, err := scanSettings(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, lookupErr("get settings", "settings", id, err)
	}
	return st, nil
}

// FindSettings returns the most recently updated settings for the exam, or
// failing that the quiz. It returns nil, nil when neither has any.
func (s *ProctoringStore) FindSettings(ctx context.Context, examID, quizID *string) (*models.ProctoringSettings, error) {
	query := `
		SELECT ` + settingsColumns + `
		FROM proctoring_settings
		WHERE ($1::uuid IS NOT NULL AND exam_id = $1::uuid)
			OR ($2::uuid IS NOT NULL AND quiz_id = $2::uuid)
		ORDER BY (exam_id IS NOT DISTINCT FROM $1::uuid) DESC, updated_at DESC
		LIMIT 1
	`
	st, err := scanSettings(s.db.QueryRowContext(ctx, query, examID, quizID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find settings", err)
	}
	return st, nil
}
