package database

import (
	"database/sql"
	"log/slog"
)

// RunMigrations creates the proctoring tables and applies the column
// additions they rely on. Every step is idempotent.
func RunMigrations(db *sql.DB) error {
	slog.Info("running database migrations")

	steps := []struct {
		name string
		run  func(*sql.DB) error
	}{
		{"proctoring tables", createProctoringTables},
		{"exams.created_by", addExamOwnerColumn},
		{"quizzes", createQuizzesTable},
		{"proctoring indexes", createProctoringIndexes},
	}
	for _, step := range steps {
		if err := step.run(db); err != nil {
			slog.Error("migration failed", "step", step.name, "error", err)
			return err
		}
	}

	slog.Info("database migrations completed")
	return nil
}

func createProctoringTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS proctoring_settings (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			exam_id UUID,
			quiz_id UUID,
			face_detection BOOLEAN NOT NULL DEFAULT true,
			multiple_face_detection BOOLEAN NOT NULL DEFAULT true,
			audio_monitoring BOOLEAN NOT NULL DEFAULT false,
			tab_switch_detection BOOLEAN NOT NULL DEFAULT true,
			fullscreen_required BOOLEAN NOT NULL DEFAULT true,
			copy_paste_blocked BOOLEAN NOT NULL DEFAULT true,
			identity_verification_required BOOLEAN NOT NULL DEFAULT false,
			face_confidence_threshold DOUBLE PRECISION NOT NULL DEFAULT 0.7,
			audio_threshold_db DOUBLE PRECISION NOT NULL DEFAULT 60,
			max_tab_switches INTEGER NOT NULL DEFAULT 3,
			snapshot_interval_seconds INTEGER NOT NULL DEFAULT 30,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS proctoring_sessions (
			id UUID PRIMARY KEY,
			student_id UUID NOT NULL,
			exam_id UUID,
			quiz_id UUID,
			college_id UUID NOT NULL,
			settings_id UUID REFERENCES proctoring_settings(id) ON DELETE SET NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			consent_given BOOLEAN NOT NULL DEFAULT false,
			consent_at TIMESTAMP WITH TIME ZONE,
			identity_verified BOOLEAN NOT NULL DEFAULT false,
			identity_verified_at TIMESTAMP WITH TIME ZONE,
			device_info JSONB,
			started_at TIMESTAMP WITH TIME ZONE,
			ended_at TIMESTAMP WITH TIME ZONE,
			duration_seconds BIGINT NOT NULL DEFAULT 0,
			total_violations_count INTEGER NOT NULL DEFAULT 0,
			critical_violations_count INTEGER NOT NULL DEFAULT 0,
			high_violations_count INTEGER NOT NULL DEFAULT 0,
			medium_violations_count INTEGER NOT NULL DEFAULT 0,
			low_violations_count INTEGER NOT NULL DEFAULT 0,
			ingest_token_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
			CHECK (exam_id IS NOT NULL OR quiz_id IS NOT NULL)
		)`,
		`CREATE TABLE IF NOT EXISTS proctoring_events (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES proctoring_sessions(id) ON DELETE CASCADE,
			event_type VARCHAR(50) NOT NULL,
			severity VARCHAR(20) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			details JSONB,
			snapshot_url TEXT NOT NULL DEFAULT '',
			video_url TEXT NOT NULL DEFAULT '',
			audio_url TEXT NOT NULL DEFAULT '',
			ai_confidence DOUBLE PRECISION,
			ai_model_version VARCHAR(100) NOT NULL DEFAULT '',
			flagged_for_review BOOLEAN NOT NULL DEFAULT false,
			flagged_by TEXT NOT NULL DEFAULT '',
			flag_reason TEXT NOT NULL DEFAULT '',
			flagged_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS proctoring_violations (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES proctoring_sessions(id) ON DELETE CASCADE,
			event_id UUID REFERENCES proctoring_events(id) ON DELETE SET NULL,
			violation_type VARCHAR(50) NOT NULL,
			severity VARCHAR(20) NOT NULL,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			evidence_urls TEXT[] NOT NULL DEFAULT '{}',
			reviewed BOOLEAN NOT NULL DEFAULT false,
			reviewed_by TEXT NOT NULL DEFAULT '',
			reviewed_at TIMESTAMP WITH TIME ZONE,
			review_notes TEXT NOT NULL DEFAULT '',
			action_taken TEXT NOT NULL DEFAULT '',
			is_false_positive BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS proctoring_alerts (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES proctoring_sessions(id) ON DELETE CASCADE,
			event_id UUID NOT NULL UNIQUE REFERENCES proctoring_events(id) ON DELETE CASCADE,
			alert_type VARCHAR(50) NOT NULL,
			severity VARCHAR(20) NOT NULL,
			title VARCHAR(255) NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			acknowledged_by TEXT NOT NULL DEFAULT '',
			acknowledged_at TIMESTAMP WITH TIME ZONE,
			resolved_by TEXT NOT NULL DEFAULT '',
			resolved_at TIMESTAMP WITH TIME ZONE,
			resolution_notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS proctoring_interventions (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES proctoring_sessions(id) ON DELETE CASCADE,
			alert_id UUID REFERENCES proctoring_alerts(id) ON DELETE SET NULL,
			intervened_by TEXT NOT NULL,
			intervention_type VARCHAR(30) NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func addExamOwnerColumn(db *sql.DB) error {
	query := `
		DO $$
		BEGIN
			IF EXISTS (
				SELECT 1
				FROM information_schema.tables
				WHERE table_name = 'exams'
			) AND NOT EXISTS (
				SELECT 1
				FROM information_schema.columns
				WHERE table_name = 'exams'
				AND column_name = 'created_by'
			) THEN
				ALTER TABLE exams ADD COLUMN created_by UUID;
				RAISE NOTICE 'Added created_by column to exams';
			END IF;
		END $$;
	`
	_, err := db.Exec(query)
	return err
}

func createQuizzesTable(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS quizzes (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			title VARCHAR(255) NOT NULL,
			created_by UUID,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
		`DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1
				FROM information_schema.columns
				WHERE table_name = 'quizzes'
				AND column_name = 'created_by'
			) THEN
				ALTER TABLE quizzes ADD COLUMN created_by UUID;
				RAISE NOTICE 'Added created_by column to quizzes';
			END IF;
		END $$;`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func createProctoringIndexes(db *sql.DB) error {
	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_proctoring_sessions_student ON proctoring_sessions(student_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_proctoring_sessions_exam_status ON proctoring_sessions(exam_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_proctoring_sessions_idle ON proctoring_sessions(status, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_proctoring_events_session ON proctoring_events(session_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_proctoring_violations_session ON proctoring_violations(session_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_proctoring_alerts_status ON proctoring_alerts(status, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_proctoring_interventions_session ON proctoring_interventions(session_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_proctoring_settings_exam ON proctoring_settings(exam_id)`,
		`CREATE INDEX IF NOT EXISTS idx_proctoring_settings_quiz ON proctoring_settings(quiz_id)`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}
