package proctoring

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Ingest tokens are two random UUIDs, so the minimum bcrypt cost suffices and
// keeps per-event verification cheap.
const ingestTokenCost = bcrypt.MinCost

func newIngestToken() (token, hash string, err error) {
	token = strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
	b, err := bcrypt.GenerateFromPassword([]byte(token), ingestTokenCost)
	if err != nil {
		return "", "", err
	}
	return token, string(b), nil
}

// AuthorizeDetector checks the detector's ingest token against the one
// issued when the session was created.
func (s *Service) AuthorizeDetector(ctx context.Context, sessionID, token string) error {
	if sessionID == "" || token == "" {
		return ErrUnauthorized
	}
	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.IngestTokenHash == "" {
		return ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(sess.IngestTokenHash), []byte(token)) != nil {
		return ErrUnauthorized
	}
	return nil
}
