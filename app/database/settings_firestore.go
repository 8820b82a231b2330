package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"campus-portal/app/models"
	"campus-portal/app/services/proctoring"
)

// FirestoreSettings reads exam proctoring settings from a Firestore
// collection, for deployments where exam setup writes there.
type FirestoreSettings struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreSettings connects to projectID.
func NewFirestoreSettings(ctx context.Context, projectID, collection string) (*FirestoreSettings, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreSettings{client: client, collection: collection}, nil
}

func (f *FirestoreSettings) Close() error {
	return f.client.Close()
}

func (f *FirestoreSettings) GetSettings(ctx context.Context, id string) (*models.ProctoringSettings, error) {
	doc, err := f.client.Collection(f.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, notFound("settings", id)
		}
		return nil, firestoreErr("get settings", err)
	}
	var st models.ProctoringSettings
	if err := doc.DataTo(&st); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", id, err)
	}
	st.ID = doc.Ref.ID
	return &st, nil
}

// FindSettings prefers exam settings over quiz settings, newest first.
func (f *FirestoreSettings) FindSettings(ctx context.Context, examID, quizID *string) (*models.ProctoringSettings, error) {
	if examID != nil {
		st, err := f.findBy(ctx, "exam_id", *examID)
		if err != nil || st != nil {
			return st, err
		}
	}
	if quizID != nil {
		return f.findBy(ctx, "quiz_id", *quizID)
	}
	return nil, nil
}

func (f *FirestoreSettings) findBy(ctx context.Context, field, value string) (*models.ProctoringSettings, error) {
	iter := f.client.Collection(f.collection).
		Where(field, "==", value).
		OrderBy("updated_at", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, firestoreErr("find settings", err)
	}
	var st models.ProctoringSettings
	if err := doc.DataTo(&st); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", doc.Ref.ID, err)
	}
	st.ID = doc.Ref.ID
	return &st, nil
}

func firestoreErr(op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return fmt.Errorf("%s: %w: %w", op, proctoring.ErrTransientStorage, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
