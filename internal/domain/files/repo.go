package files

import (
	"context"

	"github.com/google/uuid"
)

type FileRepository interface {
	Create(ctx context.Context, f *FileMeta) error
	// ListByPatient returns the patient's files oldest first, with
	// UploadedBy filled in.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*FileMeta, error)
	// GetForPatient returns ErrFileNotFound unless fileID belongs to
	// patientID.
	GetForPatient(ctx context.Context, fileID, patientID uuid.UUID) (*FileMeta, error)
}
