package files

import (
	"time"

	"github.com/google/uuid"
)

// CreatedAtLayout formats timestamps in file responses.
const CreatedAtLayout = "2006-01-02 15:04:05"

// FileMeta is one processed upload. HRData holds the serialized heart-rate
// record exactly as it was extracted at upload time.
type FileMeta struct {
	ID          uuid.UUID `db:"id" json:"file_id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	Filename    string    `db:"filename" json:"filename"`
	FileType    string    `db:"file_type" json:"file_type"`
	ContentType string    `db:"content_type" json:"content_type"`
	BlobID      string    `db:"blob_id" json:"-"`
	HRData      string    `db:"hr_data" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`

	// UploadedBy is the owner's "given family" name, filled by list queries.
	UploadedBy string `db:"-" json:"uploaded_by"`
}

// FileSummary is one entry of a file listing.
type FileSummary struct {
	FileID     uuid.UUID `json:"file_id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  string    `json:"created_at"`
}

func (f *FileMeta) Summary() FileSummary {
	return FileSummary{
		FileID:     f.ID,
		Filename:   f.Filename,
		FileType:   f.FileType,
		UploadedBy: f.UploadedBy,
		CreatedAt:  f.CreatedAt.Format(CreatedAtLayout),
	}
}

// UploadResult is returned after a successful upload.
type UploadResult struct {
	Message   string    `json:"message"`
	FileID    uuid.UUID `json:"file_id"`
	Filename  string    `json:"filename"`
	CreatedAt string    `json:"created_at"`
}

// ClinicianDataRequest is the body of POST /heart-rate-data-clinician.
type ClinicianDataRequest struct {
	FileID    string `json:"file_id"`
	PatientID string `json:"patient_id"`
}
