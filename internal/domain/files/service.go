package files

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hrvault/hrvault/internal/domain/identity"
	"github.com/hrvault/hrvault/internal/heartrate"
	"github.com/hrvault/hrvault/internal/platform/blobstore"
	"github.com/hrvault/hrvault/internal/platform/events"
	"github.com/hrvault/hrvault/internal/platform/metrics"
)

const (
	allowedExt      = ".json"
	jsonContentType = "application/json"
	fallbackName    = "upload.json"

	// defaultPublishTimeout bounds the broker write that follows a stored upload.
	defaultPublishTimeout = 3 * time.Second
)

// PersonLookup resolves account ids. Satisfied by *identity.Service.
type PersonLookup interface {
	GetPerson(ctx context.Context, id uuid.UUID) (*identity.Person, error)
}

type Service struct {
	files     FileRepository
	persons   PersonLookup
	blobs     blobstore.BlobStore
	publisher events.Publisher
	logger    zerolog.Logger
	maxBytes  int64
	now       func() time.Time

	publishTimeout time.Duration
}

func NewService(files FileRepository, persons PersonLookup, blobs blobstore.BlobStore, publisher events.Publisher, logger zerolog.Logger, maxBytes int64) *Service {
	if maxBytes <= 0 {
		maxBytes = blobstore.DefaultMaxSize
	}
	return &Service{
		files:     files,
		persons:   persons,
		blobs:     blobs,
		publisher: publisher,
		logger:    logger,
		maxBytes:  maxBytes,
		now:       time.Now,

		publishTimeout: defaultPublishTimeout,
	}
}

// HasAllowedExtension reports whether name ends in .json, ignoring case.
func HasAllowedExtension(name string) bool {
	return strings.EqualFold(filepath.Ext(name), allowedExt)
}

// SanitizeFilename reduces name to a safe base name made of ASCII letters,
// digits, '.', '-' and '_'. Spaces become underscores and leading dots are
// dropped. A name that loses its .json extension becomes "upload.json".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	clean := strings.TrimLeft(b.String(), "._")

	stem := strings.TrimSuffix(clean, filepath.Ext(clean))
	if stem == "" || !HasAllowedExtension(clean) {
		return fallbackName
	}
	if len(clean) > 255 {
		ext := filepath.Ext(clean)
		clean = clean[:255-len(ext)] + ext
	}
	return clean
}

// Upload stores a raw export for owner, extracts its heart-rate record and
// saves the file metadata. The raw blob is removed again when extraction or
// the metadata insert fails.
func (s *Service) Upload(ctx context.Context, ownerID uuid.UUID, filename string, content io.Reader) (*FileMeta, error) {
	if !HasAllowedExtension(filename) {
		metrics.RecordUpload(metrics.OutcomeRejected)
		return nil, ErrInvalidFileType
	}

	owner, err := s.persons.GetPerson(ctx, ownerID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup owner: %w", err)
	}

	raw, err := io.ReadAll(io.LimitReader(content, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(raw)) > s.maxBytes {
		metrics.RecordUpload(metrics.OutcomeRejected)
		return nil, blobstore.ErrFileTooLarge
	}

	name := SanitizeFilename(filename)
	blob, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    name,
		ContentType: jsonContentType,
		OwnerID:     owner.ID.String(),
	}, bytes.NewReader(raw))
	if err != nil {
		metrics.RecordUpload(metrics.OutcomeFailed)
		return nil, fmt.Errorf("store upload: %w", err)
	}

	record, err := heartrate.Extract(raw)
	if err != nil {
		s.discardBlob(ctx, blob.ID)
		metrics.RecordExtractionFailure()
		metrics.RecordUpload(metrics.OutcomeRejected)
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	hrData, err := json.Marshal(record)
	if err != nil {
		s.discardBlob(ctx, blob.ID)
		metrics.RecordUpload(metrics.OutcomeFailed)
		return nil, fmt.Errorf("encode record: %w", err)
	}

	f := &FileMeta{
		ID:          uuid.New(),
		PatientID:   owner.ID,
		Filename:    name,
		FileType:    strings.TrimPrefix(allowedExt, "."),
		ContentType: jsonContentType,
		BlobID:      blob.ID,
		HRData:      string(hrData),
		CreatedAt:   s.now().UTC().Truncate(time.Second),
		UploadedBy:  owner.FullName(),
	}
	if err := s.files.Create(ctx, f); err != nil {
		s.discardBlob(ctx, blob.ID)
		metrics.RecordUpload(metrics.OutcomeFailed)
		return nil, err
	}

	metrics.RecordSamples(len(record.Time))
	metrics.RecordUpload(metrics.OutcomeSuccess)
	s.publish(ctx, f, record)
	return f, nil
}

func (s *Service) discardBlob(ctx context.Context, id string) {
	if err := s.blobs.Delete(ctx, id); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("blob_id", id).Msg("failed to remove rejected upload")
	}
}

// publish emits the upload event. A broker failure does not fail the upload,
// and the write gets at most publishTimeout.
func (s *Service) publish(ctx context.Context, f *FileMeta, record *heartrate.Record) {
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	evt := events.UploadProcessed{
		FileID:            f.ID.String(),
		PatientID:         f.PatientID.String(),
		Filename:          f.Filename,
		DateOfMeasurement: record.DateOfMeasurement,
		Samples:           len(record.Time),
		CreatedAt:         f.CreatedAt,
	}
	if err := s.publisher.PublishUploadProcessed(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("file_id", evt.FileID).Msg("failed to publish upload event")
	}
}

// ListFiles returns the files owned by patientID. ErrPatientNotFound when the
// account does not exist, ErrNoFiles when it has none.
func (s *Service) ListFiles(ctx context.Context, patientID uuid.UUID) ([]*FileMeta, error) {
	if _, err := s.person(ctx, patientID); err != nil {
		return nil, err
	}
	list, err := s.files.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNoFiles
	}
	return list, nil
}

// HeartRateData returns the stored record of a file owned by patientID.
func (s *Service) HeartRateData(ctx context.Context, patientID, fileID uuid.UUID) (json.RawMessage, error) {
	f, err := s.files.GetForPatient(ctx, fileID, patientID)
	if err != nil {
		return nil, err
	}
	return storedRecord(f)
}

// PatientHeartRateData returns the patient's display name and the stored
// record of one of their files.
func (s *Service) PatientHeartRateData(ctx context.Context, patientID, fileID uuid.UUID) (string, json.RawMessage, error) {
	p, err := s.person(ctx, patientID)
	if err != nil {
		return "", nil, err
	}
	f, err := s.files.GetForPatient(ctx, fileID, patientID)
	if err != nil {
		return "", nil, err
	}
	data, err := storedRecord(f)
	if err != nil {
		return "", nil, err
	}
	return p.FullName(), data, nil
}

func (s *Service) person(ctx context.Context, id uuid.UUID) (*identity.Person, error) {
	p, err := s.persons.GetPerson(ctx, id)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup patient: %w", err)
	}
	return p, nil
}

// storedRecord returns hr_data verbatim. The extractor is not re-run.
func storedRecord(f *FileMeta) (json.RawMessage, error) {
	raw := json.RawMessage(f.HRData)
	if !json.Valid(raw) {
		return nil, fmt.Errorf("file %s: stored record is not valid JSON", f.ID)
	}
	return raw, nil
}
