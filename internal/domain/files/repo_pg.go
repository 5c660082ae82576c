package files

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type fileRepoPG struct {
	db querier
}

func NewFileRepoPG(pool *pgxpool.Pool) FileRepository {
	return &fileRepoPG{db: pool}
}

const fileCols = `f.id, f.patient_id, f.filename, f.file_type, f.content_type, f.blob_id, f.hr_data, f.created_at,
	p.name_given || ' ' || p.name_family`

const fileFrom = ` FROM file_meta f JOIN person p ON p.id = f.patient_id`

func (r *fileRepoPG) Create(ctx context.Context, f *FileMeta) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO file_meta (id, patient_id, filename, file_type, content_type, blob_id, hr_data, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		f.ID, f.PatientID, f.Filename, f.FileType, f.ContentType, f.BlobID, f.HRData, f.CreatedAt,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert file_meta: %w", err)
	}
	return nil
}

func (r *fileRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*FileMeta, error) {
	rows, err := r.db.Query(ctx, `SELECT `+fileCols+fileFrom+` WHERE f.patient_id = $1 ORDER BY f.created_at, f.id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list file_meta: %w", err)
	}
	defer rows.Close()

	var out []*FileMeta
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *fileRepoPG) GetForPatient(ctx context.Context, fileID, patientID uuid.UUID) (*FileMeta, error) {
	f, err := scanFile(r.db.QueryRow(ctx, `SELECT `+fileCols+fileFrom+` WHERE f.id = $1 AND f.patient_id = $2`, fileID, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select file_meta: %w", err)
	}
	return f, nil
}

func scanFile(row pgx.Row) (*FileMeta, error) {
	var f FileMeta
	err := row.Scan(&f.ID, &f.PatientID, &f.Filename, &f.FileType, &f.ContentType, &f.BlobID, &f.HRData, &f.CreatedAt, &f.UploadedBy)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
