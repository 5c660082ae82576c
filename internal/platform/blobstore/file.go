package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// FileBlobStore keeps each blob as <dir>/<id>.blob with a JSON metadata
// sidecar <dir>/<id>.meta.json. Writes go through a temp file and rename so
// a crash never leaves a partial blob under its final name.
type FileBlobStore struct {
	dir     string
	maxSize int64
}

// NewFileBlobStore creates dir if needed and returns a store rooted there.
func NewFileBlobStore(dir string, maxSize int64) (*FileBlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir %s: %w", dir, err)
	}
	return &FileBlobStore{dir: dir, maxSize: normalizeMax(maxSize)}, nil
}

func (s *FileBlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}

	data, hash, err := readLimited(content, s.maxSize)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta.ID = uuid.NewString()
	meta.Size = int64(len(data))
	meta.Hash = hash
	meta.CreatedAt = time.Now().UTC()

	sidecar, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal blob metadata: %w", err)
	}

	if err := s.writeAtomic(s.blobPath(meta.ID), data); err != nil {
		return nil, err
	}
	if err := s.writeAtomic(s.metaPath(meta.ID), sidecar); err != nil {
		_ = os.Remove(s.blobPath(meta.ID))
		return nil, err
	}

	out := meta
	return &out, nil
}

func (s *FileBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.GetMetadata(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(s.blobPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	return io.NopCloser(bytes.NewReader(data)), meta, nil
}

func (s *FileBlobStore) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return ErrBlobNotFound
	}
	err := os.Remove(s.blobPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob metadata %s: %w", id, err)
	}
	return nil
}

func (s *FileBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	if !validID(id) {
		return nil, ErrBlobNotFound
	}
	raw, err := os.ReadFile(s.metaPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob metadata %s: %w", id, err)
	}
	var meta BlobMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode blob metadata %s: %w", id, err)
	}
	return &meta, nil
}

func (s *FileBlobStore) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit blob: %w", err)
	}
	return nil
}

func (s *FileBlobStore) blobPath(id string) string {
	return filepath.Join(s.dir, id+".blob")
}

func (s *FileBlobStore) metaPath(id string) string {
	return filepath.Join(s.dir, id+".meta.json")
}

// validID rejects anything that is not a UUID so ids cannot address paths
// outside the store.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
