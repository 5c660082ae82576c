package files

import "errors"

var (
	ErrInvalidFileType = errors.New("invalid file type")
	ErrPatientNotFound = errors.New("patient not found")
	ErrNoFiles         = errors.New("no files found")
	ErrFileNotFound    = errors.New("file not found")
	ErrProcessing      = errors.New("error processing file")
)
