package types

import "errors"

var (
	ErrUnsupportedFormat   = errors.New("unsupported audio format")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrExtractionFailed    = errors.New("extraction failed")
	ErrStoreUnavailable    = errors.New("call store unavailable")
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid pipeline state")
)
