package tlc

import "errors"

// Error kinds. Stages wrap one of these with fmt.Errorf("...: %w", ...) so
// callers can classify a failure with errors.Is.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrRetrieval         = errors.New("retrieval failed")
	ErrParse             = errors.New("parse failed")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrNormalization     = errors.New("normalization failed")
)
