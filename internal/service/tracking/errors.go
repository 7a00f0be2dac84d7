package tracking

import "errors"

// Sentinel errors for the tracking service layer.
var (
	ErrInvalidToken = errors.New("invalid tracking token")
	ErrNotFound     = errors.New("delivery record not found")
)
