package domain

import "errors"

// Sentinel errors for validation and payload decoding failures.
var (
	ErrEmptyContent      = errors.New("content is empty or too short")
	ErrMissingIdentifier = errors.New("missing artifact identifier")
	ErrUnknownCollection = errors.New("unknown collection")
)
