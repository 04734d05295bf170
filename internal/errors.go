package internal

import "errors"

var (
	// ErrMalformedInput marks an inbound frame that could not be decoded or
	// is missing a required field. The frame is discarded.
	ErrMalformedInput = errors.New("malformed input")
	// ErrValidationRejected marks a well-formed frame whose text is empty
	// after normalization.
	ErrValidationRejected = errors.New("message rejected")
	// ErrUnauthorized is returned by the moderation gate for a missing,
	// invalid or expired admin credential.
	ErrUnauthorized = errors.New("unauthorized")

	ErrUnsupportedMedia = errors.New("only common image types are allowed")
	ErrMediaTooLarge    = errors.New("upload too large")
)
