package domain

import "errors"

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateEntry    = errors.New("record already exists")
	ErrConfigIncomplete  = errors.New("provider configuration incomplete")
	ErrInvalidWindow     = errors.New("invalid sync window")
	ErrProviderTransport = errors.New("provider transport failure")
	ErrConversion        = errors.New("document conversion failed")
	ErrNoRecipients      = errors.New("at least one recipient fax number is required")
	ErrInvalidPayload    = errors.New("outbound payload is missing or ambiguous")
	ErrInvalidStatus     = errors.New("invalid processing status")
	ErrNotPDF            = errors.New("only PDF documents are accepted")
)
