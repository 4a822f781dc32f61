package domain

import (
	"time"

	"github.com/google/uuid"
)

type ProcessingStatus string

const (
	ProcessingStatusProcessing ProcessingStatus = "PROCESSING"
	ProcessingStatusSuccess    ProcessingStatus = "SUCCESS"
	ProcessingStatusFail       ProcessingStatus = "FAIL"
)

func (s ProcessingStatus) Valid() bool {
	switch s {
	case ProcessingStatusProcessing, ProcessingStatusSuccess, ProcessingStatusFail:
		return true
	}
	return false
}

// FaxStatus is the optional workflow tag set by downstream consumers.
type FaxStatus string

const (
	FaxStatusReferral FaxStatus = "referral"
	FaxStatusSave     FaxStatus = "save"
	FaxStatusDelete   FaxStatus = "delete"
	FaxStatusTrash    FaxStatus = "trash"
)

func (s FaxStatus) Valid() bool {
	switch s {
	case FaxStatusReferral, FaxStatusSave, FaxStatusDelete, FaxStatusTrash:
		return true
	}
	return false
}

// FaxRecord is the canonical inbound fax. FaxID (provider scoped) is unique per partner.
type FaxRecord struct {
	ID                 uuid.UUID
	FaxID              string
	SyncID             uuid.UUID
	PartnerID          int64
	Provider           ProviderType
	FromFaxNumber      string
	RecipientFaxNumber string
	Pages              int
	PdfDocID           uuid.UUID
	PdfDocName         string
	PdfURL             string
	TifDocID           uuid.UUID
	TifDocName         string
	ProcessingStatus   ProcessingStatus
	ProcessingError    *string
	IsActive           bool
	FaxStatus          *FaxStatus
	FaxStatusDate      *time.Time
	Trashed            bool
	FaxCreatedAt       time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RawFaxRecord is one inbound fax as listed by a provider, before documents are fetched.
type RawFaxRecord struct {
	Provider   ProviderType
	NativeID   string
	FromNumber string
	ToNumber   string
	Pages      int
	CreatedAt  time.Time // UTC
	// DocumentRef is the provider-specific handle needed to download the documents.
	DocumentRef string
	// AccessToken is the bearer the batch was listed with, reused for its downloads.
	// Empty for providers that authenticate per call.
	AccessToken string
}

// ProviderScopedID is the dedup key for the record.
func (r RawFaxRecord) ProviderScopedID() string {
	return r.Provider.FaxIDPrefix() + r.NativeID
}

// Documents are the artifacts downloaded for a raw record. TIFF is nil when the
// provider only serves PDF and conversion is required.
type Documents struct {
	PDF   []byte
	TIFF  []byte
	Pages int
}

// FaxListFilter drives the paginated fax listing.
type FaxListFilter struct {
	PartnerID int64
	Trashed   bool
	Search    string
	Page      int
	Limit     int
}

type FaxPage struct {
	Records    []*FaxRecord
	TotalCount int
	TotalPages int
}

// FaxUpload is a fax entered by hand rather than pulled from a provider.
type FaxUpload struct {
	PDF                []byte
	FromFaxNumber      string
	RecipientFaxNumber string
	// CreatedAt overrides the fax timestamp; now when nil.
	CreatedAt *time.Time
}

// FaxUploadCallback registers a PDF another service already stored in the bucket.
type FaxUploadCallback struct {
	BucketFilePath     string
	DocumentID         uuid.UUID
	FileURL            string
	FromFaxNumber      string
	RecipientFaxNumber string
}

// FaxAnalytics summarises inbox activity for a partner over [From, To).
type FaxAnalytics struct {
	Total    int64
	Referral int64
	Saved    int64
	Deleted  int64
	// AvgMinutesToAction is the mean time from arrival to the first fax status.
	AvgMinutesToAction float64
}
