package domain

import "github.com/google/uuid"

// FaxPersistedNotification is published once per newly persisted fax.
// Consumers must be idempotent on DocumentID.
type FaxPersistedNotification struct {
	PartnerID  int64     `json:"partnerId"`
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"documentId"`
	URL        string    `json:"url"`
}

// FaxOutboundNotification is published when an outbound send reaches a terminal state.
type FaxOutboundNotification struct {
	PartnerID     int64        `json:"partnerId"`
	AppointmentID *int64       `json:"appointmentId,omitempty"`
	PatientID     *int64       `json:"patientId,omitempty"`
	ReferralID    *int64       `json:"referralId,omitempty"`
	ProviderID    ProviderType `json:"providerId"`
	Recipients    []string     `json:"recipients"`
	IsFaxSent     bool         `json:"isFaxSent"`
	Error         string       `json:"error,omitempty"`
	DocID         string       `json:"docId,omitempty"`
}

// FaxStatusReport is sent back by downstream consumers once they processed a fax.
type FaxStatusReport struct {
	PartnerID int64            `json:"partnerId"`
	ID        uuid.UUID        `json:"id"`
	Status    ProcessingStatus `json:"status"`
	Error     *string          `json:"error,omitempty"`
	FaxStatus *FaxStatus       `json:"faxStatus,omitempty"`
}

// InboxFaxEntry is one line of the per-batch report posted to the inbox service.
type InboxFaxEntry struct {
	ID                 uuid.UUID        `json:"id"`
	FaxID              string           `json:"faxId"`
	SyncID             uuid.UUID        `json:"syncId"`
	FromFaxNumber      string           `json:"fromFaxNumber"`
	RecipientFaxNumber string           `json:"recipientFaxNumber"`
	Pages              int              `json:"pages"`
	PdfDocID           uuid.UUID        `json:"pdfDocId"`
	PdfURL             string           `json:"url"`
	TifDocID           uuid.UUID        `json:"tifDocId"`
	ProcessingStatus   ProcessingStatus `json:"processingStatus"`
	FaxCreatedAt       string           `json:"faxCreatedAt"`
	Existing           bool             `json:"existing"`
}
