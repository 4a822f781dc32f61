package domain

import (
	"time"

	"github.com/google/uuid"
)

type SendStatus string

const (
	SendStatusPending SendStatus = "PENDING"
	SendStatusSuccess SendStatus = "SUCCESS"
	SendStatusFail    SendStatus = "FAIL"
)

func (s SendStatus) Terminal() bool {
	return s == SendStatusSuccess || s == SendStatusFail
}

type FaxTemplateType string

const (
	FaxTemplateAppointmentBooking FaxTemplateType = "APPOINTMENT_BOOKING"
	FaxTemplateMissingItem        FaxTemplateType = "MISSING_ITEM"
	FaxTemplateReferralReceived   FaxTemplateType = "REFERRAL_RECEIVED"
	FaxTemplateReferralDeclined   FaxTemplateType = "REFERRAL_DECLINED"
)

// TemplateFile is the blob object name of the HTML template.
func (t FaxTemplateType) TemplateFile() string {
	switch t {
	case FaxTemplateAppointmentBooking:
		return "referral_booking.html"
	case FaxTemplateMissingItem:
		return "missing_item.html"
	case FaxTemplateReferralReceived:
		return "referral_received.html"
	case FaxTemplateReferralDeclined:
		return "referral_declined.html"
	}
	return ""
}

// CorrelationKeys tie an outbound send to upstream workflow entities.
type CorrelationKeys struct {
	AppointmentID *int64 `json:"appointmentId,omitempty"`
	PatientID     *int64 `json:"patientId,omitempty"`
	ReferralID    *int64 `json:"referralId,omitempty"`
}

// Empty reports whether there is nothing to correlate a status write to.
func (k CorrelationKeys) Empty() bool {
	return k.AppointmentID == nil && k.PatientID == nil
}

// DocumentRef points at a document already held by the document service.
type DocumentRef struct {
	DocumentID string
	PatientID  int64
}

// OutboundPayload is exactly one of an inline PDF, a prior document or a template rendering.
type OutboundPayload struct {
	PDF          []byte
	Document     *DocumentRef
	Template     FaxTemplateType
	TemplateData map[string]any
}

// OutboundFaxRequest is a request to send one document to one or more recipients.
type OutboundFaxRequest struct {
	ID               uuid.UUID
	PartnerID        int64
	RecipientNumbers []string
	Payload          OutboundPayload
	Correlation      CorrelationKeys
}

// OutboundFaxRecord is the persisted per-recipient status row.
type OutboundFaxRecord struct {
	ID                 uuid.UUID
	PartnerID          int64
	AppointmentID      *int64
	PatientID          *int64
	ReferralID         *int64
	RecipientFaxNumber string
	SenderFaxNumber    string
	FaxProvider        ProviderType
	FaxTemplateType    *FaxTemplateType
	FaxSendStatus      SendStatus
	FaxSendError       *string
	ProviderMessageID  *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SendResult is the outcome of one provider send call.
type SendResult struct {
	Success           bool
	Provider          ProviderType
	SenderFaxNumber   string
	ProviderMessageID string
	Error             string
}

// OutboundDocument is the rendered PDF handed to a provider.
type OutboundDocument struct {
	FileName string
	PDF      []byte
}
