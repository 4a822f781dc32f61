package http

import (
	"time"

	"github.com/google/uuid"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
)

// SyncRequestDTO triggers a one-time sync.
type SyncRequestDTO struct {
	Mode      string     `json:"mode" validate:"required,oneof=ONE_DAY RANGE"`
	Start     *time.Time `json:"start,omitempty" validate:"required_if=Mode RANGE"`
	End       *time.Time `json:"end,omitempty" validate:"required_if=Mode RANGE"`
	PartnerID *int64     `json:"partnerId,omitempty" validate:"omitempty,gt=0"`
}

type SyncSummaryDTO struct {
	Partners     int `json:"partners"`
	Combinations int `json:"combinations"`
	Fetched      int `json:"fetched"`
	Created      int `json:"created"`
	Existing     int `json:"existing"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
}

type DocumentRefDTO struct {
	DocumentID string `json:"documentId" validate:"required"`
	PatientID  int64  `json:"patientId" validate:"gt=0"`
}

// SendFaxRequestDTO carries exactly one of pdf (base64), document or template.
type SendFaxRequestDTO struct {
	FaxNumbers    []string        `json:"faxNumbers" validate:"required,min=1,dive,required,max=20"`
	PDF           []byte          `json:"pdf,omitempty"`
	Document      *DocumentRefDTO `json:"document,omitempty"`
	Template      string          `json:"template,omitempty" validate:"omitempty,oneof=APPOINTMENT_BOOKING MISSING_ITEM REFERRAL_RECEIVED REFERRAL_DECLINED"`
	TemplateData  map[string]any  `json:"templateData,omitempty"`
	AppointmentID *int64          `json:"appointmentId,omitempty" validate:"omitempty,gt=0"`
	PatientID     *int64          `json:"patientId,omitempty" validate:"omitempty,gt=0"`
	ReferralID    *int64          `json:"referralId,omitempty" validate:"omitempty,gt=0"`
}

func (d SendFaxRequestDTO) toDomain(partnerID int64) domain.OutboundFaxRequest {
	req := domain.OutboundFaxRequest{
		ID:               uuid.New(),
		PartnerID:        partnerID,
		RecipientNumbers: d.FaxNumbers,
		Payload: domain.OutboundPayload{
			PDF:          d.PDF,
			Template:     domain.FaxTemplateType(d.Template),
			TemplateData: d.TemplateData,
		},
		Correlation: domain.CorrelationKeys{
			AppointmentID: d.AppointmentID,
			PatientID:     d.PatientID,
			ReferralID:    d.ReferralID,
		},
	}
	if d.Document != nil {
		req.Payload.Document = &domain.DocumentRef{DocumentID: d.Document.DocumentID, PatientID: d.Document.PatientID}
	}
	return req
}

type SendResultDTO struct {
	RequestID         uuid.UUID `json:"requestId"`
	Success           bool      `json:"success"`
	Provider          string    `json:"provider,omitempty"`
	SenderFaxNumber   string    `json:"senderFaxNumber,omitempty"`
	ProviderMessageID string    `json:"providerMessageId,omitempty"`
	Error             string    `json:"error,omitempty"`
}

type StatusUpdateDTO struct {
	Status    string  `json:"status" validate:"omitempty,oneof=PROCESSING SUCCESS FAIL"`
	Error     *string `json:"error,omitempty"`
	FaxStatus *string `json:"faxStatus,omitempty" validate:"omitempty,oneof=referral save delete trash"`
}

type DeactivateRequestDTO struct {
	IDs   []uuid.UUID `json:"ids" validate:"required,min=1"`
	Trash bool        `json:"trash"`
}

type DeactivateResponseDTO struct {
	Updated int64 `json:"updated"`
}

type FaxDTO struct {
	ID                 uuid.UUID  `json:"id"`
	FaxID              string     `json:"faxId"`
	Provider           string     `json:"provider"`
	FromFaxNumber      string     `json:"fromFaxNumber"`
	RecipientFaxNumber string     `json:"recipientFaxNumber"`
	Pages              int        `json:"pages"`
	PdfDocID           uuid.UUID  `json:"pdfDocId"`
	PdfURL             string     `json:"url"`
	TifDocID           uuid.UUID  `json:"tifDocId"`
	ProcessingStatus   string     `json:"processingStatus"`
	ProcessingError    *string    `json:"processingError,omitempty"`
	FaxStatus          *string    `json:"faxStatus,omitempty"`
	FaxStatusDate      *time.Time `json:"faxStatusDate,omitempty"`
	Trashed            bool       `json:"trashed"`
	FaxCreatedAt       time.Time  `json:"faxCreatedAt"`
}

type FaxPageDTO struct {
	Data       []FaxDTO `json:"data"`
	TotalCount int      `json:"totalCount"`
	TotalPages int      `json:"totalPages"`
	Page       int      `json:"page"`
}

func toFaxDTO(rec *domain.FaxRecord) FaxDTO {
	dto := FaxDTO{
		ID:                 rec.ID,
		FaxID:              rec.FaxID,
		Provider:           string(rec.Provider),
		FromFaxNumber:      rec.FromFaxNumber,
		RecipientFaxNumber: rec.RecipientFaxNumber,
		Pages:              rec.Pages,
		PdfDocID:           rec.PdfDocID,
		PdfURL:             rec.PdfURL,
		TifDocID:           rec.TifDocID,
		ProcessingStatus:   string(rec.ProcessingStatus),
		ProcessingError:    rec.ProcessingError,
		FaxStatusDate:      rec.FaxStatusDate,
		Trashed:            rec.Trashed,
		FaxCreatedAt:       rec.FaxCreatedAt,
	}
	if rec.FaxStatus != nil {
		s := string(*rec.FaxStatus)
		dto.FaxStatus = &s
	}
	return dto
}

// UploadCallbackDTO registers a PDF that is already in the fax bucket.
type UploadCallbackDTO struct {
	BucketFilePath     string    `json:"bucketFilePath" validate:"required"`
	DocumentID         uuid.UUID `json:"documentId" validate:"required"`
	FileURL            string    `json:"fileUrl" validate:"required,url"`
	FromFaxNumber      string    `json:"fromFaxNumber" validate:"omitempty,max=20"`
	RecipientFaxNumber string    `json:"recipientFaxNumber" validate:"omitempty,max=20"`
}

type FaxCountDTO struct {
	Count int64 `json:"count"`
}

type FaxAnalyticsDTO struct {
	AllFaxCount         int64   `json:"allFaxCount"`
	ReferralCount       int64   `json:"referralCount"`
	SaveCount           int64   `json:"saveCount"`
	DeleteCount         int64   `json:"deleteCount"`
	AvgMinutesToProcess float64 `json:"avgMinutesToProcess"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
