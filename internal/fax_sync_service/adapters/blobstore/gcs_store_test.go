package blobstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFaxDocumentKey(t *testing.T) {
	id := uuid.MustParse("8f14e45f-ceea-467f-a8d2-7f2a1b4c9e10")
	assert.Equal(t, "files/partner_7/faxes/8f14e45f-ceea-467f-a8d2-7f2a1b4c9e10.pdf", FaxDocumentKey(7, id, ExtPDF))
	assert.Equal(t, "files/partner_7/faxes/8f14e45f-ceea-467f-a8d2-7f2a1b4c9e10.tif", FaxDocumentKey(7, id, ExtTIFF))
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t,
		"https://storage.cloud.google.com/fax-documents/files/partner_7/faxes/x.pdf",
		PublicURL("fax-documents", "files/partner_7/faxes/x.pdf"))
}
