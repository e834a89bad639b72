package booking

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"

	"autoconnect/internal/apperr"
)

const (
	MaxReceiptBytes = 10 << 20

	// MaxReceiptSide bounds the longer edge of an uploaded receipt. Larger
	// photos are scaled down before they are forwarded.
	MaxReceiptSide = 2000
)

// Receipt is a payment proof as received from the renter.
type Receipt struct {
	Filename    string
	ContentType string
	Data        []byte
}

// PrepareReceipt checks that r is a readable JPEG and returns the bytes to
// forward, downscaled when the image is larger than MaxReceiptSide.
func PrepareReceipt(r Receipt) ([]byte, error) {
	if len(r.Data) == 0 {
		return nil, apperr.Validation("RECEIPT_REQUIRED", "select a receipt image to upload")
	}
	if len(r.Data) > MaxReceiptBytes {
		return nil, apperr.Validation("RECEIPT_TOO_LARGE", "receipt must be 10 MB or smaller")
	}
	declared := strings.ToLower(strings.TrimSpace(strings.SplitN(r.ContentType, ";", 2)[0]))
	if declared != "image/jpeg" || http.DetectContentType(r.Data) != "image/jpeg" {
		return nil, apperr.Validation("RECEIPT_NOT_JPEG", "only JPEG images are accepted")
	}

	img, err := imaging.Decode(bytes.NewReader(r.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Code: "RECEIPT_UNREADABLE", Message: "the receipt image could not be read", Err: err}
	}

	b := img.Bounds()
	if b.Dx() <= MaxReceiptSide && b.Dy() <= MaxReceiptSide {
		return r.Data, nil
	}

	resized := imaging.Fit(img, MaxReceiptSide, MaxReceiptSide, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, apperr.Internal("failed to encode receipt", err)
	}
	return buf.Bytes(), nil
}
