// Package label encodes lot identity into GS1-128 barcode payloads and
// PTI/FSMA label fields. Encoding is a pure function of the item and lot so a
// reprint is byte-identical to the original.
package label

import (
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
)

const (
	packDateLayout = "060102"
	ptiDateLayout  = "2006-01-02"

	// DefaultExpiryMarker appears in the PTI expiry field for lots without an
	// expiry date. An empty field would be ambiguous on an audit.
	DefaultExpiryMarker = "NO EXPIRY"
)

// Encoder produces label payloads for allocated lots
type Encoder struct {
	expiryMarker string
}

// NewEncoder creates an Encoder. An empty expiryMarker falls back to
// DefaultExpiryMarker.
func NewEncoder(expiryMarker string) *Encoder {
	if expiryMarker == "" {
		expiryMarker = DefaultExpiryMarker
	}
	return &Encoder{expiryMarker: expiryMarker}
}

// Encode derives the label payload for a lot of an item. The GTIN is
// validated before any payload is assembled, so a failed call emits nothing
// partial. Field order in the GS1 payload is AI 01 (GTIN), AI 15 (pack date
// as YYMMDD from the received timestamp), then AI 10 (lot code) last because
// it is the only variable-length field.
func (e *Encoder) Encode(item *domain.Item, lot *domain.Lot) (*domain.LabelPayload, error) {
	gtin, err := NormalizeGTIN(item.GTIN)
	if err != nil {
		return nil, err
	}

	packDate := lot.ReceivedAt.UTC()
	fields := []domain.GS1Field{
		{AI: aiGTIN, Value: gtin},
		{AI: aiPackDat, Value: packDate.Format(packDateLayout)},
		{AI: aiLot, Value: lot.LotCode},
	}
	payload, humanReadable := gs1Concat(fields)

	expiry := e.expiryMarker
	if lot.ExpiryAt != nil {
		expiry = lot.ExpiryAt.UTC().Format(ptiDateLayout)
	}

	return &domain.LabelPayload{
		GS1128:        payload,
		GS1Fields:     fields,
		HumanReadable: humanReadable,
		PTI: domain.PTIFields{
			ItemName: item.Name,
			GTIN:     gtin,
			LotCode:  lot.LotCode,
			PackDate: packDate.Format(ptiDateLayout),
			Expiry:   expiry,
		},
	}, nil
}
