package types

import (
	"strconv"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// SalesEventRow mirrors the sales_events BigQuery schema. One row is written per
// order line; refunds write the same lines with negated amounts.
type SalesEventRow struct {
	EventID        string               `bigquery:"event_id"`
	EventType      string               `bigquery:"event_type"`
	OccurredAt     time.Time            `bigquery:"occurred_at"`
	OrderID        string               `bigquery:"order_id"`
	OrderNumber    string               `bigquery:"order_number"`
	PaymentID      string               `bigquery:"payment_id"`
	TransactionID  string               `bigquery:"transaction_id"`
	BuyerID        string               `bigquery:"buyer_id"`
	ArtistID       cbigquery.NullString `bigquery:"artist_id"`
	ItemType       string               `bigquery:"item_type"`
	ItemID         string               `bigquery:"item_id"`
	Quantity       int64                `bigquery:"quantity"`
	UnitPriceCents int64                `bigquery:"unit_price_cents"`
	AmountCents    int64                `bigquery:"amount_cents"`
	PaymentMethod  string               `bigquery:"payment_method"`
	LineNo         int64                `bigquery:"line_no"`
}

// InsertID identifies the row for BigQuery streaming dedupe. Pub/Sub redelivery of
// the same event yields the same IDs, so a sale is not counted twice.
func (r SalesEventRow) InsertID() string {
	return r.EventID + ":" + strconv.FormatInt(r.LineNo, 10)
}
