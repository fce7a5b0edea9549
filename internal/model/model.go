// Package model defines the relational entities produced by a load batch and
// the raw input shapes they are built from.
package model

import (
	"fmt"
	"strings"
	"time"
)

// RawTransaction is one transaction record as delivered by the upstream feed.
//
// The basket is kept as raw attribute mappings rather than typed structs:
// deduplication compares the full mapping structurally, whatever keys the
// feed happens to carry.
type RawTransaction struct {
	ID               string           `json:"id"`
	Datetime         string           `json:"datetime"`
	Location         string           `json:"location"`
	PaymentType      string           `json:"payment_type"`
	CardDetails      string           `json:"card_details"`
	TransactionTotal float64          `json:"transaction_total"`
	Basket           []map[string]any `json:"basket"`
}

// Product is a unique sellable item. Identity is the full attribute
// combination (name, flavour, size, iced), never the generated id.
type Product struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Flavour string `json:"flavour"`
	Size    string `json:"size"`
	Iced    bool   `json:"iced"`
}

// Location is a store location, unique by name.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BasketItem links a transaction to one product it contained. Many basket
// items may reference the same product.
type BasketItem struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`
	ProductID     string `json:"product_id"`
}

// Transaction is one purchase. The id is supplied by the upstream source,
// not generated here.
type Transaction struct {
	ID               string      `json:"id"`
	Datetime         time.Time   `json:"datetime"`
	PaymentType      PaymentType `json:"payment_type"`
	CardDetails      string      `json:"card_details"`
	TransactionTotal float64     `json:"transaction_total"`
	LocationID       string      `json:"location_id"`
}

// PaymentType is the closed set of accepted payment categories.
type PaymentType int

const (
	PaymentCash PaymentType = iota
	PaymentCard
)

func (p PaymentType) String() string {
	switch p {
	case PaymentCash:
		return "CASH"
	case PaymentCard:
		return "CARD"
	default:
		return fmt.Sprintf("PaymentType(%d)", int(p))
	}
}

// ParsePaymentType maps the feed's payment_type string onto the enumeration.
// Matching is case-insensitive; anything outside the closed set is an error.
func ParsePaymentType(s string) (PaymentType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CASH":
		return PaymentCash, nil
	case "CARD":
		return PaymentCard, nil
	default:
		return 0, fmt.Errorf("unrecognized payment type %q", s)
	}
}

// timestampLayouts are the formats the feed has been observed to use.
// Layouts without a zone are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
}

// ParseTimestamp parses a transaction timestamp from the feed.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if strings.Contains(layout, "Z07:00") {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
			continue
		}
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", s)
}
