package model

import (
	"testing"
	"time"
)

func TestParsePaymentType(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    PaymentType
		wantErr bool
	}{
		{name: "cash_upper", in: "CASH", want: PaymentCash},
		{name: "card_upper", in: "CARD", want: PaymentCard},
		{name: "cash_lower", in: "cash", want: PaymentCash},
		{name: "card_mixed", in: "Card", want: PaymentCard},
		{name: "padded", in: "  CARD ", want: PaymentCard},
		{name: "unknown", in: "BITCOIN", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePaymentType(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParsePaymentType(%q) expected error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePaymentType(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ParsePaymentType(%q)=%v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestPaymentTypeString(t *testing.T) {
	if PaymentCash.String() != "CASH" {
		t.Fatalf("PaymentCash.String()=%q", PaymentCash.String())
	}
	if PaymentCard.String() != "CARD" {
		t.Fatalf("PaymentCard.String()=%q", PaymentCard.String())
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{
			name: "rfc3339",
			in:   "2024-03-01T09:15:00Z",
			want: time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC),
		},
		{
			name: "rfc3339_offset_normalized_to_utc",
			in:   "2024-03-01T10:15:00+01:00",
			want: time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC),
		},
		{
			name: "space_separated_assumed_utc",
			in:   "2024-03-01 09:15:00",
			want: time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC),
		},
		{
			name: "day_first_assumed_utc",
			in:   "01/03/2024 09:15",
			want: time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC),
		},
		{
			name: "padded",
			in:   "  2024-03-01T09:15:00Z ",
			want: time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTimestamp(tc.in)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q): %v", tc.in, err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("ParseTimestamp(%q)=%v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseTimestamp_Rejects(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday", "2024-13-45 99:99:99"} {
		if _, err := ParseTimestamp(in); err == nil {
			t.Fatalf("ParseTimestamp(%q) expected error", in)
		}
	}
}
