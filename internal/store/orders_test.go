package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liraku/lirabot/internal/order"
)

func sampleOrder() order.Order {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return order.Order{
		ID:            "LIRA_42_1777626000",
		UserID:        42,
		Username:      "ahmet",
		Flow:          order.FlowBuy,
		SourceAmount:  decimal.NewFromInt(500000),
		TargetAmount:  decimal.RequireFromString("965"),
		Fee:           decimal.NewFromInt(3850),
		Total:         decimal.NewFromInt(503850),
		BaseRate:      decimal.RequireFromString("0.002"),
		QuotedRate:    decimal.RequireFromString("0.00193"),
		RecipientName: "Ahmet Yilmaz",
		Account:       order.Account{Kind: order.AccountIBAN, Number: "TR123456789012345678901234"},
		Method:        order.MethodQRIS,
		Status:        order.StatusPending,
		Payment:       order.Payment{Reference: "https://qr.example/x", ExpiresAt: at.Add(15 * time.Minute)},
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

func TestRowMappingRoundTrip(t *testing.T) {
	o := sampleOrder()
	got := toRow(o).toOrder()
	if got.ID != o.ID || got.Account != o.Account || got.Status != o.Status || got.Method != o.Method ||
		!got.Total.Equal(o.Total) || !got.Payment.ExpiresAt.Equal(o.Payment.ExpiresAt) || got.Payment.Reference != o.Payment.Reference {
		t.Fatalf("mapping lost data:\n got %+v\nwant %+v", got, o)
	}
	o.Payment = order.Payment{}
	if toRow(o).PaymentExpiry.Valid {
		t.Fatalf("zero expiry must map to NULL")
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	o := sampleOrder()

	if err := repo.Create(ctx, o); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, o); err == nil {
		t.Fatalf("duplicate create accepted")
	}
	if _, err := repo.Get(ctx, "LIRA_1_1"); !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	at := o.CreatedAt.Add(time.Minute)
	cases := []struct {
		next    order.Status
		changed bool
		err     error
	}{
		{order.StatusAwaitingVerification, true, nil},
		{order.StatusAwaitingVerification, false, nil},
		{order.StatusPending, false, order.ErrInvalidTransition},
		{order.StatusPaid, true, nil},
		{order.StatusFailed, false, order.ErrInvalidTransition},
		{order.StatusPaid, false, nil},
	}
	for _, tc := range cases {
		got, changed, err := repo.UpdateStatus(ctx, o.ID, tc.next, at)
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("-> %s: expected %v, got %v", tc.next, tc.err, err)
			}
			continue
		}
		if err != nil || changed != tc.changed || got.Status != tc.next {
			t.Fatalf("-> %s: got %s changed=%v err=%v", tc.next, got.Status, changed, err)
		}
	}
	if _, _, err := repo.UpdateStatus(ctx, "LIRA_1_1", order.StatusPaid, at); !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
