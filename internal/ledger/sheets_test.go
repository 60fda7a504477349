package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/liraku/lirabot/internal/order"
)

type fakeValues struct {
	rows    [][]interface{}
	updates map[string]interface{}
	err     error
}

func (f *fakeValues) Append(_ context.Context, _, rng string, rows [][]interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeValues) Get(_ context.Context, _, rng string) ([][]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]interface{}, len(f.rows))
	for i, r := range f.rows {
		out[i] = r[:2]
	}
	return out, nil
}

func (f *fakeValues) Update(_ context.Context, _, rng string, rows [][]interface{}) error {
	if f.updates == nil {
		f.updates = map[string]interface{}{}
	}
	f.updates[rng] = rows[0][0]
	return nil
}

func sample(userID int64, at time.Time) order.Order {
	return order.Order{
		ID:            fmt.Sprintf("LIRA_%d_%d", userID, at.Unix()),
		UserID:        userID,
		Username:      "ahmet",
		Flow:          order.FlowBuy,
		SourceAmount:  decimal.NewFromInt(500000),
		TargetAmount:  decimal.RequireFromString("965"),
		Fee:           decimal.NewFromInt(3850),
		RecipientName: "Ahmet Yilmaz",
		Account:       order.Account{Kind: order.AccountIBAN, Number: "TR123456789012345678901234"},
		Method:        order.MethodQRIS,
		Status:        order.StatusPending,
		CreatedAt:     at,
	}
}

func TestRowHasTenColumnsInOrder(t *testing.T) {
	wib := time.FixedZone("WIB", 7*3600)
	s := newSheets(&fakeValues{}, Options{SpreadsheetID: "x", Location: wib})
	at := time.Date(2026, 5, 1, 2, 30, 0, 0, time.UTC)
	row := s.Row(sample(42, at))
	want := []string{
		"2026-05-01 09:30:00", "42", "ahmet", "Ahmet Yilmaz", "TR123456789012345678901234",
		"500000 IDR", "965.00 TRY", "3850 IDR", "qris", "pending",
	}
	if len(row) != len(Columns) || len(row) != 10 {
		t.Fatalf("row has %d columns", len(row))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %d (%s) = %v, want %v", i, Columns[i], row[i], want[i])
		}
	}
}

func TestAppendAndUpdateStatus(t *testing.T) {
	api := &fakeValues{rows: [][]interface{}{{"timestamp", "user_id"}}}
	s := newSheets(api, Options{SpreadsheetID: "x", Sheet: "Orders"})
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	first, second := sample(42, at), sample(77, at)
	for _, o := range []order.Order{first, second} {
		if err := s.Append(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	second.Status = order.StatusPaid
	if err := s.UpdateStatus(ctx, second); err != nil {
		t.Fatal(err)
	}
	if got := api.updates["Orders!J3"]; got != "paid" {
		t.Fatalf("expected row 3 status update, got %v", api.updates)
	}

	missing := sample(99, at)
	if err := s.UpdateStatus(ctx, missing); !errors.Is(err, ErrRowNotFound) {
		t.Fatalf("expected ErrRowNotFound, got %v", err)
	}
}

func TestAppendError(t *testing.T) {
	api := &fakeValues{err: errors.New("quota")}
	s := newSheets(api, Options{SpreadsheetID: "x"})
	if err := s.Append(context.Background(), sample(1, time.Now())); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSheetsValuesWriteRaw(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ":append") || r.Method == http.MethodPut {
			got = append(got, r.URL.Query().Get("valueInputOption"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	svc, err := sheets.NewService(ctx, option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	if err != nil {
		t.Fatal(err)
	}
	s := newSheets(sheetsValues{svc: svc.Spreadsheets.Values}, Options{SpreadsheetID: "sheet-id"})
	o := sample(42, time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	if err := s.Append(ctx, o); err != nil {
		t.Fatal(err)
	}
	if err := s.api.Update(ctx, "sheet-id", "Orders!J2", [][]interface{}{{"paid"}}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "RAW" || got[1] != "RAW" {
		t.Fatalf("valueInputOption = %v, want RAW for append and update", got)
	}
}
