// Package ledger records orders as rows of a Google Sheets spreadsheet.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/liraku/lirabot/internal/order"
)

// Columns is the fixed row layout, A through J.
var Columns = []string{
	"timestamp", "user_id", "username", "recipient_name", "account",
	"source_amount", "target_amount", "fee", "method", "status",
}

const (
	timestampLayout = "2006-01-02 15:04:05"
	statusColumn    = "J"
)

// valueInputOption keeps cells as the exact strings written, so UpdateStatus
// can match the timestamp and user id it reads back.
const valueInputOption = "RAW"

// ErrRowNotFound is returned when a status update finds no row for the order.
var ErrRowNotFound = errors.New("ledger: row not found")

// valuesAPI is the part of the Sheets values service the ledger uses.
type valuesAPI interface {
	Append(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
	Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
	Update(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
}

type sheetsValues struct {
	svc *sheets.SpreadsheetsValuesService
}

func (v sheetsValues) Append(ctx context.Context, id, rng string, rows [][]interface{}) error {
	_, err := v.svc.Append(id, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption(valueInputOption).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (v sheetsValues) Get(ctx context.Context, id, rng string) ([][]interface{}, error) {
	resp, err := v.svc.Get(id, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (v sheetsValues) Update(ctx context.Context, id, rng string, rows [][]interface{}) error {
	_, err := v.svc.Update(id, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption(valueInputOption).
		Context(ctx).
		Do()
	return err
}

// Options configure a Sheets ledger.
type Options struct {
	SpreadsheetID string
	Sheet         string
	// CredentialsFile or CredentialsJSON hold a service account key.
	CredentialsFile string
	CredentialsJSON string
	Location        *time.Location
}

// Sheets appends order rows and updates their status cell.
type Sheets struct {
	api           valuesAPI
	spreadsheetID string
	sheet         string
	loc           *time.Location
}

// NewSheets authenticates with a service account and returns a ledger.
func NewSheets(ctx context.Context, opts Options) (*Sheets, error) {
	if opts.SpreadsheetID == "" {
		return nil, errors.New("ledger: spreadsheet id is required")
	}
	var cred option.ClientOption
	switch {
	case opts.CredentialsJSON != "":
		cred = option.WithCredentialsJSON([]byte(opts.CredentialsJSON))
	case opts.CredentialsFile != "":
		cred = option.WithCredentialsFile(opts.CredentialsFile)
	default:
		return nil, errors.New("ledger: service account credentials are required")
	}
	svc, err := sheets.NewService(ctx, cred, option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("ledger: sheets client: %w", err)
	}
	return newSheets(sheetsValues{svc: svc.Spreadsheets.Values}, opts), nil
}

func newSheets(api valuesAPI, opts Options) *Sheets {
	sheet := opts.Sheet
	if sheet == "" {
		sheet = "Orders"
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Sheets{api: api, spreadsheetID: opts.SpreadsheetID, sheet: sheet, loc: loc}
}

// Row renders o in column order.
func (s *Sheets) Row(o order.Order) []interface{} {
	src, dst := o.Flow.Source(), o.Flow.Target()
	return []interface{}{
		o.CreatedAt.In(s.loc).Format(timestampLayout),
		strconv.FormatInt(o.UserID, 10),
		o.Username,
		o.RecipientName,
		o.Account.String(),
		o.SourceAmount.StringFixed(src.Precision()) + " " + string(src),
		o.TargetAmount.StringFixed(dst.Precision()) + " " + string(dst),
		o.Fee.StringFixed(src.Precision()) + " " + string(src),
		string(o.Method),
		string(o.Status),
	}
}

// Append adds o as a new row.
func (s *Sheets) Append(ctx context.Context, o order.Order) error {
	rng := s.sheet + "!A:J"
	if err := s.api.Append(ctx, s.spreadsheetID, rng, [][]interface{}{s.Row(o)}); err != nil {
		return fmt.Errorf("ledger: append %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus rewrites the status cell of the row for o. Rows are matched on
// timestamp and user id, the two values the order id is built from.
func (s *Sheets) UpdateStatus(ctx context.Context, o order.Order) error {
	values, err := s.api.Get(ctx, s.spreadsheetID, s.sheet+"!A:B")
	if err != nil {
		return fmt.Errorf("ledger: read %s: %w", s.sheet, err)
	}
	ts := o.CreatedAt.In(s.loc).Format(timestampLayout)
	user := strconv.FormatInt(o.UserID, 10)
	// newest rows are at the bottom
	for i := len(values) - 1; i >= 0; i-- {
		row := values[i]
		if len(row) < 2 || fmt.Sprint(row[0]) != ts || fmt.Sprint(row[1]) != user {
			continue
		}
		cell := fmt.Sprintf("%s!%s%d", s.sheet, statusColumn, i+1)
		if err := s.api.Update(ctx, s.spreadsheetID, cell, [][]interface{}{{string(o.Status)}}); err != nil {
			return fmt.Errorf("ledger: update %s: %w", o.ID, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRowNotFound, o.ID)
}
