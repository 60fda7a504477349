package order

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultIDPrefix starts every order id unless configured otherwise.
const DefaultIDPrefix = "LIRA"

// ErrMalformedID is returned when an order id does not decode.
var ErrMalformedID = errors.New("order: malformed id")

// IDCodec builds and decodes order ids of the form PREFIX_<userID>_<unix>.
type IDCodec struct {
	Prefix string
}

// IDParts are the values an order id encodes.
type IDParts struct {
	UserID    int64
	CreatedAt time.Time
}

func (c IDCodec) prefix() string {
	if c.Prefix == "" {
		return DefaultIDPrefix
	}
	return c.Prefix
}

// New returns the id for an order placed by userID at t.
func (c IDCodec) New(userID int64, t time.Time) string {
	return fmt.Sprintf("%s_%d_%d", c.prefix(), userID, t.Unix())
}

// Parse decodes id. Any deviation from the exact layout is rejected.
func (c IDCodec) Parse(id string) (IDParts, error) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 || parts[0] != c.prefix() {
		return IDParts{}, fmt.Errorf("%w: %q", ErrMalformedID, id)
	}
	user, err := parsePositive(parts[1])
	if err != nil {
		return IDParts{}, fmt.Errorf("%w: user id in %q", ErrMalformedID, id)
	}
	ts, err := parsePositive(parts[2])
	if err != nil {
		return IDParts{}, fmt.Errorf("%w: timestamp in %q", ErrMalformedID, id)
	}
	return IDParts{UserID: user, CreatedAt: time.Unix(ts, 0).UTC()}, nil
}

func parsePositive(s string) (int64, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, errors.New("not a number")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("not positive")
	}
	return n, nil
}
