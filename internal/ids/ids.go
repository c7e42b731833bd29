package ids

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string.
func New() (string, error) {
	return NewAt(time.Now())
}

// NewAt generates a ULID with the given timestamp. IDs minted within the
// same millisecond sort in creation order.
func NewAt(t time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(t), ulid.DefaultEntropy())
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Valid reports whether s parses as a ULID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
