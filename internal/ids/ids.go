// Package ids generates the prefixed record identifiers used throughout the
// parking documents: BOOK_<unix>_<suffix> for bookings and
// USER_<unix>_<suffix> for users.
package ids

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const suffixLength = 6

// NewBookingID returns a booking identifier stamped with the supplied time.
func NewBookingID(now time.Time) string {
	return newID("BOOK", now)
}

// NewUserID returns a user identifier stamped with the supplied time.
func NewUserID(now time.Time) string {
	return newID("USER", now)
}

func newID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", prefix, now.Unix(), randomSuffix())
}

func randomSuffix() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:suffixLength])
}
