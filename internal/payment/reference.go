package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const referencePrefix = "SUB"

// NewReference builds a gateway reference for one payment attempt:
// SUB-<studentID>-<year>-<unixMillis>-<6 hex>. The random suffix keeps two attempts in the
// same millisecond apart.
func NewReference(studentID int64, year string, at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s-%d-%s-%d-%s", referencePrefix, studentID, year, at.UnixMilli(), suffix)
}
