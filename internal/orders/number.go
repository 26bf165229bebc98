package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const orderNumberPrefix = "ORD"

// newOrderNumber returns ORD-YYYYMMDD-XXXXXXXX with a random upper-case hex suffix.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return orderNumberPrefix + "-" + now.UTC().Format("20060102") + "-" + suffix
}
