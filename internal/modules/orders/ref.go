package orders

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRef builds the merchant-facing order reference, ORD-YYYYMMDD-XXXXXXXX.
func NewRef(now time.Time) string {
	u := uuid.New()
	return "ORD-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(u[:4]))
}
