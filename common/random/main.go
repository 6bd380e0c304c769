package random

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GetUUID generates a UUID and returns it as a string without hyphens.
// It uses github.com/google/uuid for UUID generation.
func GetUUID() string {
	code := uuid.New().String()
	code = strings.Replace(code, "-", "", -1)
	return code
}

// GetTradeNo builds a monotonic-prefixed external trade number:
// YYYYMMDDhhmmss.<uuid hex>. The timestamp prefix keeps gateway ledgers
// roughly sorted while the uuid suffix guarantees uniqueness.
func GetTradeNo() string {
	return fmt.Sprintf("%s.%s", time.Now().Format("20060102150405"), GetUUID())
}

// GetRedemptionCode concatenates two uuid hex forms into a 64-character
// one-shot bearer code.
func GetRedemptionCode() string {
	return GetUUID() + GetUUID()
}
