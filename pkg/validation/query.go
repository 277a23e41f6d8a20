package validation

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// NormalizeQuery trims, lowercases and collapses internal whitespace runs
// in a raw user query. An empty return value means the query is invalid.
func NormalizeQuery(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// QueryHash returns the stable cache key digest for a normalized query.
func QueryHash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ValidateStruct runs validator tags against any request envelope.
func ValidateStruct(v any) error {
	return validate.Struct(v)
}
