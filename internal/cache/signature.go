package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/openinfra/beacon/internal/knowledge"
)

// Signature is the deterministic identity of a search request. Two requests
// that would produce the same result page hash to the same signature.
type Signature string

// NewSignature derives a Signature from the normalized query text, the
// active filter, the sort order and the page window. Field order is fixed
// so the hash is stable across processes.
func NewSignature(query string, filter knowledge.Filter, sortBy string, page knowledge.Page) Signature {
	var b strings.Builder
	writeField(&b, "q", strings.ToLower(strings.TrimSpace(query)))
	writeField(&b, "topic", strings.ToLower(filter.Topic))
	writeField(&b, "country", strings.ToLower(filter.Country))
	writeField(&b, "year", itoa(filter.Year))
	writeField(&b, "yearFrom", itoa(filter.YearFrom))
	writeField(&b, "yearTo", itoa(filter.YearTo))
	writeField(&b, "sort", sortBy)
	writeField(&b, "limit", itoa(page.Limit))
	writeField(&b, "offset", itoa(page.Offset))

	sum := sha256.Sum256([]byte(b.String()))
	return Signature(hex.EncodeToString(sum[:]))
}

func writeField(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteByte('\n')
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}
