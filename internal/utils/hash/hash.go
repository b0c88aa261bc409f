package hash

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

type Hash struct {
	data []byte
}

func NewHash(data []byte) Hash {
	return Hash{data: data}
}

func (h Hash) ComputeHash() string {
	hash := sha256.Sum256(h.data)
	return fmt.Sprintf("%x", hash)
}

// FromFields hashes a record by its sorted key=value pairs so the result does
// not depend on map iteration or column order.
func FromFields(fields map[string]string) Hash {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strings.ToUpper(strings.TrimSpace(k)))
		b.WriteByte('=')
		b.WriteString(strings.TrimSpace(fields[k]))
		b.WriteByte('\n')
	}
	return NewHash([]byte(b.String()))
}
