package data

import (
	"fmt"
	"strings"
	"sync/atomic"
)

var memorySeq atomic.Uint64

// MemoryDSN returns a SQLite DSN for a private in-memory database. Each call
// yields a distinct database even for the same name.
func MemoryDSN(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on", clean, memorySeq.Add(1))
}
