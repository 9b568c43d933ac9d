// Package xid generates the prefixed record identifiers used across the
// back office ("store-", "dlv-", "pay-", "bill-", "acct-", "exp-").
package xid

import (
	"crypto/rand"
	"fmt"
	"time"
)

// New returns a prefixed identifier that is unique enough for record keys
// without coordinating across processes.
func New(prefix string) string {
	now := time.Now().UnixNano()
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("%s-%d", prefix, now)
	}
	return fmt.Sprintf("%s-%d-%x", prefix, now, buf)
}
