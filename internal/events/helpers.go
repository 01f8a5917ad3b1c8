package events

import (
	"strings"

	"rwaledger/internal/adapters/kafka"
	"rwaledger/internal/domain/ledger"
)

// TopicFor routes settlement outcomes to their own topic
func TopicFor(t ledger.EventType) string {
	switch t {
	case ledger.EventSettlementConfirmed, ledger.EventSettlementFailed:
		return kafka.TopicSettlementEvents
	default:
		return kafka.TopicLedgerEvents
	}
}

// SanitizeUTF8 drops invalid UTF-8 bytes. Settlement failure reasons come
// from RPC error strings and may carry raw bytes.
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
