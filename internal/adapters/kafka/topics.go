package kafka

// Topic definitions for ledger event streaming
const (
	// Committed ledger facts: investments, transfers, distributions, claims
	TopicLedgerEvents = "ledger.events"

	// Settlement outcomes, including failures that need reconciliation
	TopicSettlementEvents = "ledger.settlements"
)

// AllTopics lists every topic the service produces to
var AllTopics = []string{TopicLedgerEvents, TopicSettlementEvents}
