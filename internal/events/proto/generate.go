// Package eventspb holds the protobuf envelope for ledger events.
package eventspb

//go:generate protoc --go_out=. --go_opt=paths=source_relative ledger.proto
