package events

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"rwaledger/internal/domain/ledger"
	eventspb "rwaledger/internal/events/proto"
	"rwaledger/pkg/errors"
)

// ToProto converts a ledger event to its wire envelope
func ToProto(e ledger.Event) *eventspb.LedgerEvent {
	return &eventspb.LedgerEvent{
		Id:          e.ID.String(),
		Type:        string(e.Type),
		PoolId:      e.PoolID.String(),
		HolderId:    e.HolderID,
		ReferenceId: e.ReferenceID.String(),
		Amount:      e.Amount.String(),
		Actor:       e.Actor,
		Detail:      e.Detail,
		OccurredAt:  timestamppb.New(e.OccurredAt),
	}
}

// FromProto converts a wire envelope back to a ledger event. Envelopes
// without a valid id or a type are rejected.
func FromProto(pb *eventspb.LedgerEvent) (ledger.Event, error) {
	id, err := uuid.Parse(pb.GetId())
	if err != nil {
		return ledger.Event{}, errors.Wrapf(errors.ErrInvalidInput, "event id %q", pb.GetId())
	}
	if pb.GetType() == "" {
		return ledger.Event{}, errors.Wrapf(errors.ErrInvalidInput, "event %s has no type", id)
	}
	poolID, err := uuid.Parse(pb.GetPoolId())
	if err != nil {
		return ledger.Event{}, errors.Wrapf(errors.ErrInvalidInput, "event %s pool id %q", id, pb.GetPoolId())
	}
	var refID uuid.UUID
	if pb.GetReferenceId() != "" {
		if refID, err = uuid.Parse(pb.GetReferenceId()); err != nil {
			return ledger.Event{}, errors.Wrapf(errors.ErrInvalidInput, "event %s reference id %q", id, pb.GetReferenceId())
		}
	}
	amount := decimal.Zero
	if pb.GetAmount() != "" {
		if amount, err = decimal.NewFromString(pb.GetAmount()); err != nil {
			return ledger.Event{}, errors.Wrapf(errors.ErrInvalidInput, "event %s amount %q", id, pb.GetAmount())
		}
	}

	e := ledger.Event{
		ID:          id,
		Type:        ledger.EventType(pb.GetType()),
		PoolID:      poolID,
		HolderID:    pb.GetHolderId(),
		ReferenceID: refID,
		Amount:      amount,
		Actor:       pb.GetActor(),
		Detail:      pb.GetDetail(),
	}
	if pb.GetOccurredAt() != nil {
		e.OccurredAt = pb.GetOccurredAt().AsTime()
	}
	return e, nil
}

// Decode unmarshals a Kafka message value into a ledger event
func Decode(data []byte) (ledger.Event, error) {
	var pb eventspb.LedgerEvent
	if err := proto.Unmarshal(data, &pb); err != nil {
		return ledger.Event{}, errors.Wrapf(errors.ErrInvalidInput, "unmarshal ledger event: %v", err)
	}
	return FromProto(&pb)
}
