package entity

import (
	"testing"

	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCompensationEvent_Validate(t *testing.T) {
	t.Parallel()

	valid := CompensationEvent{PaymentID: 1, MemberID: 2, Amount: decimal.NewFromInt(5), CanceledAt: now}
	assert.NoError(t, valid.Validate())

	bad := []CompensationEvent{
		{MemberID: 2, Amount: decimal.NewFromInt(5), CanceledAt: now},
		{PaymentID: 1, Amount: decimal.NewFromInt(5), CanceledAt: now},
		{PaymentID: 1, MemberID: 2, CanceledAt: now},
		{PaymentID: 1, MemberID: 2, Amount: decimal.NewFromInt(5)},
	}

	for _, e := range bad {
		assert.ErrorIs(t, e.Validate(), errs.ErrMalformedPayload)
	}

	assert.Equal(t, "1", valid.AggregateID())
	assert.Equal(t, AggregateCompensation, valid.AggregateType())
}
