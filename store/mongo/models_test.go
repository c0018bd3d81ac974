package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/types"
)

func TestCycleModelKeepsMoneyAndDetails(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	c := &cycle.Cycle{
		Entity:         types.NewEntityAt(now),
		ID:             id.NewCycleID(),
		SubscriptionID: id.NewSubscriptionID(),
		Currency:       "cop",
		Start:          cycle.Day(now),
		End:            cycle.Day(now).AddDate(0, 0, 29),
		DueDate:        cycle.Day(now).AddDate(0, 0, 5),
		TotalAmount:    types.New(2000000, "cop"),
		PaidAmount:     types.New(1234567, "cop"),
		PendingBalance: types.New(765433, "cop"),
		CreditBalance:  types.Zero("cop"),
		Status:         cycle.StatusPartial,
	}
	c.Details = []cycle.Detail{{
		Entity:            types.NewEntityAt(now),
		ID:                id.NewCycleDetailID(),
		CycleID:           c.ID,
		ProductID:         id.NewProductID(),
		PlannedQuantity:   10,
		DeliveredQuantity: 3,
		RemainingBalance:  7,
		ReservedQuantity:  2,
	}}

	m := toCycleModel(c)
	assert.Equal(t, "12345.67", m.PaidAmount.String())
	require.Len(t, m.Details, 1)

	got, err := fromCycleModel(m)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.SubscriptionID, got.SubscriptionID)
	assert.True(t, got.PaidAmount.Equal(c.PaidAmount))
	assert.True(t, got.PendingBalance.Equal(c.PendingBalance))
	assert.True(t, got.CreditBalance.IsZero())
	assert.Equal(t, c.End, got.End)
	require.Len(t, got.Details, 1)
	assert.Equal(t, c.ID, got.Details[0].CycleID)
	assert.Equal(t, 3, got.Details[0].DeliveredQuantity)
	assert.Equal(t, 2, got.Details[0].ReservedQuantity)
}

func TestPaymentModelRelatedCycle(t *testing.T) {
	p := &payment.Payment{
		ID:      id.NewPaymentID(),
		CycleID: id.NewCycleID(),
		Kind:    payment.KindSurcharge,
		Amount:  types.New(-70000, "cop"),
		Method:  payment.MethodSystem,
		PaidAt:  time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
	}

	m := toPaymentModel(p)
	assert.Empty(t, m.RelatedCycleID)

	got, err := fromPaymentModel(m)
	require.NoError(t, err)
	assert.True(t, got.RelatedCycleID.IsNil())
	assert.True(t, got.Amount.Equal(p.Amount))

	p.RelatedCycleID = id.NewCycleID()
	got, err = fromPaymentModel(toPaymentModel(p))
	require.NoError(t, err)
	assert.Equal(t, p.RelatedCycleID, got.RelatedCycleID)
}

func TestFromModelRejectsBadID(t *testing.T) {
	_, err := fromSubscriptionModel(&subscriptionModel{ID: "not-an-id"})
	assert.Error(t, err)

	_, err = fromPaymentModel(&paymentModel{ID: id.NewPaymentID().String(), Amount: bson.NewDecimal128(0, 0)})
	assert.NoError(t, err)
}

func TestMigrationIndexesCoverCollections(t *testing.T) {
	idx := migrationIndexes()
	for _, col := range []string{colPlans, colSubscriptions, colCycles, colPayments} {
		assert.NotEmpty(t, idx[col], col)
	}
}

func TestCycleStartIndexIsUnique(t *testing.T) {
	var found bool
	for _, m := range migrationIndexes()[colCycles] {
		keys, ok := m.Keys.(bson.D)
		require.True(t, ok)
		if len(keys) != 2 || keys[0].Key != "subscription_id" || keys[1].Key != "cycle_start" {
			continue
		}
		found = true

		require.NotNil(t, m.Options)
		var opts options.IndexOptions
		for _, set := range m.Options.List() {
			require.NoError(t, set(&opts))
		}
		require.NotNil(t, opts.Unique)
		assert.True(t, *opts.Unique)
	}
	assert.True(t, found, "cycles need a (subscription_id, cycle_start) index")
}

func TestCycleInsertDuplicateIsConflict(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}}}

	err := cycleInsertErr(dup)
	assert.ErrorIs(t, err, errCycleExists)
	assert.ErrorIs(t, err, cyclebill.ErrTransactionConflict)
	assert.True(t, cyclebill.IsRetryable(err))

	err = cycleInsertErr(assert.AnError)
	assert.NotErrorIs(t, err, errCycleExists)
	assert.ErrorIs(t, err, assert.AnError)
}
