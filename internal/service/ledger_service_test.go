package service

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/gateway"
	"alcyxob/group-coach/internal/repository/memory"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newLedger(t *testing.T, exempt ...primitive.ObjectID) (LedgerService, *memory.CreditRepository) {
	t.Helper()
	repo := memory.NewCreditRepository()
	hex := make([]string, len(exempt))
	for i, id := range exempt {
		hex[i] = id.Hex()
	}
	return NewLedgerService(repo, hex, testLogger()), repo
}

func TestLedgerDebitInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger(t)
	user := primitive.NewObjectID()

	_, err := ledger.Grant(ctx, user, 4, domain.ReasonSignupBonus)
	require.NoError(t, err)

	_, err = ledger.Debit(ctx, user, 5, Operation{Reason: domain.ReasonAIAction, Action: domain.ActionWorkout})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(4), insufficient.Available)
	assert.Equal(t, int64(5), insufficient.Requested)

	account, err := ledger.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(4), account.Balance)
}

func TestLedgerMissingAccountReadsAsZero(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger(t)
	user := primitive.NewObjectID()

	account, err := ledger.Balance(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, account.Balance)

	_, err = ledger.Debit(ctx, user, 1, Operation{Reason: domain.ReasonAIAction})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestLedgerRejectsNonPositiveAmounts(t *testing.T) {
	ledger, _ := newLedger(t)
	user := primitive.NewObjectID()

	_, err := ledger.Debit(context.Background(), user, 0, Operation{})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ledger.Credit(context.Background(), user, -3, Operation{})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedgerConcurrentDebitsNeverGoNegative(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger(t)
	user := primitive.NewObjectID()
	_, err := ledger.Grant(ctx, user, 50, domain.ReasonGrant)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Debit(ctx, user, 3, Operation{Reason: domain.ReasonAIAction})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientBalance)
		}()
	}
	wg.Wait()

	account, err := ledger.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 16, succeeded)
	assert.Equal(t, int64(2), account.Balance)
	assert.GreaterOrEqual(t, account.Balance, int64(0))
}

func TestLedgerChargeRefundsOnTimeout(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger(t)
	user := primitive.NewObjectID()
	_, err := ledger.Grant(ctx, user, 5, domain.ReasonGrant)
	require.NoError(t, err)

	var balanceDuringCall int64
	err = ledger.Charge(ctx, user, domain.ActionWorkout, 5, func(ctx context.Context) error {
		account, _ := ledger.Balance(ctx, user)
		balanceDuringCall = account.Balance
		return fmt.Errorf("%w: context deadline exceeded", gateway.ErrGatewayFailure)
	})
	assert.ErrorIs(t, err, gateway.ErrGatewayFailure)
	assert.Zero(t, balanceDuringCall, "cost must be reserved before the call starts")

	account, err := ledger.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(5), account.Balance)

	entries, err := ledger.Entries(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	refund, debit := entries[0], entries[1]
	assert.Equal(t, domain.ReasonRefund, refund.Reason)
	assert.Equal(t, domain.LedgerCredit, refund.Kind)
	assert.Equal(t, domain.LedgerDebit, debit.Kind)
	assert.Equal(t, debit.OperationID, refund.OperationID)
	assert.NotEmpty(t, refund.OperationID)
}

func TestLedgerChargeNeverCallsWithoutFunds(t *testing.T) {
	ledger, _ := newLedger(t)
	called := false
	err := ledger.Charge(context.Background(), primitive.NewObjectID(), domain.ActionChat, 1, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.False(t, called)
}

func TestLedgerChargeRefundsWhenCallerCancelled(t *testing.T) {
	ledger, _ := newLedger(t)
	user := primitive.NewObjectID()
	_, err := ledger.Grant(context.Background(), user, 10, domain.ReasonGrant)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	err = ledger.Charge(ctx, user, domain.ActionProgram, 10, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	account, err := ledger.Balance(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, int64(10), account.Balance)
}

func TestLedgerChargeSurfacesRefundFailure(t *testing.T) {
	ctx := context.Background()
	ledger, repo := newLedger(t)
	user := primitive.NewObjectID()
	_, err := ledger.Grant(ctx, user, 5, domain.ReasonGrant)
	require.NoError(t, err)

	repo.FailCredit = func(primitive.ObjectID, int64) error { return errors.New("store unavailable") }
	callErr := fmt.Errorf("%w: status 500", gateway.ErrGatewayFailure)
	err = ledger.Charge(ctx, user, domain.ActionWorkout, 5, func(context.Context) error { return callErr })

	assert.ErrorIs(t, err, ErrRefundFailed)
	assert.ErrorIs(t, err, gateway.ErrGatewayFailure)
}

func TestLedgerChargePartialRefundsUnused(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger(t)
	user := primitive.NewObjectID()
	_, err := ledger.Grant(ctx, user, 20, domain.ReasonGrant)
	require.NoError(t, err)

	partial := errors.New("one write failed")
	err = ledger.ChargePartial(ctx, user, domain.ActionGroupWorkout, 15, func(context.Context) (int64, error) {
		return 10, partial
	})
	assert.ErrorIs(t, err, partial)

	account, err := ledger.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(10), account.Balance)
}

func TestLedgerChargeRefundsWhenCallPanics(t *testing.T) {
	ctx := context.Background()
	ledger, repo := newLedger(t)
	user := primitive.NewObjectID()
	_, err := ledger.Grant(ctx, user, 10, domain.ReasonGrant)
	require.NoError(t, err)

	assert.PanicsWithValue(t, "decoder blew up", func() {
		_ = ledger.Charge(ctx, user, domain.ActionChat, 4, func(context.Context) error {
			panic("decoder blew up")
		})
	})

	account, err := ledger.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(10), account.Balance)

	entries, err := repo.ListEntries(ctx, user, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ReasonRefund, entries[0].Reason)
	assert.Equal(t, int64(4), entries[0].Amount)
}

func TestLedgerExemptAccountsBypassDebitButAreRecorded(t *testing.T) {
	ctx := context.Background()
	admin := primitive.NewObjectID()
	ledger, _ := newLedger(t, admin)
	require.True(t, ledger.IsExempt(admin))

	err := ledger.Charge(ctx, admin, domain.ActionProgram, 10, func(context.Context) error { return nil })
	require.NoError(t, err)

	err = ledger.Charge(ctx, admin, domain.ActionWorkout, 5, func(context.Context) error {
		return gateway.ErrGatewayFailure
	})
	assert.ErrorIs(t, err, gateway.ErrGatewayFailure)

	account, err := ledger.Balance(ctx, admin)
	require.NoError(t, err)
	assert.Zero(t, account.Balance)

	entries, err := ledger.Entries(ctx, admin, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.True(t, e.Exempt)
		assert.Zero(t, e.BalanceAfter)
	}
}

func TestLedgerInvalidExemptIDsAreIgnored(t *testing.T) {
	ledger := NewLedgerService(memory.NewCreditRepository(), []string{"not-an-id"}, testLogger())
	assert.False(t, ledger.IsExempt(primitive.NewObjectID()))
}
