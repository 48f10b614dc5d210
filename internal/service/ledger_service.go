package service

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/repository"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrInsufficientBalance = errors.New("insufficient credit balance")
	ErrInvalidAmount       = errors.New("credit amount must be positive")
	ErrRefundFailed        = errors.New("refund of a failed AI action did not complete")
)

// refundTimeout bounds a compensating credit. The refund runs on a context
// detached from the caller so a cancelled request still gets its money back.
const refundTimeout = 10 * time.Second

// InsufficientBalanceError reports a rejected debit.
type InsufficientBalanceError struct {
	UserID    primitive.ObjectID
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient credit balance: have %d, need %d", e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// Operation describes why a balance changes. An empty ID gets a fresh one.
type Operation struct {
	Reason domain.LedgerReason
	Action domain.AIAction
	ID     string
}

// LedgerService is the only component allowed to change credit balances.
type LedgerService interface {
	Debit(ctx context.Context, userID primitive.ObjectID, amount int64, op Operation) (*domain.CreditAccount, error)
	Credit(ctx context.Context, userID primitive.ObjectID, amount int64, op Operation) (*domain.CreditAccount, error)
	Grant(ctx context.Context, userID primitive.ObjectID, amount int64, reason domain.LedgerReason) (*domain.CreditAccount, error)
	Balance(ctx context.Context, userID primitive.ObjectID) (*domain.CreditAccount, error)
	IsExempt(userID primitive.ObjectID) bool
	Entries(ctx context.Context, userID primitive.ObjectID, limit int64) ([]domain.LedgerEntry, error)

	// Charge debits cost, runs call, and credits the full cost back if call
	// fails for any reason.
	Charge(ctx context.Context, userID primitive.ObjectID, action domain.AIAction, cost int64, call func(ctx context.Context) error) error
	// ChargePartial is Charge for calls that consume only part of what was
	// debited. Whatever call reports as unused is credited back, whether or
	// not it also returns an error.
	ChargePartial(ctx context.Context, userID primitive.ObjectID, action domain.AIAction, cost int64, call func(ctx context.Context) (used int64, err error)) error
}

type ledgerService struct {
	creditRepo repository.CreditRepository
	exempt     map[primitive.ObjectID]struct{}
	logger     *slog.Logger
	now        func() time.Time
}

// NewLedgerService creates a ledger. exemptUserIDs are hex object IDs of
// accounts that are never charged; invalid IDs are logged and ignored.
func NewLedgerService(creditRepo repository.CreditRepository, exemptUserIDs []string, logger *slog.Logger) LedgerService {
	exempt := make(map[primitive.ObjectID]struct{}, len(exemptUserIDs))
	for _, hex := range exemptUserIDs {
		id, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			logger.Warn("Ignoring invalid exempt user id", "id", hex, "error", err)
			continue
		}
		exempt[id] = struct{}{}
	}
	return &ledgerService{
		creditRepo: creditRepo,
		exempt:     exempt,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *ledgerService) IsExempt(userID primitive.ObjectID) bool {
	_, ok := s.exempt[userID]
	return ok
}

func (s *ledgerService) Balance(ctx context.Context, userID primitive.ObjectID) (*domain.CreditAccount, error) {
	account, err := s.creditRepo.GetAccount(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &domain.CreditAccount{UserID: userID}, nil
	}
	return account, err
}

func (s *ledgerService) Entries(ctx context.Context, userID primitive.ObjectID, limit int64) ([]domain.LedgerEntry, error) {
	return s.creditRepo.ListEntries(ctx, userID, limit)
}

// Debit never leaves the balance negative: the check and the decrement are
// one step in the repository.
func (s *ledgerService) Debit(ctx context.Context, userID primitive.ObjectID, amount int64, op Operation) (*domain.CreditAccount, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if s.IsExempt(userID) {
		return s.recordExempt(ctx, userID, domain.LedgerDebit, amount, op)
	}

	account, err := s.creditRepo.Debit(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			available := int64(0)
			if current, getErr := s.Balance(ctx, userID); getErr == nil {
				available = current.Balance
			}
			return nil, &InsufficientBalanceError{UserID: userID, Available: available, Requested: amount}
		}
		return nil, err
	}
	s.journal(ctx, userID, domain.LedgerDebit, amount, account.Balance, op, false)
	return account, nil
}

func (s *ledgerService) Credit(ctx context.Context, userID primitive.ObjectID, amount int64, op Operation) (*domain.CreditAccount, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if s.IsExempt(userID) && op.Reason == domain.ReasonRefund {
		// Exempt debits never took anything, so there is nothing to give back.
		return s.recordExempt(ctx, userID, domain.LedgerCredit, amount, op)
	}

	account, err := s.creditRepo.Credit(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	s.journal(ctx, userID, domain.LedgerCredit, amount, account.Balance, op, false)
	return account, nil
}

func (s *ledgerService) Grant(ctx context.Context, userID primitive.ObjectID, amount int64, reason domain.LedgerReason) (*domain.CreditAccount, error) {
	if reason == "" {
		reason = domain.ReasonGrant
	}
	return s.Credit(ctx, userID, amount, Operation{Reason: reason})
}

func (s *ledgerService) Charge(ctx context.Context, userID primitive.ObjectID, action domain.AIAction, cost int64, call func(ctx context.Context) error) error {
	return s.ChargePartial(ctx, userID, action, cost, func(ctx context.Context) (int64, error) {
		if err := call(ctx); err != nil {
			return 0, err
		}
		return cost, nil
	})
}

func (s *ledgerService) ChargePartial(ctx context.Context, userID primitive.ObjectID, action domain.AIAction, cost int64, call func(ctx context.Context) (int64, error)) error {
	if cost == 0 {
		// Free actions skip the ledger entirely.
		_, err := call(ctx)
		return err
	}

	opID := uuid.NewString()
	if _, err := s.Debit(ctx, userID, cost, Operation{Reason: domain.ReasonAIAction, Action: action, ID: opID}); err != nil {
		return err
	}

	returned := false
	defer func() {
		if !returned {
			// call panicked; nothing was delivered.
			_ = s.refund(ctx, userID, action, cost, opID)
		}
	}()
	used, callErr := call(ctx)
	returned = true

	if used < 0 {
		used = 0
	}
	if used > cost {
		used = cost
	}
	unused := cost - used
	if unused == 0 {
		return callErr
	}
	if err := s.refund(ctx, userID, action, unused, opID); err != nil {
		return errors.Join(fmt.Errorf("%w: %v", ErrRefundFailed, err), callErr)
	}
	return callErr
}

// refund credits back an unused debit. It outlives cancellation of ctx.
func (s *ledgerService) refund(ctx context.Context, userID primitive.ObjectID, action domain.AIAction, amount int64, opID string) error {
	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()
	if _, err := s.Credit(refundCtx, userID, amount, Operation{Reason: domain.ReasonRefund, Action: action, ID: opID}); err != nil {
		s.logger.ErrorContext(ctx, "Refund failed",
			"user_id", userID.Hex(), "action", action, "amount", amount, "operation_id", opID, "error", err)
		return err
	}
	s.logger.InfoContext(ctx, "Refunded AI action",
		"user_id", userID.Hex(), "action", action, "amount", amount, "operation_id", opID)
	return nil
}

func (s *ledgerService) recordExempt(ctx context.Context, userID primitive.ObjectID, kind domain.LedgerKind, amount int64, op Operation) (*domain.CreditAccount, error) {
	account, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.journal(ctx, userID, kind, amount, account.Balance, op, true)
	return account, nil
}

// journal appends an audit entry. The balance is the source of truth, so a
// failed append is logged rather than undoing the balance change.
func (s *ledgerService) journal(ctx context.Context, userID primitive.ObjectID, kind domain.LedgerKind, amount, balanceAfter int64, op Operation, exempt bool) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	entry := &domain.LedgerEntry{
		UserID:       userID,
		Kind:         kind,
		Reason:       op.Reason,
		Action:       op.Action,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		OperationID:  op.ID,
		Exempt:       exempt,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.creditRepo.AppendEntry(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "Failed to append ledger entry",
			"user_id", userID.Hex(), "kind", kind, "operation_id", op.ID, "error", err)
	}
}
