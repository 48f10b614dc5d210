package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CreditAccount holds a user's AI credit balance. The balance never commits
// below zero; accounts are created on first grant and never deleted.
type CreditAccount struct {
	UserID    primitive.ObjectID `bson:"_id" json:"userId"`
	Balance   int64              `bson:"balance" json:"balance"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// LedgerKind distinguishes debits from credits in the journal.
type LedgerKind string

const (
	LedgerDebit  LedgerKind = "debit"
	LedgerCredit LedgerKind = "credit"
)

// LedgerReason is the business reason recorded with a ledger operation.
type LedgerReason string

const (
	ReasonSignupBonus LedgerReason = "signup_bonus"
	ReasonGrant       LedgerReason = "grant"
	ReasonRefund      LedgerReason = "refund"
	ReasonAIAction    LedgerReason = "ai_action"
)

// LedgerEntry is an audit record of one ledger operation. Exempt entries are
// attempts by privileged accounts that did not touch the balance.
type LedgerEntry struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID `bson:"userId" json:"userId"`
	Kind         LedgerKind         `bson:"kind" json:"kind"`
	Reason       LedgerReason       `bson:"reason" json:"reason"`
	Action       AIAction           `bson:"action,omitempty" json:"action,omitempty"`
	Amount       int64              `bson:"amount" json:"amount"`
	BalanceAfter int64              `bson:"balanceAfter" json:"balanceAfter"`
	OperationID  string             `bson:"operationId" json:"operationId"`
	Exempt       bool               `bson:"exempt" json:"exempt"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
}

// AIAction is a paid AI-assisted operation.
type AIAction string

const (
	ActionChat         AIAction = "chat"
	ActionWorkout      AIAction = "workout"
	ActionProgram      AIAction = "program"
	ActionFormCheck    AIAction = "form_check"
	ActionGroupWorkout AIAction = "group_workout"
)

// FormCheckTier selects the depth of a form-check analysis; deeper tiers cost more.
type FormCheckTier string

const (
	FormCheckBasic    FormCheckTier = "basic"
	FormCheckStandard FormCheckTier = "standard"
	FormCheckDetailed FormCheckTier = "detailed"
)

// CostTable is the price in credits of each AI action.
type CostTable struct {
	Chat                   int64
	Workout                int64
	Program                int64
	FormCheck              map[FormCheckTier]int64
	GroupWorkoutPerAthlete int64
}

// DefaultCosts are the standard prices.
func DefaultCosts() CostTable {
	return CostTable{
		Chat:    1,
		Workout: 5,
		Program: 10,
		FormCheck: map[FormCheckTier]int64{
			FormCheckBasic:    10,
			FormCheckStandard: 15,
			FormCheckDetailed: 25,
		},
		GroupWorkoutPerAthlete: 5,
	}
}
