package payouts

import (
	"encoding/hex"
	"fmt"
	"strings"

	"assetrewards/util"
)

// Holder is one row of an ownership snapshot
type Holder struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"` // Base units of the snapshot asset
}

// Snapshot is the set of holders of Asset as of Height
type Snapshot struct {
	Asset   string
	Height  int
	Holders []Holder
}

type Payment struct {
	Address   string `json:"a"`
	Amount    int64  `json:"m"`           // Base units of the funding asset; immutable once computed
	Completed bool   `json:"c"`           // Never reset once set
	Skipped   bool   `json:"s,omitempty"` // Completed without transfer; destination failed validation
	TxID      string `json:"t,omitempty"` // Transfer that completed this payment
}

// PayoutRecord is the computed payment set for one reward request
type PayoutRecord struct {
	RewardID       string    `json:"id"`
	Account        string    `json:"w"`
	TargetAsset    string    `json:"t"`
	FundingAsset   string    `json:"f"`
	FundingSources []string  `json:"fs,omitempty"` // Addresses funds must come from; set for self-funded rewards
	PayoutHeight   int       `json:"h"`
	TotalAmount    int64     `json:"a"`
	TotalUnits     int64     `json:"u"`
	PerUnitAmount  int64     `json:"pu"`
	Payments       []Payment `json:"p"` // Sorted by address, unique
}

// Clone returns a deep copy
func (r *PayoutRecord) Clone() *PayoutRecord {

	c := *r
	c.FundingSources = append([]string(nil), r.FundingSources...)
	c.Payments = append([]Payment(nil), r.Payments...)

	return &c
}

// Distributed is the sum of all computed payments
func (r *PayoutRecord) Distributed() int64 {

	var sum int64
	for _, p := range r.Payments {
		sum += p.Amount
	}

	return sum
}

// Remainder is the part of the total that truncation left unassigned
func (r *PayoutRecord) Remainder() int64 {
	return r.TotalAmount - r.Distributed()
}

func (r *PayoutRecord) CompletedCount() int {

	var n int
	for _, p := range r.Payments {
		if p.Completed {
			n++
		}
	}

	return n
}

func (r *PayoutRecord) HasCompleted() bool {
	return r.CompletedCount() > 0
}

// pendingIndexes returns, in stored order, the payments still owed
func (r *PayoutRecord) pendingIndexes() []int {

	var idx []int
	for i, p := range r.Payments {
		if !p.Completed && p.Amount > 0 {
			idx = append(idx, i)
		}
	}

	return idx
}

func (r *PayoutRecord) PendingCount() int {
	return len(r.pendingIndexes())
}

// Status derives the lifecycle state from the payment flags
func (r *PayoutRecord) Status() string {

	switch {
	case r.PendingCount() == 0:
		return STATUS_COMPLETED
	case r.HasCompleted():
		return STATUS_PARTIAL
	default:
		return STATUS_COMPUTED
	}
}

// Digest is a blake2b hash over the allocation (not its completion state),
// so two computations from the same request and snapshot compare equal.
func (r *PayoutRecord) Digest() (string, error) {

	var sb strings.Builder

	fmt.Fprintf(&sb, "%s|%s|%s|%d|%d|%d|%d\n",
		r.RewardID, r.TargetAsset, r.FundingAsset, r.PayoutHeight, r.TotalAmount, r.TotalUnits, r.PerUnitAmount)

	for _, p := range r.Payments {
		fmt.Fprintf(&sb, "%s:%d\n", p.Address, p.Amount)
	}

	hash, err := util.CryptoGenericHash([]byte(sb.String()), nil)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(hash), nil
}

const (
	STATUS_COMPUTED  = "computed"
	STATUS_PARTIAL   = "partial"
	STATUS_COMPLETED = "completed"
)
