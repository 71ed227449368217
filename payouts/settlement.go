package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"assetrewards/rewards"
	"assetrewards/util"
)

const (
	BATCH_SUCCESS = "success"
	BATCH_FAILED  = "failed"

	UPDATE_SUCCEEDED = "succeeded"
	UPDATE_FAILED    = "failed"
	UPDATE_SKIPPED   = "skipped"
)

// Transfer is one destination within a batch
type Transfer struct {
	Address string
	Amount  int64
}

// TransferRequest is a single all-or-nothing multi-destination transfer
type TransferRequest struct {
	RewardID        string
	Account         string
	FundingAsset    string
	Native          bool
	SourceAddresses []string // Restrict inputs to these addresses; empty means any
	Transfers       []Transfer
}

func (t TransferRequest) Total() int64 {

	var sum int64
	for _, d := range t.Transfers {
		sum += d.Amount
	}

	return sum
}

// Transferer moves funds. A nil error means every destination in the
// request was paid under the returned transfer id.
type Transferer interface {
	Transfer(ctx context.Context, req TransferRequest) (string, error)
}

// BalanceSource reports the spendable native balance of an account
type BalanceSource interface {
	NativeBalance(ctx context.Context, account string) (int64, error)
}

type BatchResult struct {
	Batch         int    `json:"batch"`
	TransferID    string `json:"transaction_id,omitempty"`
	Result        string `json:"result"`
	Error         string `json:"error,omitempty"`
	ExpectedCount int    `json:"expected_count"`
	ActualCount   int    `json:"actual_count"`
	SkippedCount  int    `json:"skipped_count,omitempty"`
}

type SettlementResult struct {
	RewardID     string        `json:"reward_id"`
	Batches      []BatchResult `json:"batch_results"`
	Progress     bool          `json:"progress"`
	Completed    bool          `json:"completed"`
	RecordUpdate string        `json:"payout_db_update"`
}

type SettlerOption func(*Settler)

// WithBatchSize lowers the number of payments per transfer. Values outside
// 1..MAX_PAYMENTS_PER_BATCH are ignored.
func WithBatchSize(n int) SettlerOption {
	return func(s *Settler) {
		if n > 0 && n <= util.MAX_PAYMENTS_PER_BATCH {
			s.batchSize = n
		}
	}
}

// WithAddressValidator sets the destination check. Payments to addresses
// failing it are completed without a transfer.
func WithAddressValidator(fn func(string) bool) SettlerOption {
	return func(s *Settler) {
		s.validAddress = fn
	}
}

// WithNativeSymbol marks rewards funded in symbol as native currency
// transfers. Without it every reward is settled as an asset transfer.
func WithNativeSymbol(symbol string) SettlerOption {
	return func(s *Settler) {
		s.nativeSymbol = symbol
	}
}

// WithBalanceSource enables the pre-transfer balance check for native
// funded rewards
func WithBalanceSource(b BalanceSource) SettlerOption {
	return func(s *Settler) {
		s.balances = b
	}
}

func WithMetrics(m *Metrics) SettlerOption {
	return func(s *Settler) {
		s.metrics = m
	}
}

// Settler drives a payout record to completion through bounded transfers.
// It holds no per-record state; callers serialise runs for the same reward.
type Settler struct {
	store        *PayoutStore
	transferer   Transferer
	balances     BalanceSource
	nativeSymbol string
	validAddress func(string) bool
	batchSize    int
	metrics      *Metrics
}

func NewSettler(store *PayoutStore, t Transferer, opts ...SettlerOption) *Settler {

	s := &Settler{
		store:        store,
		transferer:   t,
		validAddress: func(string) bool { return true },
		batchSize:    util.MAX_PAYMENTS_PER_BATCH,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Execute attempts every pending payment of the reward's payout record. Each
// batch either fully succeeds or fully fails; failed batches stay pending for
// a later run. The record is written back only when some payment completed.
//
// If transfers succeed but the write-back fails, the result is returned
// alongside the StorageError so the caller can surface the transfer ids.
func (s *Settler) Execute(ctx context.Context, rewardID string) (*SettlementResult, error) {

	started := time.Now()
	defer s.metrics.observeSettle(started)

	record, err := s.store.Get(rewardID)
	if err != nil {
		return nil, err
	}

	result := &SettlementResult{
		RewardID:     rewardID,
		Batches:      make([]BatchResult, 0),
		RecordUpdate: UPDATE_SKIPPED,
	}

	pending := record.pendingIndexes()

	for batchNum, start := 0, 0; start < len(pending); batchNum, start = batchNum+1, start+s.batchSize {

		if err := ctx.Err(); err != nil {
			log.WithError(err).WithField("RewardID", rewardID).Warn("Settlement interrupted")
			break
		}

		end := start + s.batchSize
		if end > len(pending) {
			end = len(pending)
		}

		br := s.settleBatch(ctx, record, batchNum, pending[start:end])
		if br.ActualCount > 0 || br.SkippedCount > 0 {
			result.Progress = true
		}

		result.Batches = append(result.Batches, br)
	}

	result.Completed = record.PendingCount() == 0

	if !result.Progress {
		return result, nil
	}

	if err := s.store.Update(record); err != nil {

		result.RecordUpdate = UPDATE_FAILED

		var txids []string
		for _, b := range result.Batches {
			if b.TransferID != "" {
				txids = append(txids, b.TransferID)
			}
		}

		log.WithError(err).WithFields(log.Fields{
			"RewardID": rewardID, "TransferIDs": txids,
		}).Error("Transfers submitted but payout record could not be updated")

		return result, err
	}

	result.RecordUpdate = UPDATE_SUCCEEDED

	return result, nil
}

// settleBatch mutates record.Payments at idx in memory
func (s *Settler) settleBatch(ctx context.Context, record *PayoutRecord, batchNum int, idx []int) BatchResult {

	br := BatchResult{
		Batch:         batchNum,
		Result:        BATCH_FAILED,
		ExpectedCount: len(idx),
	}

	treq := TransferRequest{
		RewardID:        record.RewardID,
		Account:         record.Account,
		FundingAsset:    record.FundingAsset,
		Native:          s.nativeSymbol != "" && record.FundingAsset == s.nativeSymbol,
		SourceAddresses: record.FundingSources,
	}

	var toPay []int

	for _, i := range idx {
		p := &record.Payments[i]

		if !s.validAddress(p.Address) {
			log.WithFields(log.Fields{
				"RewardID": record.RewardID, "Address": p.Address, "Amount": p.Amount,
			}).Warn("Invalid destination; marking payment completed without transfer")

			p.Completed = true
			p.Skipped = true
			br.SkippedCount++

			continue
		}

		toPay = append(toPay, i)
		treq.Transfers = append(treq.Transfers, Transfer{Address: p.Address, Amount: p.Amount})
	}

	s.metrics.observePayments("skipped", br.SkippedCount)

	if len(toPay) == 0 {
		br.Result = BATCH_SUCCESS
		s.metrics.observeBatch("empty")
		return br
	}

	if err := s.checkBalance(ctx, treq); err != nil {
		br.Error = err.Error()
		s.metrics.observeBatch(BATCH_FAILED)
		return br
	}

	// A transfer already under way is awaited even if ctx is cancelled
	txid, err := s.transferer.Transfer(context.WithoutCancel(ctx), treq)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"RewardID": record.RewardID, "Batch": batchNum, "Payments": len(toPay),
		}).Error("Batch transfer failed")

		br.Error = err.Error()
		s.metrics.observeBatch(BATCH_FAILED)

		return br
	}

	for _, i := range toPay {
		record.Payments[i].Completed = true
		record.Payments[i].TxID = txid
	}

	br.TransferID = txid
	br.Result = BATCH_SUCCESS
	br.ActualCount = len(toPay)

	log.WithFields(log.Fields{
		"RewardID": record.RewardID, "Batch": batchNum, "TxID": txid, "Payments": len(toPay),
	}).Info("Batch transfer submitted")

	s.metrics.observeBatch(BATCH_SUCCESS)
	s.metrics.observePayments("transferred", len(toPay))

	return br
}

func (s *Settler) checkBalance(ctx context.Context, treq TransferRequest) error {

	if !treq.Native || s.balances == nil {
		return nil
	}

	balance, err := s.balances.NativeBalance(ctx, treq.Account)
	if err != nil {
		return errors.Wrap(rewards.ErrLedger, err.Error())
	}

	if total := treq.Total(); total > balance {
		return fmt.Errorf("insufficient funds: batch needs %s %s, wallet holds %s",
			util.FormatAmount(total), treq.FundingAsset, util.FormatAmount(balance))
	}

	return nil
}
