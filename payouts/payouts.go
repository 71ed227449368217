package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	log "github.com/sirupsen/logrus"

	"assetrewards/notifications"
	"assetrewards/rewards"
	"assetrewards/storage"
	"assetrewards/util"
)

// Ledger is the read side of the chain the rewards are paid on
type Ledger interface {
	CurrentHeight(ctx context.Context) (int, error)
	OwnershipAt(ctx context.Context, asset string, height int) (Snapshot, error)
}

type Notifier interface {
	SendNotification(message string, category notifications.Category)
}

type PayoutsHandler struct {
	constants     *util.NetworkConstants
	requests      *rewards.RequestStore
	payouts       *PayoutStore
	settler       *Settler
	ledger        Ledger
	notifier      Notifier
	metrics       *Metrics
	locks         *util.KeyedMutex
	account       string
	autoCalculate bool
}

type PayoutsHandlerArgs struct {
	Storage       *storage.Storage
	Constants     *util.NetworkConstants
	Ledger        Ledger
	Transferer    Transferer
	Balances      BalanceSource // Optional; enables the native balance pre-check
	Notifier      Notifier      // Optional
	Metrics       *Metrics      // Optional
	BatchSize     int
	Account       string // Default paying account
	AutoCalculate bool
}

func NewPayoutsHandler(args PayoutsHandlerArgs) (*PayoutsHandler, error) {

	if args.Storage == nil || args.Constants == nil || args.Ledger == nil || args.Transferer == nil {
		return nil, errors.New("Payouts handler requires storage, network constants, ledger and transferer")
	}

	payoutStore := NewPayoutStore(args.Storage)

	opts := []SettlerOption{
		WithNativeSymbol(args.Constants.NativeSymbol),
		WithBatchSize(args.BatchSize),
		WithMetrics(args.Metrics),
		WithAddressValidator(func(addr string) bool {
			return util.ValidateAddress(addr, args.Constants)
		}),
	}
	if args.Balances != nil {
		opts = append(opts, WithBalanceSource(args.Balances))
	}

	return &PayoutsHandler{
		constants:     args.Constants,
		requests:      rewards.NewRequestStore(args.Storage),
		payouts:       payoutStore,
		settler:       NewSettler(payoutStore, args.Transferer, opts...),
		ledger:        args.Ledger,
		notifier:      args.Notifier,
		metrics:       args.Metrics,
		locks:         util.NewKeyedMutex(),
		account:       args.Account,
		autoCalculate: args.AutoCalculate,
	}, nil
}

type ScheduleInput struct {
	Account            string          `json:"account"`
	Amount             decimal.Decimal `json:"total_amount"`
	FundingAsset       string          `json:"funding_asset"`
	TargetAsset        string          `json:"target_asset"`
	ExceptionAddresses []string        `json:"exception_addresses"`
}

// ScheduleReward validates and stores a new reward request. Its snapshot is
// taken FutureHeightOffset blocks past the current tip.
func (p *PayoutsHandler) ScheduleReward(ctx context.Context, in ScheduleInput) (*rewards.RewardRequest, error) {

	amount, err := util.AmountFromDecimal(in.Amount)
	if err != nil {
		return nil, errors.Wrap(rewards.ErrValidation, err.Error())
	}

	tip, err := p.currentHeight(ctx)
	if err != nil {
		return nil, err
	}

	account := in.Account
	if account == "" {
		account = p.account
	}

	req := &rewards.RewardRequest{
		ID:                 rewards.NewRewardID(),
		Account:            account,
		PayoutHeight:       tip + p.constants.FutureHeightOffset,
		TotalAmount:        amount,
		FundingAsset:       util.StripQuote(in.FundingAsset),
		TargetAsset:        util.StripQuote(in.TargetAsset),
		ExceptionAddresses: dedupe(in.ExceptionAddresses),
		CreatedAt:          time.Now().UTC(),
	}

	if err := req.Validate(p.constants); err != nil {
		return nil, err
	}

	if err := p.requests.Schedule(req); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"RewardID": req.ID, "PayoutHeight": req.PayoutHeight, "Target": req.TargetAsset,
		"Funding": req.FundingAsset, "Amount": util.FormatAmount(req.TotalAmount),
	}).Info("Scheduled reward")

	p.notify(fmt.Sprintf("Reward %s scheduled: %s %s to %s holders at height %d",
		req.ID, util.FormatAmount(req.TotalAmount), req.FundingAsset, req.TargetAsset, req.PayoutHeight),
		notifications.REWARDS)

	return req, nil
}

func (p *PayoutsHandler) GetReward(id string) (*rewards.RewardRequest, error) {
	return p.requests.Get(id)
}

func (p *PayoutsHandler) ListRewards() ([]*rewards.RewardRequest, error) {
	return p.requests.List()
}

// CancelReward removes a request unless payments against it have completed
func (p *PayoutsHandler) CancelReward(id string) error {

	unlock := p.locks.Lock(id)
	defer unlock()

	if _, err := p.requests.Get(id); err != nil {
		return err
	}

	record, err := p.payouts.Get(id)
	switch {
	case err == nil:
		if record.HasCompleted() {
			return errors.Wrapf(rewards.ErrConflict, "reward %s has completed payments", id)
		}
	case !errors.Is(err, rewards.ErrNotFound):
		return err
	}

	if err := p.requests.Remove(id); err != nil {
		return err
	}

	log.WithField("RewardID", id).Info("Cancelled reward")

	return nil
}

// CalculatePayouts computes and stores the payment set of a due request.
// Recomputing an existing record is allowed only when it yields the same
// allocation; the stored record is then returned unchanged.
func (p *PayoutsHandler) CalculatePayouts(ctx context.Context, id string) (*PayoutRecord, error) {

	unlock := p.locks.Lock(id)
	record, created, err := p.calculate(ctx, id)
	unlock()

	if err != nil {
		return nil, err
	}

	if created {
		p.notify(fmt.Sprintf("Payouts for reward %s calculated: %d payments, %s %s per unit",
			id, len(record.Payments), util.FormatAmount(record.PerUnitAmount), record.FundingAsset),
			notifications.PAYOUTS)
	}

	return record, nil
}

// calculate must be called with the id lock held
func (p *PayoutsHandler) calculate(ctx context.Context, id string) (*PayoutRecord, bool, error) {

	req, err := p.requests.Get(id)
	if err != nil {
		return nil, false, err
	}

	tip, err := p.currentHeight(ctx)
	if err != nil {
		return nil, false, err
	}

	if tip < req.PayoutHeight {
		return nil, false, errors.Wrapf(rewards.ErrNotReady, "reward %s pays at %d, current height %d",
			id, req.PayoutHeight, tip)
	}

	if err := req.CheckFundingSource(); err != nil {
		return nil, false, err
	}

	snapshot, err := p.ledger.OwnershipAt(ctx, req.TargetAsset, req.PayoutHeight)
	if err != nil {
		return nil, false, errors.Wrap(rewards.ErrLedger, err.Error())
	}

	record, err := Calculate(req, snapshot)
	if err != nil {
		return nil, false, err
	}

	existing, err := p.payouts.Get(id)
	switch {
	case err == nil:
		same, err := p.sameAllocation(existing, record)
		return same, false, err
	case !errors.Is(err, rewards.ErrNotFound):
		return nil, false, err
	}

	if err := p.payouts.Create(record); err != nil {
		return nil, false, err
	}

	p.metrics.observeCalculated()

	log.WithFields(log.Fields{
		"RewardID": id, "Payments": len(record.Payments), "PerUnit": record.PerUnitAmount,
		"Remainder": record.Remainder(),
	}).Info("Calculated payouts")

	return record, true, nil
}

func (p *PayoutsHandler) sameAllocation(existing, computed *PayoutRecord) (*PayoutRecord, error) {

	have, err := existing.Digest()
	if err != nil {
		return nil, err
	}

	want, err := computed.Digest()
	if err != nil {
		return nil, err
	}

	if have != want {
		return nil, errors.Wrapf(rewards.ErrConflict, "payouts for reward %s already exist with a different allocation",
			existing.RewardID)
	}

	return existing, nil
}

func (p *PayoutsHandler) GetPayouts(id string) (*PayoutRecord, error) {
	return p.payouts.Get(id)
}

func (p *PayoutsHandler) ListPayouts() ([]*PayoutRecord, error) {
	return p.payouts.List()
}

func (p *PayoutsHandler) CancelPayouts(id string) error {

	unlock := p.locks.Lock(id)
	defer unlock()

	if err := p.payouts.Remove(id); err != nil {
		return err
	}

	log.WithField("RewardID", id).Info("Cancelled payouts")

	return nil
}

// ExecutePayouts runs settlement for one reward. Runs for the same reward
// are serialised; different rewards settle concurrently. The lock is
// released before the outcome is announced.
func (p *PayoutsHandler) ExecutePayouts(ctx context.Context, id string) (*SettlementResult, error) {

	unlock := p.locks.Lock(id)
	result, err := p.settler.Execute(ctx, id)
	unlock()

	if result == nil {
		return nil, err
	}

	var paid, failed int
	for _, b := range result.Batches {
		paid += b.ActualCount
		if b.Result == BATCH_FAILED {
			failed++
		}
	}

	log.WithFields(log.Fields{
		"RewardID": id, "Batches": len(result.Batches), "Paid": paid, "FailedBatches": failed,
		"Completed": result.Completed, "Update": result.RecordUpdate,
	}).Info("Settlement run finished")

	if result.Progress {
		p.notify(fmt.Sprintf("Reward %s: %d payments sent, %d batches failed, completed: %t",
			id, paid, failed, result.Completed), notifications.SETTLEMENT)
	}

	return result, err
}

// HandleNewHeight is invoked once for every new ledger height
func (p *PayoutsHandler) HandleNewHeight(ctx context.Context, height int) {

	pending, err := p.requests.HasPending(height)
	if err != nil {
		log.WithError(err).WithField("Height", height).Error("Unable to check pending rewards")
		return
	}

	if !pending {
		return
	}

	log.WithField("Height", height).Info("Reward payout height reached")

	if !p.autoCalculate {
		p.notify(fmt.Sprintf("Rewards are ready to calculate at height %d", height), notifications.PAYOUTS)
		return
	}

	due, err := p.requests.PayableAt(height, "")
	if err != nil {
		log.WithError(err).WithField("Height", height).Error("Unable to list due rewards")
		return
	}

	for _, req := range due {
		if _, err := p.CalculatePayouts(ctx, req.ID); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"RewardID": req.ID, "Height": height,
			}).Error("Unable to calculate payouts")
		}
	}
}

func (p *PayoutsHandler) currentHeight(ctx context.Context) (int, error) {

	tip, err := p.ledger.CurrentHeight(ctx)
	if err != nil {
		return 0, errors.Wrap(rewards.ErrLedger, err.Error())
	}

	return tip, nil
}

func (p *PayoutsHandler) notify(msg string, category notifications.Category) {
	if p.notifier != nil {
		p.notifier.SendNotification(msg, category)
	}
}

func dedupe(list []string) []string {

	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))

	for _, item := range list {
		item = util.StripQuote(item)
		if _, ok := seen[item]; ok || item == "" {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}

	return out
}
