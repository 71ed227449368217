package payouts

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"assetrewards/rewards"
)

// Calculate allocates req.TotalAmount across the eligible holders in snapshot,
// proportional to units held. Every held unit receives the same integer share,
// floor(total / units); whatever truncation leaves over is not assigned.
//
// The result is deterministic for a given request and snapshot: payments are
// keyed and ordered by address, and duplicate snapshot rows are merged.
func Calculate(req *rewards.RewardRequest, snapshot Snapshot) (*PayoutRecord, error) {

	if req == nil {
		return nil, errors.Wrap(rewards.ErrValidation, "nil reward request")
	}

	if req.TotalAmount <= 0 {
		return nil, errors.Wrap(rewards.ErrValidation, "Invalid amount to reward")
	}

	if snapshot.Asset != "" && snapshot.Asset != req.TargetAsset {
		return nil, errors.Wrapf(rewards.ErrValidation, "snapshot of %s cannot be used to reward %s holders",
			snapshot.Asset, req.TargetAsset)
	}

	balances := make(map[string]int64, len(snapshot.Holders))
	var totalUnits int64

	for _, h := range snapshot.Holders {

		if h.Balance < 0 {
			return nil, errors.Wrapf(rewards.ErrValidation, "negative snapshot balance for %s", h.Address)
		}

		if req.IsException(h.Address) {
			continue
		}

		if totalUnits > math.MaxInt64-h.Balance {
			return nil, errors.Wrap(rewards.ErrValidation, "snapshot units overflow")
		}

		balances[h.Address] += h.Balance
		totalUnits += h.Balance
	}

	if len(balances) == 0 || totalUnits == 0 {
		return nil, errors.Wrapf(rewards.ErrNoEligibleHolders, "%s at height %d", req.TargetAsset, req.PayoutHeight)
	}

	perUnitAmount := req.TotalAmount / totalUnits
	if perUnitAmount == 0 {
		return nil, errors.Wrapf(rewards.ErrInfeasible,
			"cannot reward %d units of %s equally with %d base units of %s",
			totalUnits, req.TargetAsset, req.TotalAmount, req.FundingAsset)
	}

	addresses := make([]string, 0, len(balances))
	for addr := range balances {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	record := &PayoutRecord{
		RewardID:      req.ID,
		Account:       req.Account,
		TargetAsset:   req.TargetAsset,
		FundingAsset:  req.FundingAsset,
		PayoutHeight:  req.PayoutHeight,
		TotalAmount:   req.TotalAmount,
		TotalUnits:    totalUnits,
		PerUnitAmount: perUnitAmount,
		Payments:      make([]Payment, 0, len(addresses)),
	}

	if req.IsSelfFunded() {
		record.FundingSources = append([]string(nil), req.ExceptionAddresses...)
	}

	// perUnitAmount * balance <= TotalAmount, so no overflow here
	for _, addr := range addresses {
		record.Payments = append(record.Payments, Payment{
			Address: addr,
			Amount:  perUnitAmount * balances[addr],
		})
	}

	return record, nil
}
