package rewards

import (
	"time"

	"github.com/google/uuid"

	"assetrewards/util"
)

// RewardRequest is a scheduled payout of TotalAmount units of FundingAsset to
// the holders of TargetAsset as of PayoutHeight.
type RewardRequest struct {
	ID                 string    `json:"id"`
	Account            string    `json:"w"` // Wallet/account paying the reward
	PayoutHeight       int       `json:"h"` // Height of the ownership snapshot
	TotalAmount        int64     `json:"a"` // Base units of FundingAsset
	FundingAsset       string    `json:"f"`
	TargetAsset        string    `json:"t"`
	ExceptionAddresses []string  `json:"x"`
	CreatedAt          time.Time `json:"c"`
}

func NewRewardID() string {
	return uuid.New().String()
}

// IsNativeFunded reports whether the reward is paid in the ledger's native currency
func (r *RewardRequest) IsNativeFunded(nc *util.NetworkConstants) bool {
	return r.FundingAsset == nc.NativeSymbol
}

// IsSelfFunded reports whether the reward pays holders in their own asset
func (r *RewardRequest) IsSelfFunded() bool {
	return r.FundingAsset == r.TargetAsset
}

func (r *RewardRequest) IsException(address string) bool {
	for _, x := range r.ExceptionAddresses {
		if x == address {
			return true
		}
	}
	return false
}

// Validate enforces the creation-time invariants of a request. It does not
// touch storage or the ledger.
func (r *RewardRequest) Validate(nc *util.NetworkConstants) error {

	if _, err := uuid.Parse(r.ID); err != nil {
		return validationErrorf("Malformed reward id '%s'", r.ID)
	}

	if r.TotalAmount <= 0 {
		return validationErrorf("Invalid amount to reward")
	}

	if r.PayoutHeight < 0 {
		return validationErrorf("Invalid payout height %d", r.PayoutHeight)
	}

	if r.IsNativeFunded(nc) {
		if r.TotalAmount > nc.MaxMoney {
			return validationErrorf("Amount out of range: %d", r.TotalAmount)
		}
	} else if err := checkAssetKind("funding_asset", r.FundingAsset); err != nil {
		return err
	}

	if r.TargetAsset == nc.NativeSymbol {
		return validationErrorf("Invalid target_asset: %s cannot be a reward target", nc.NativeSymbol)
	}

	if err := checkAssetKind("target_asset", r.TargetAsset); err != nil {
		return err
	}

	for _, addr := range r.ExceptionAddresses {
		if !util.ValidateAddress(addr, nc) {
			return validationErrorf("Invalid exception address '%s'", addr)
		}
	}

	if err := r.CheckFundingSource(); err != nil {
		return err
	}

	return nil
}

// CheckFundingSource enforces that a self-funded reward names the addresses
// paying it. Those exception addresses are excluded from the payout and are
// the only permitted source of the funds.
func (r *RewardRequest) CheckFundingSource() error {

	if r.IsSelfFunded() && len(r.ExceptionAddresses) == 0 {
		return validationErrorf("Rewarding %s holders with %s requires exception addresses as the funding source",
			r.TargetAsset, r.FundingAsset)
	}

	return nil
}

func checkAssetKind(field, name string) error {

	assetType := util.ParseAssetType(name)
	if assetType == util.ASSET_INVALID {
		return validationErrorf("Invalid %s: Please use a valid %s", field, field)
	}

	if !assetType.Transferable() {
		return validationErrorf("Invalid %s: %s assets are not allowed for rewards", field, assetType)
	}

	return nil
}
