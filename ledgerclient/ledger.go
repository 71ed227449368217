package ledgerclient

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"assetrewards/payouts"
	"assetrewards/util"
)

type snapshotOwner struct {
	Address     string          `json:"address"`
	AmountOwned decimal.Decimal `json:"amount_owned"`
}

type snapshotResult struct {
	Name   string          `json:"name"`
	Height int             `json:"height"`
	Owners []snapshotOwner `json:"owners"`
}

type assetData struct {
	Name  string `json:"name"`
	Units int32  `json:"units"`
}

func (c *LedgerClient) CurrentHeight(ctx context.Context) (int, error) {

	var height int
	if err := c.call(ctx, "", "getblockcount", &height); err != nil {
		return 0, err
	}

	return height, nil
}

// AssetUnits returns the number of decimal places asset is divisible to
func (c *LedgerClient) AssetUnits(ctx context.Context, asset string) (int32, error) {

	var data assetData
	if err := c.call(ctx, "", "getassetdata", &data, asset); err != nil {
		return 0, err
	}

	if data.Units < 0 || data.Units > util.AMOUNT_DECIMALS {
		return 0, errors.Errorf("Asset %s reports invalid units %d", asset, data.Units)
	}

	return data.Units, nil
}

// OwnershipAt fetches the holders of asset as of height. Balances are
// converted to the asset's smallest units using its own divisibility, so one
// whole indivisible token counts as one unit.
func (c *LedgerClient) OwnershipAt(ctx context.Context, asset string, height int) (payouts.Snapshot, error) {

	places, err := c.AssetUnits(ctx, asset)
	if err != nil {
		return payouts.Snapshot{}, err
	}

	var res snapshotResult
	if err := c.call(ctx, "", "getsnapshot", &res, asset, height); err != nil {
		return payouts.Snapshot{}, err
	}

	snapshot := payouts.Snapshot{
		Asset:   asset,
		Height:  height,
		Holders: make([]payouts.Holder, 0, len(res.Owners)),
	}

	for _, o := range res.Owners {

		units, err := util.UnitsFromDecimal(o.AmountOwned, places)
		if err != nil {
			return payouts.Snapshot{}, errors.Wrapf(err, "Bad snapshot balance for %s", o.Address)
		}

		snapshot.Holders = append(snapshot.Holders, payouts.Holder{
			Address: o.Address,
			Balance: units,
		})
	}

	return snapshot, nil
}

// NativeBalance returns the spendable native balance of a wallet
func (c *LedgerClient) NativeBalance(ctx context.Context, account string) (int64, error) {

	var balance decimal.Decimal
	if err := c.call(ctx, account, "getbalance", &balance); err != nil {
		return 0, err
	}

	return util.AmountFromDecimal(balance)
}

// Transfer submits one multi-destination transaction. Native batches use
// sendmany; asset batches use the configured asset method with params
// (asset, {address: amount}, [source addresses]). Transfers go to the current
// endpoint only and run to completion even if ctx is cancelled.
func (c *LedgerClient) Transfer(ctx context.Context, req payouts.TransferRequest) (string, error) {

	if len(req.Transfers) == 0 {
		return "", errors.New("Empty transfer")
	}

	destinations := make(map[string]json.Number, len(req.Transfers))
	for _, t := range req.Transfers {
		if _, dup := destinations[t.Address]; dup {
			return "", errors.Errorf("Duplicate destination %s in transfer", t.Address)
		}
		destinations[t.Address] = json.Number(util.FormatAmount(t.Amount))
	}

	var txid string

	if req.Native {
		if err := c.send(ctx, req.Account, "sendmany", &txid, "", destinations); err != nil {
			return "", err
		}
		return txid, nil
	}

	sources := req.SourceAddresses
	if sources == nil {
		sources = []string{}
	}

	// Some nodes return the txids as a list
	var raw json.RawMessage
	if err := c.send(ctx, req.Account, c.assetMethod, &raw, req.FundingAsset, destinations, sources); err != nil {
		return "", err
	}

	if err := json.Unmarshal(raw, &txid); err == nil {
		return txid, nil
	}

	var txids []string
	if err := json.Unmarshal(raw, &txids); err != nil || len(txids) == 0 {
		return "", errors.Errorf("Unexpected %s result: %s", c.assetMethod, string(raw))
	}

	return txids[0], nil
}
