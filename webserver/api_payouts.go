package webserver

import (
	"net/http"

	"github.com/gorilla/mux"

	log "github.com/sirupsen/logrus"

	"assetrewards/payouts"
	"assetrewards/util"
)

type paymentResponse struct {
	Address   string `json:"address"`
	Amount    string `json:"amount"`
	Completed bool   `json:"completed"`
	Skipped   bool   `json:"skipped,omitempty"`
	TxID      string `json:"transaction_id,omitempty"`
}

type payoutsResponse struct {
	RewardID      string            `json:"reward_id"`
	TargetAsset   string            `json:"target_asset"`
	FundingAsset  string            `json:"funding_asset"`
	PayoutHeight  int               `json:"payout_height"`
	TotalAmount   string            `json:"total_amount"`
	PerUnitAmount string            `json:"per_unit_amount"`
	Remainder     string            `json:"remainder"`
	Status        string            `json:"status"`
	Pending       int               `json:"pending"`
	Payments      []paymentResponse `json:"payments,omitempty"`
}

func toPayoutsResponse(record *payouts.PayoutRecord, withPayments bool) payoutsResponse {

	resp := payoutsResponse{
		RewardID:      record.RewardID,
		TargetAsset:   record.TargetAsset,
		FundingAsset:  record.FundingAsset,
		PayoutHeight:  record.PayoutHeight,
		TotalAmount:   util.FormatAmount(record.TotalAmount),
		PerUnitAmount: util.FormatAmount(record.PerUnitAmount),
		Remainder:     util.FormatAmount(record.Remainder()),
		Status:        record.Status(),
		Pending:       record.PendingCount(),
	}

	if !withPayments {
		return resp
	}

	resp.Payments = make([]paymentResponse, 0, len(record.Payments))
	for _, p := range record.Payments {
		resp.Payments = append(resp.Payments, paymentResponse{
			Address:   p.Address,
			Amount:    util.FormatAmount(p.Amount),
			Completed: p.Completed,
			Skipped:   p.Skipped,
			TxID:      p.TxID,
		})
	}

	return resp
}

func (ws *WebServer) calculatePayouts(w http.ResponseWriter, r *http.Request) {

	id := mux.Vars(r)["id"]

	log.WithField("RewardID", id).Trace("API - calculatePayouts")

	record, err := ws.payoutsHandler.CalculatePayouts(r.Context(), id)
	if err != nil {
		log.WithError(err).WithField("RewardID", id).Error("API - calculatePayouts")
		apiError(err, w)
		return
	}

	apiReturnJSON(w, http.StatusOK, toPayoutsResponse(record, true))
}

func (ws *WebServer) getPayouts(w http.ResponseWriter, r *http.Request) {

	id := mux.Vars(r)["id"]

	record, err := ws.payoutsHandler.GetPayouts(id)
	if err != nil {
		apiError(err, w)
		return
	}

	apiReturnJSON(w, http.StatusOK, toPayoutsResponse(record, true))
}

// listPayouts returns summaries without the payment lists
func (ws *WebServer) listPayouts(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - listPayouts")

	all, err := ws.payoutsHandler.ListPayouts()
	if err != nil {
		apiError(err, w)
		return
	}

	out := make([]payoutsResponse, 0, len(all))
	for _, record := range all {
		out = append(out, toPayoutsResponse(record, false))
	}

	apiReturnJSON(w, http.StatusOK, map[string]interface{}{
		"payouts": out,
	})
}

func (ws *WebServer) cancelPayouts(w http.ResponseWriter, r *http.Request) {

	id := mux.Vars(r)["id"]

	if err := ws.payoutsHandler.CancelPayouts(id); err != nil {
		log.WithError(err).WithField("RewardID", id).Error("API - cancelPayouts")
		apiError(err, w)
		return
	}

	apiReturnOk(w)
}

// executePayouts reports per-batch outcomes. A storage failure after
// transfers went out still returns the batches, with a 500.
func (ws *WebServer) executePayouts(w http.ResponseWriter, r *http.Request) {

	id := mux.Vars(r)["id"]

	log.WithField("RewardID", id).Trace("API - executePayouts")

	result, err := ws.payoutsHandler.ExecutePayouts(r.Context(), id)
	if err != nil && result == nil {
		apiError(err, w)
		return
	}

	if err != nil {
		apiReturnJSON(w, statusFor(err), map[string]interface{}{
			"error":  err.Error(),
			"result": result,
		})
		return
	}

	apiReturnJSON(w, http.StatusOK, result)
}
