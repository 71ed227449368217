package webserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	log "github.com/sirupsen/logrus"

	"assetrewards/payouts"
	"assetrewards/rewards"
	"assetrewards/util"
)

// scheduleRequest accepts exception_addresses either as a JSON list or as a
// comma-delimited string
type scheduleRequest struct {
	Account            string          `json:"account"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	FundingAsset       string          `json:"funding_asset"`
	TargetAsset        string          `json:"target_asset"`
	ExceptionAddresses json.RawMessage `json:"exception_addresses"`
}

func (s scheduleRequest) exceptions() ([]string, error) {

	if len(s.ExceptionAddresses) == 0 || string(s.ExceptionAddresses) == "null" {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(s.ExceptionAddresses, &list); err == nil {
		return list, nil
	}

	var delimited string
	if err := json.Unmarshal(s.ExceptionAddresses, &delimited); err != nil {
		return nil, errors.Wrap(rewards.ErrValidation, "exception_addresses must be a list or a comma-delimited string")
	}

	return util.SplitList(delimited), nil
}

type rewardResponse struct {
	ID                 string    `json:"reward_id"`
	Account            string    `json:"account,omitempty"`
	PayoutHeight       int       `json:"payout_height"`
	TotalAmount        string    `json:"total_amount"`
	FundingAsset       string    `json:"funding_asset"`
	TargetAsset        string    `json:"target_asset"`
	ExceptionAddresses []string  `json:"exception_addresses"`
	CreatedAt          time.Time `json:"created_at"`
	Status             string    `json:"payout_status,omitempty"`
}

func toRewardResponse(req *rewards.RewardRequest) rewardResponse {
	return rewardResponse{
		ID:                 req.ID,
		Account:            req.Account,
		PayoutHeight:       req.PayoutHeight,
		TotalAmount:        util.FormatAmount(req.TotalAmount),
		FundingAsset:       req.FundingAsset,
		TargetAsset:        req.TargetAsset,
		ExceptionAddresses: append([]string{}, req.ExceptionAddresses...),
		CreatedAt:          req.CreatedAt,
	}
}

func (ws *WebServer) scheduleReward(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - scheduleReward")

	var body scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apiError(errors.Wrap(rewards.ErrValidation, "Cannot decode body for schedule: "+err.Error()), w)
		return
	}

	exceptions, err := body.exceptions()
	if err != nil {
		apiError(err, w)
		return
	}

	req, err := ws.payoutsHandler.ScheduleReward(r.Context(), payouts.ScheduleInput{
		Account:            body.Account,
		Amount:             body.TotalAmount,
		FundingAsset:       body.FundingAsset,
		TargetAsset:        body.TargetAsset,
		ExceptionAddresses: exceptions,
	})
	if err != nil {
		log.WithError(err).Error("API - scheduleReward")
		apiError(err, w)
		return
	}

	apiReturnJSON(w, http.StatusCreated, map[string]interface{}{
		"reward_id":     req.ID,
		"payout_height": req.PayoutHeight,
	})
}

func (ws *WebServer) listRewards(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - listRewards")

	all, err := ws.payoutsHandler.ListRewards()
	if err != nil {
		apiError(err, w)
		return
	}

	out := make([]rewardResponse, 0, len(all))
	for _, req := range all {
		out = append(out, toRewardResponse(req))
	}

	apiReturnJSON(w, http.StatusOK, map[string]interface{}{
		"rewards": out,
	})
}

func (ws *WebServer) getReward(w http.ResponseWriter, r *http.Request) {

	id := mux.Vars(r)["id"]

	req, err := ws.payoutsHandler.GetReward(id)
	if err != nil {
		apiError(err, w)
		return
	}

	resp := toRewardResponse(req)

	record, err := ws.payoutsHandler.GetPayouts(id)
	switch {
	case err == nil:
		resp.Status = record.Status()
	case !errors.Is(err, rewards.ErrNotFound):
		apiError(err, w)
		return
	}

	apiReturnJSON(w, http.StatusOK, resp)
}

func (ws *WebServer) cancelReward(w http.ResponseWriter, r *http.Request) {

	id := mux.Vars(r)["id"]

	if err := ws.payoutsHandler.CancelReward(id); err != nil {
		log.WithError(err).WithField("RewardID", id).Error("API - cancelReward")
		apiError(err, w)
		return
	}

	apiReturnOk(w)
}
