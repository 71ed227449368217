package webserver

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"assetrewards/notifications"
	"assetrewards/rewards"
)

func (ws *WebServer) saveTelegram(w http.ResponseWriter, r *http.Request) {
	ws.saveNotifier(notifications.TELEGRAM, w, r)
}

func (ws *WebServer) saveEmail(w http.ResponseWriter, r *http.Request) {
	ws.saveNotifier(notifications.EMAIL, w, r)
}

func (ws *WebServer) saveNotifier(notifier string, w http.ResponseWriter, r *http.Request) {

	log.WithField("Notifier", notifier).Trace("API - SaveNotifier")

	if ws.notificationHandler == nil {
		apiError(errors.New("Notifications are not available"), w)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		apiError(errors.Wrap(rewards.ErrValidation, "Failed to read body"), w)
		return
	}

	// Make sure to save config to db
	if err := ws.notificationHandler.Configure(notifier, body, true); err != nil {
		log.WithError(err).Error("API SaveNotifier")
		apiError(errors.Wrapf(rewards.ErrValidation, "Failed to configure %s: %s", notifier, err), w)
		return
	}

	if err := ws.notificationHandler.TestSend(notifier, "Test message from assetrewards"); err != nil {
		log.WithError(err).Error("API SaveNotifier")
		apiError(errors.Wrapf(rewards.ErrValidation, "Failed to execute %s test: %s", notifier, err), w)
		return
	}

	apiReturnOk(w)
}

func (ws *WebServer) getSettings(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - GetSettings")

	endpoints, err := ws.storage.GetRPCEndpoints()
	if err != nil {
		apiError(errors.Wrap(err, "Cannot get endpoints"), w)
		return
	}

	var notifiers json.RawMessage = []byte("{}")
	if ws.notificationHandler != nil {
		notifiers, err = ws.notificationHandler.GetConfig()
		if err != nil {
			apiError(errors.Wrap(err, "Cannot get notification settings"), w)
			return
		}
	}

	apiReturnJSON(w, http.StatusOK, map[string]interface{}{
		"endpoints":     endpoints,
		"notifications": notifiers,
	})
}

// Adding, Listing, Deleting endpoints
func (ws *WebServer) addEndpoint(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - AddEndpoint")

	k := make(map[string]string)

	if err := json.NewDecoder(r.Body).Decode(&k); err != nil || k["rpc"] == "" {
		apiError(errors.Wrap(rewards.ErrValidation, "Cannot decode body for rpc add"), w)
		return
	}

	id, err := ws.storage.AddRPCEndpoint(k["rpc"])
	if err != nil {
		log.WithError(err).WithField("Endpoint", k["rpc"]).Error("API AddEndpoint")
		apiError(errors.Wrap(err, "Cannot add endpoint to DB"), w)
		return
	}

	ws.reloadEndpoints()

	log.WithFields(log.Fields{"Endpoint": k["rpc"], "ID": id}).Debug("API Added Endpoint")

	apiReturnJSON(w, http.StatusOK, map[string]int{"id": id})
}

func (ws *WebServer) listEndpoints(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - ListEndpoints")

	endpoints, err := ws.storage.GetRPCEndpoints()
	if err != nil {
		apiError(errors.Wrap(err, "Cannot get endpoints"), w)
		return
	}

	apiReturnJSON(w, http.StatusOK, map[string]map[int]string{
		"endpoints": endpoints,
	})
}

func (ws *WebServer) deleteEndpoint(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - DeleteEndpoint")

	k := make(map[string]int)

	if err := json.NewDecoder(r.Body).Decode(&k); err != nil {
		apiError(errors.Wrap(rewards.ErrValidation, "Cannot decode body for rpc delete"), w)
		return
	}

	endpoints, err := ws.storage.GetRPCEndpoints()
	if err != nil {
		apiError(errors.Wrap(err, "Cannot get endpoints"), w)
		return
	}

	if _, ok := endpoints[k["rpc"]]; !ok {
		apiError(errors.Wrapf(rewards.ErrNotFound, "endpoint %d", k["rpc"]), w)
		return
	}

	if len(endpoints) == 1 {
		apiError(errors.Wrap(rewards.ErrConflict, "Cannot delete the last endpoint"), w)
		return
	}

	if err := ws.storage.DeleteRPCEndpoint(k["rpc"]); err != nil {
		log.WithError(err).WithField("Endpoint", k).Error("API DeleteEndpoint")
		apiError(errors.Wrap(err, "Cannot delete endpoint from DB"), w)
		return
	}

	ws.reloadEndpoints()

	log.WithField("Endpoint", k["rpc"]).Debug("API Deleted Endpoint")

	apiReturnOk(w)
}

func (ws *WebServer) reloadEndpoints() {

	if ws.ledger == nil {
		return
	}

	if err := ws.ledger.LoadEndpoints(); err != nil {
		log.WithError(err).Error("Unable to reload RPC endpoints")
	}
}
