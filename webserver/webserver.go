package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/sirupsen/logrus"

	"assetrewards/ledgerclient"
	"assetrewards/notifications"
	"assetrewards/payouts"
	"assetrewards/rewards"
	"assetrewards/storage"
)

// LedgerControl is the part of the ledger client the API manages
type LedgerControl interface {
	LoadEndpoints() error
}

type WebServer struct {
	payoutsHandler      *payouts.PayoutsHandler
	notificationHandler *notifications.NotificationHandler
	storage             *storage.Storage
	ledger              LedgerControl
	status              *ledgerclient.LedgerStatus
	limiter             *RateLimiter
	corsOrigins         []string

	httpSvr *http.Server
}

type WebServerArgs struct {
	PayoutsHandler      *payouts.PayoutsHandler
	NotificationHandler *notifications.NotificationHandler // Optional
	Storage             *storage.Storage
	Ledger              LedgerControl              // Optional
	Status              *ledgerclient.LedgerStatus // Optional
	BindAddr            string
	BindPort            int
	CORSOrigins         []string
	RateLimit           float64
	RateBurst           int
	TrustProxyHeaders   bool
	ShutdownChannel     <-chan interface{}
	WG                  *sync.WaitGroup
}

func New(args WebServerArgs) *WebServer {
	return &WebServer{
		payoutsHandler:      args.PayoutsHandler,
		notificationHandler: args.NotificationHandler,
		storage:             args.Storage,
		ledger:              args.Ledger,
		status:              args.Status,
		limiter:             NewRateLimiter(args.RateLimit, args.RateBurst, args.TrustProxyHeaders),
		corsOrigins:         args.CORSOrigins,
	}
}

// Start launches the API in the background. WG is released once the server
// has shut down after ShutdownChannel closes.
func Start(args WebServerArgs) (*WebServer, error) {

	if args.PayoutsHandler == nil || args.Storage == nil {
		return nil, errors.New("Webserver requires payouts handler and storage")
	}

	ws := New(args)

	httpAddr := fmt.Sprintf("%s:%d", args.BindAddr, args.BindPort)
	ws.httpSvr = &http.Server{
		Handler:      ws.Router(),
		Addr:         httpAddr,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	log.WithField("Addr", httpAddr).Info("API Listening")

	go func() {
		if err := ws.httpSvr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Errorf("Httpserver: ListenAndServe()")
		}
		log.Info("Httpserver: Shutdown")
	}()

	// Wait for shutdown signal on channel
	go func() {
		defer args.WG.Done()

		<-args.ShutdownChannel

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := ws.httpSvr.Shutdown(ctx); err != nil {
			log.WithError(err).Errorf("Httpserver: Shutdown()")
		}
	}()

	return ws, nil
}

// Router builds the route table
func (ws *WebServer) Router() http.Handler {

	router := mux.NewRouter()

	router.HandleFunc("/api/health", ws.getHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	apiRouter := router.PathPrefix("/api").Subrouter()

	// Reads
	apiRouter.HandleFunc("/rewards", ws.listRewards).Methods("GET")
	apiRouter.HandleFunc("/rewards/{id}", ws.getReward).Methods("GET")
	apiRouter.HandleFunc("/rewards/{id}/payouts", ws.getPayouts).Methods("GET")
	apiRouter.HandleFunc("/payouts", ws.listPayouts).Methods("GET")
	apiRouter.HandleFunc("/settings", ws.getSettings).Methods("GET")
	apiRouter.HandleFunc("/settings/endpoints", ws.listEndpoints).Methods("GET")

	// Mutations are rate limited per client
	mutate := apiRouter.NewRoute().Subrouter()
	mutate.Use(ws.limiter.Middleware)

	mutate.HandleFunc("/rewards", ws.scheduleReward).Methods("POST")
	mutate.HandleFunc("/rewards/{id}", ws.cancelReward).Methods("DELETE")
	mutate.HandleFunc("/rewards/{id}/payouts", ws.calculatePayouts).Methods("POST")
	mutate.HandleFunc("/rewards/{id}/payouts", ws.cancelPayouts).Methods("DELETE")
	mutate.HandleFunc("/rewards/{id}/settle", ws.executePayouts).Methods("POST")
	mutate.HandleFunc("/settings/endpoints", ws.addEndpoint).Methods("POST")
	mutate.HandleFunc("/settings/endpoints", ws.deleteEndpoint).Methods("DELETE")
	mutate.HandleFunc("/settings/telegram", ws.saveTelegram).Methods("POST")
	mutate.HandleFunc("/settings/email", ws.saveEmail).Methods("POST")

	corsOpts := []handlers.CORSOption{
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	}
	if len(ws.corsOrigins) > 0 {
		corsOpts = append(corsOpts, handlers.AllowedOrigins(ws.corsOrigins))
	}

	return handlers.CORS(corsOpts...)(router)
}

func (ws *WebServer) getHealth(w http.ResponseWriter, r *http.Request) {

	health := map[string]interface{}{
		"ok": true,
	}

	if ws.status != nil {
		health["ledger"] = ws.status.Snapshot()
	}

	apiReturnJSON(w, http.StatusOK, health)
}

type ApiError struct {
	Error string `json:"error"`
}

// statusFor maps the pipeline's error taxonomy onto HTTP
func statusFor(err error) int {

	switch {
	case errors.Is(err, rewards.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rewards.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, rewards.ErrValidation), errors.Is(err, rewards.ErrInfeasible):
		return http.StatusBadRequest
	case errors.Is(err, rewards.ErrLedger):
		return http.StatusBadGateway
	case errors.Is(err, rewards.ErrStorage):
		return http.StatusInternalServerError
	}

	return http.StatusInternalServerError
}

func apiError(err error, w http.ResponseWriter) {
	apiReturnJSON(w, statusFor(err), ApiError{err.Error()})
}

func apiReturnOk(w http.ResponseWriter) {
	apiReturnJSON(w, http.StatusOK, map[string]string{"ok": "ok"})
}

func apiReturnJSON(w http.ResponseWriter, status int, v interface{}) {

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("API Return Encode Failure")
	}
}
