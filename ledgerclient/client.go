package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"assetrewards/notifications"
	"assetrewards/storage"
)

const DEFAULT_ASSET_TRANSFER_METHOD = "transfermany"

var (
	ErrNoEndpoints    = errors.New("No RPC endpoints configured")
	ErrOutcomeUnknown = errors.New("Transfer outcome unknown; check the wallet before settling again")
)

type Notifier interface {
	SendNotification(message string, category notifications.Category)
}

// endpoint is one node's JSON-RPC interface. Credentials come from the URL's
// userinfo and are sent as basic auth.
type endpoint struct {
	base     string
	user     string
	password string
}

func parseEndpoint(raw string) (*endpoint, error) {

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "Invalid RPC endpoint '%s'", raw)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("Invalid RPC endpoint '%s': scheme must be http or https", raw)
	}

	e := &endpoint{}
	if u.User != nil {
		e.user = u.User.Username()
		e.password, _ = u.User.Password()
		u.User = nil
	}
	e.base = strings.TrimRight(u.String(), "/")

	return e, nil
}

func (e *endpoint) String() string {
	return e.base
}

type LedgerClient struct {
	Current *endpoint
	Primary *endpoint
	Backup  *endpoint

	IsPrimary bool
	lock      sync.RWMutex

	Status            *LedgerStatus
	NewHeightNotifier chan int

	assetMethod  string
	pollInterval time.Duration
	http         *http.Client
	notifier     Notifier
	storage      *storage.Storage
	requestID    uint64
}

type LedgerClientArgs struct {
	Storage             *storage.Storage
	Notifier            Notifier // Optional
	PollInterval        time.Duration
	AssetTransferMethod string
	Timeout             time.Duration
}

// New builds a client over the endpoints saved in storage. The lowest
// numbered endpoint is the primary, the next one the backup.
func New(args LedgerClientArgs) (*LedgerClient, error) {

	c := &LedgerClient{
		Status:            &LedgerStatus{},
		NewHeightNotifier: make(chan int, 1),
		assetMethod:       args.AssetTransferMethod,
		pollInterval:      args.PollInterval,
		notifier:          args.Notifier,
		storage:           args.Storage,
	}

	if c.assetMethod == "" {
		c.assetMethod = DEFAULT_ASSET_TRANSFER_METHOD
	}

	if c.pollInterval <= 0 {
		c.pollInterval = 10 * time.Second
	}

	timeout := args.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c.http = &http.Client{Timeout: timeout}

	if err := c.LoadEndpoints(); err != nil {
		return nil, err
	}

	return c, nil
}

// LoadEndpoints (re)reads the endpoint list from storage
func (c *LedgerClient) LoadEndpoints() error {

	saved, err := c.storage.GetRPCEndpoints()
	if err != nil {
		return errors.Wrap(err, "Unable to load RPC endpoints")
	}

	ids := make([]int, 0, len(saved))
	for id := range saved {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var parsed []*endpoint
	for _, id := range ids {
		e, err := parseEndpoint(saved[id])
		if err != nil {
			log.WithError(err).WithField("ID", id).Warn("Skipping RPC endpoint")
			continue
		}
		parsed = append(parsed, e)
	}

	if len(parsed) == 0 {
		return ErrNoEndpoints
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.Primary = parsed[0]
	c.Backup = nil
	if len(parsed) > 1 {
		c.Backup = parsed[1]
	}
	c.Current = c.Primary
	c.IsPrimary = true

	log.WithFields(log.Fields{
		"Primary": c.Primary.String(), "HasBackup": c.Backup != nil,
	}).Info("Loaded RPC endpoints")

	return nil
}

func (c *LedgerClient) UseBackup() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.Backup == nil {
		return
	}
	c.Current = c.Backup
	c.IsPrimary = false
}

func (c *LedgerClient) UsePrimary() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.Current = c.Primary
	c.IsPrimary = true
}

func (c *LedgerClient) current() (*endpoint, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.Current, c.Backup != nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is an error reported by the node itself, as opposed to a failure
// reaching it
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call runs method against the current endpoint. If the node cannot be
// reached the other endpoint is tried once. Node-reported errors are
// returned as *RPCError without failover.
func (c *LedgerClient) call(ctx context.Context, wallet, method string, result interface{}, params ...interface{}) error {

	e, hasBackup := c.current()
	if e == nil {
		return ErrNoEndpoints
	}

	err := c.do(ctx, e, wallet, method, result, params)
	if err == nil || !hasBackup || isNodeError(err) || ctx.Err() != nil {
		return err
	}

	log.WithError(err).WithFields(log.Fields{
		"Endpoint": e.String(), "Method": method,
	}).Warn("RPC endpoint unreachable; switching")

	c.lock.RLock()
	wasPrimary := c.IsPrimary
	c.lock.RUnlock()

	if wasPrimary {
		c.UseBackup()
	} else {
		c.UsePrimary()
	}

	next, _ := c.current()

	return c.do(ctx, next, wallet, method, result, params)
}

// send runs a state-changing method against the current endpoint only. The
// request is not tied to the caller's cancellation; the HTTP client timeout
// still bounds it. A transport error leaves the outcome unknown, so the other
// endpoint is never tried.
func (c *LedgerClient) send(ctx context.Context, wallet, method string, result interface{}, params ...interface{}) error {

	e, _ := c.current()
	if e == nil {
		return ErrNoEndpoints
	}

	err := c.do(context.WithoutCancel(ctx), e, wallet, method, result, params)
	if err == nil || isNodeError(err) {
		return err
	}

	log.WithError(err).WithFields(log.Fields{
		"Endpoint": e.String(), "Method": method,
	}).Error("No reply to transfer; it may have been broadcast")

	return errors.Wrapf(ErrOutcomeUnknown, "%s via %s: %s", method, e.String(), err.Error())
}

func isNodeError(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}

func (c *LedgerClient) do(ctx context.Context, e *endpoint, wallet, method string, result interface{}, params []interface{}) error {

	c.lock.Lock()
	c.requestID++
	id := c.requestID
	c.lock.Unlock()

	if params == nil {
		params = []interface{}{}
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: id, Method: method, Params: params})
	if err != nil {
		return errors.Wrap(err, "Unable to encode RPC request")
	}

	target := e.base
	if wallet != "" {
		target = fmt.Sprintf("%s/wallet/%s", e.base, url.PathEscape(wallet))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "Unable to build RPC request")
	}

	req.Header.Set("Content-Type", "application/json")
	if e.user != "" {
		req.SetBasicAuth(e.user, e.password)
	}

	log.WithFields(log.Fields{"Endpoint": e.String(), "Method": method}).Trace("RPC call")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "Unable to call %s", method)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&rpcResp)

	// Nodes answer method errors with a 500 and a JSON body
	if decodeErr == nil && rpcResp.Error != nil {
		return rpcResp.Error
	}

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s: node returned %s", method, resp.Status)
	}

	if decodeErr != nil {
		return errors.Wrapf(decodeErr, "Unable to decode %s response", method)
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return errors.Wrapf(err, "Unable to decode %s result", method)
		}
	}

	return nil
}
