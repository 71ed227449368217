package ledgerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetrewards/payouts"
	"assetrewards/rewards"
	"assetrewards/storage"
)

type recordedCall struct {
	Path   string
	Method string
	Params []json.RawMessage
	User   string
}

// fakeNode answers JSON-RPC calls from a method table
type fakeNode struct {
	mu      sync.Mutex
	calls   []recordedCall
	results map[string]interface{}
	errors  map[string]string
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	var req struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, _, _ := r.BasicAuth()

	n.mu.Lock()
	n.calls = append(n.calls, recordedCall{Path: r.URL.Path, Method: req.Method, Params: req.Params, User: user})
	result, ok := n.results[req.Method]
	rpcErr := n.errors[req.Method]
	n.mu.Unlock()

	resp := map[string]interface{}{"id": req.ID, "result": nil, "error": nil}

	switch {
	case rpcErr != "":
		w.WriteHeader(http.StatusInternalServerError)
		resp["error"] = map[string]interface{}{"code": -6, "message": rpcErr}
	case !ok:
		w.WriteHeader(http.StatusNotFound)
		resp["error"] = map[string]interface{}{"code": -32601, "message": "Method not found"}
	default:
		resp["result"] = result
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) lastCall() recordedCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[len(n.calls)-1]
}

func newClient(t *testing.T, endpoints ...string) *LedgerClient {
	t.Helper()

	db, err := storage.InitStorage(t.TempDir(), "regtest")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.AddDefaultEndpoints(endpoints))

	c, err := New(LedgerClientArgs{Storage: db, PollInterval: 20 * time.Millisecond})
	require.NoError(t, err)

	return c
}

func withAuth(url string) string {
	return strings.Replace(url, "http://", "http://rpcuser:rpcpass@", 1)
}

func TestNoEndpoints(t *testing.T) {

	db, err := storage.InitStorage(t.TempDir(), "regtest")
	require.NoError(t, err)
	defer db.Close()

	_, err = New(LedgerClientArgs{Storage: db})
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestCurrentHeightAndSnapshot(t *testing.T) {

	node := &fakeNode{results: map[string]interface{}{
		"getblockcount": 1234,
		"getassetdata":  map[string]interface{}{"name": "TOKEN", "units": 8},
		"getsnapshot": map[string]interface{}{
			"name":   "TOKEN",
			"height": 1200,
			"owners": []map[string]interface{}{
				{"address": "Raddr1", "amount_owned": 1.5},
				{"address": "Raddr2", "amount_owned": "0.00000001"},
			},
		},
	}}
	srv := httptest.NewServer(node)
	defer srv.Close()

	c := newClient(t, withAuth(srv.URL))
	ctx := context.Background()

	height, err := c.CurrentHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1234, height)
	assert.Equal(t, "rpcuser", node.lastCall().User)

	snap, err := c.OwnershipAt(ctx, "TOKEN", 1200)
	require.NoError(t, err)
	assert.Equal(t, payouts.Snapshot{
		Asset:  "TOKEN",
		Height: 1200,
		Holders: []payouts.Holder{
			{Address: "Raddr1", Balance: 150_000_000},
			{Address: "Raddr2", Balance: 1},
		},
	}, snap)

	call := node.lastCall()
	require.Len(t, call.Params, 2)
	assert.JSONEq(t, `"TOKEN"`, string(call.Params[0]))
	assert.JSONEq(t, `1200`, string(call.Params[1]))
}

func TestSnapshotUsesAssetDivisibility(t *testing.T) {

	node := &fakeNode{results: map[string]interface{}{
		"getassetdata": map[string]interface{}{"name": "TOKEN", "units": 0},
		"getsnapshot": map[string]interface{}{
			"name":   "TOKEN",
			"height": 500,
			"owners": []map[string]interface{}{
				{"address": "Raddr1", "amount_owned": 1},
				{"address": "Raddr2", "amount_owned": 1},
				{"address": "Raddr3", "amount_owned": 1},
			},
		},
	}}
	srv := httptest.NewServer(node)
	defer srv.Close()

	c := newClient(t, srv.URL)

	snap, err := c.OwnershipAt(context.Background(), "TOKEN", 500)
	require.NoError(t, err)

	record, err := payouts.Calculate(&rewards.RewardRequest{
		ID:           "reward-1",
		PayoutHeight: 500,
		TotalAmount:  1_000_000_000,
		FundingAsset: "RVN",
		TargetAsset:  "TOKEN",
	}, snap)
	require.NoError(t, err)

	assert.Equal(t, int64(3), record.TotalUnits)
	assert.Equal(t, int64(333_333_333), record.PerUnitAmount)
	require.Len(t, record.Payments, 3)
	for _, p := range record.Payments {
		assert.Equal(t, int64(333_333_333), p.Amount)
	}
	assert.Equal(t, int64(1), record.Remainder())
}

func TestSnapshotRejectsFractionOfIndivisibleAsset(t *testing.T) {

	node := &fakeNode{results: map[string]interface{}{
		"getassetdata": map[string]interface{}{"name": "TOKEN", "units": 0},
		"getsnapshot": map[string]interface{}{
			"owners": []map[string]interface{}{{"address": "Raddr1", "amount_owned": 0.5}},
		},
	}}
	srv := httptest.NewServer(node)
	defer srv.Close()

	_, err := newClient(t, srv.URL).OwnershipAt(context.Background(), "TOKEN", 500)
	assert.Error(t, err)
}

func TestTransferNativeAndAsset(t *testing.T) {

	node := &fakeNode{results: map[string]interface{}{
		"sendmany":     "txnative",
		"transfermany": []string{"txasset"},
		"getbalance":   12.5,
	}}
	srv := httptest.NewServer(node)
	defer srv.Close()

	c := newClient(t, srv.URL)
	ctx := context.Background()

	txid, err := c.Transfer(ctx, payouts.TransferRequest{
		Account: "rewards",
		Native:  true,
		Transfers: []payouts.Transfer{
			{Address: "Ra", Amount: 150_000_000},
			{Address: "Rb", Amount: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "txnative", txid)

	call := node.lastCall()
	assert.Equal(t, "/wallet/rewards", call.Path)
	assert.Equal(t, "sendmany", call.Method)
	assert.JSONEq(t, `{"Ra":1.50000000,"Rb":0.00000001}`, string(call.Params[1]))

	txid, err = c.Transfer(ctx, payouts.TransferRequest{
		FundingAsset:    "TOKEN",
		SourceAddresses: []string{"Rtreasury"},
		Transfers:       []payouts.Transfer{{Address: "Ra", Amount: 200_000_000}},
	})
	require.NoError(t, err)
	assert.Equal(t, "txasset", txid)

	call = node.lastCall()
	assert.Equal(t, "transfermany", call.Method)
	assert.Equal(t, "/", call.Path)
	assert.JSONEq(t, `"TOKEN"`, string(call.Params[0]))
	assert.JSONEq(t, `["Rtreasury"]`, string(call.Params[2]))

	balance, err := c.NativeBalance(ctx, "rewards")
	require.NoError(t, err)
	assert.Equal(t, int64(1_250_000_000), balance)

	_, err = c.Transfer(ctx, payouts.TransferRequest{Native: true})
	assert.Error(t, err, "empty transfer")

	_, err = c.Transfer(ctx, payouts.TransferRequest{Native: true, Transfers: []payouts.Transfer{
		{Address: "Ra", Amount: 1}, {Address: "Ra", Amount: 2},
	}})
	assert.Error(t, err, "duplicate destination")
}

func TestNodeErrorDoesNotFailOver(t *testing.T) {

	primary := &fakeNode{errors: map[string]string{"sendmany": "Insufficient funds"}}
	backup := &fakeNode{results: map[string]interface{}{"sendmany": "txbackup"}}

	ps, bs := httptest.NewServer(primary), httptest.NewServer(backup)
	defer ps.Close()
	defer bs.Close()

	c := newClient(t, ps.URL, bs.URL)

	_, err := c.Transfer(context.Background(), payouts.TransferRequest{
		Native: true, Transfers: []payouts.Transfer{{Address: "Ra", Amount: 1}},
	})

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "Insufficient funds", rpcErr.Message)
	assert.Empty(t, backup.calls)
	assert.True(t, c.IsPrimary)
}

// countingNode fails every call with status, optionally after a delay
func countingNode(status int, delay time.Duration, calls *int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		time.Sleep(delay)
		http.Error(w, "upstream unavailable", status)
	})
}

func TestTransferNeverFailsOver(t *testing.T) {

	cases := []struct {
		name  string
		delay time.Duration
	}{
		{name: "bad gateway"},
		{name: "no reply before timeout", delay: 300 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {

			var primaryCalls int32
			ps := httptest.NewServer(countingNode(http.StatusBadGateway, tc.delay, &primaryCalls))
			defer ps.Close()

			backup := &fakeNode{results: map[string]interface{}{"sendmany": "txbackup", "transfermany": "txbackup"}}
			bs := httptest.NewServer(backup)
			defer bs.Close()

			c := newClient(t, ps.URL, bs.URL)
			c.http.Timeout = 100 * time.Millisecond

			for _, native := range []bool{true, false} {
				_, err := c.Transfer(context.Background(), payouts.TransferRequest{
					Native:       native,
					FundingAsset: "TOKEN",
					Transfers:    []payouts.Transfer{{Address: "Ra", Amount: 1}},
				})
				assert.ErrorIs(t, err, ErrOutcomeUnknown)
			}

			assert.Equal(t, int32(2), atomic.LoadInt32(&primaryCalls))

			backup.mu.Lock()
			assert.Empty(t, backup.calls)
			backup.mu.Unlock()
			assert.True(t, c.IsPrimary)
		})
	}
}

func TestTransferIgnoresCallerCancellation(t *testing.T) {

	node := &fakeNode{results: map[string]interface{}{"sendmany": "txslow"}}
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		node.ServeHTTP(w, r)
	})
	srv := httptest.NewServer(slow)
	defer srv.Close()

	c := newClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	txid, err := c.Transfer(ctx, payouts.TransferRequest{
		Native: true, Transfers: []payouts.Transfer{{Address: "Ra", Amount: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "txslow", txid)
}

func TestFailoverToBackup(t *testing.T) {

	backup := &fakeNode{results: map[string]interface{}{"getblockcount": 77}}
	bs := httptest.NewServer(backup)
	defer bs.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	c := newClient(t, deadURL, bs.URL)

	height, err := c.CurrentHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 77, height)
	assert.False(t, c.IsPrimary)
}

func TestMonitorEmitsEveryHeight(t *testing.T) {

	node := &fakeNode{results: map[string]interface{}{"getblockcount": 105}}
	srv := httptest.NewServer(node)
	defer srv.Close()

	c := newClient(t, srv.URL)

	shutdown := make(chan interface{})
	var wg sync.WaitGroup
	wg.Add(1)
	go c.Run(shutdown, &wg, 102)

	var got []int
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case h := <-c.NewHeightNotifier:
			got = append(got, h)
		case <-timeout:
			t.Fatalf("only received %v", got)
		}
	}

	assert.Equal(t, []int{103, 104, 105}, got)
	assert.Equal(t, 105, c.Status.Snapshot().Height)

	close(shutdown)
	wg.Wait()
}

func TestParseEndpoint(t *testing.T) {

	e, err := parseEndpoint("http://u:p@node:8766/")
	require.NoError(t, err)
	assert.Equal(t, "http://node:8766", e.base)
	assert.Equal(t, "u", e.user)
	assert.Equal(t, "p", e.password)

	_, err = parseEndpoint("node:8766")
	assert.Error(t, err)
}
