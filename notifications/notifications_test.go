package notifications

import (
	"net"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetrewards/storage"
)

func newTestHandler(t *testing.T) (*NotificationHandler, *storage.Storage) {
	t.Helper()

	db, err := storage.InitStorage(t.TempDir(), "regtest")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	n, err := NewHandler(db)
	require.NoError(t, err)

	return n, db
}

func TestTelegramConfigureSaveAndSend(t *testing.T) {

	var (
		mu    sync.Mutex
		texts []string
		chats []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "/botSECRET/sendMessage", r.URL.Path)

		mu.Lock()
		texts = append(texts, r.PostForm.Get("text"))
		chats = append(chats, r.PostForm.Get("chat_id"))
		mu.Unlock()

		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n, db := newTestHandler(t)

	require.NoError(t, n.Configure(TELEGRAM, []byte(`{"apikey":"SECRET","chatids":[11,22],"enabled":true}`), true))

	// Point the configured notifier at the test server
	n.notifiers[TELEGRAM].(*NotifyTelegram).apiURL = srv.URL

	n.SendNotification("payouts done", PAYOUTS)

	assert.Equal(t, []string{"payouts done", "payouts done"}, texts)
	assert.ElementsMatch(t, []string{"11", "22"}, chats)

	saved, err := db.GetNotifiersConfig(TELEGRAM)
	require.NoError(t, err)
	assert.Contains(t, string(saved), `"apikey":"SECRET"`)

	// Reload from storage
	reloaded, err := NewHandler(db)
	require.NoError(t, err)
	assert.Contains(t, reloaded.notifiers, TELEGRAM)
}

func TestTelegramErrors(t *testing.T) {

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	n, _ := newTestHandler(t)

	err := n.Configure(TELEGRAM, []byte(`{"enabled":true}`), false)
	assert.Error(t, err, "missing api key")

	require.NoError(t, n.Configure(TELEGRAM, []byte(`{"apikey":"X","chatids":[1],"enabled":true}`), false))
	n.notifiers[TELEGRAM].(*NotifyTelegram).apiURL = srv.URL

	assert.Error(t, n.TestSend(TELEGRAM, "hello"))
	assert.Error(t, n.TestSend(EMAIL, "hello"), "not configured")
	assert.Error(t, n.Configure("pager", nil, false))
}

func TestEmailSend(t *testing.T) {

	n, _ := newTestHandler(t)

	require.NoError(t, n.Configure(EMAIL, []byte(`{"username":"ops@example.com","password":"pw","smtphost":"mail.example.com","to":["a@example.com"],"enabled":true}`), false))

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)

	ne := n.notifiers[EMAIL].(*NotifyEmail)
	ne.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.Equal(t, "ops@example.com", from)
		assert.NotNil(t, a)
		return nil
	}

	require.NoError(t, n.TestSend(EMAIL, "settled"))

	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, []string{"a@example.com"}, gotTo)
	assert.True(t, strings.HasSuffix(gotMsg, "settled\r\n"))
}

func TestDisabledNotifierIsSkipped(t *testing.T) {

	n, _ := newTestHandler(t)

	require.NoError(t, n.Configure(EMAIL, []byte(`{"enabled":false}`), false))

	ne := n.notifiers[EMAIL].(*NotifyEmail)
	ne.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("disabled notifier must not send")
		return nil
	}

	n.SendNotification("ignored", STARTUP)

	raw, err := n.GetConfig()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"email"`)

	var nilHandler *NotificationHandler
	nilHandler.SendNotification("no panic", STARTUP)
}

func TestEmailGivesUpOnStalledServer(t *testing.T) {

	// Accepts connections and never sends a greeting
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	send := sendMailWithin(100 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- send(ln.Addr().String(), nil, "a@example.com", []string{"b@example.com"}, []byte("hi"))
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("send did not time out")
	}
}
