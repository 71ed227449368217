package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	log "github.com/sirupsen/logrus"

	"assetrewards/config"
	"assetrewards/notifications"
	"assetrewards/storage"
)

func TestMain(m *testing.M) {

	log.SetLevel(log.WarnLevel)

	os.Exit(m.Run())
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {

	path := filepath.Join(t.TempDir(), "assetrewards.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network: testnet\nweb:\n  bind_port: 9000\n"), 0600))

	cfg, err := loadConfig(Flags{configFile: path, webUIPort: 9100, dataDir: "/tmp/rewards"})
	require.NoError(t, err)

	assert.Equal(t, "testnet", cfg.Network)
	assert.Equal(t, 9100, cfg.Web.BindPort)
	assert.Equal(t, "/tmp/rewards", cfg.DataDir)
	assert.Equal(t, "127.0.0.1", cfg.Web.BindAddr)
}

func TestLoadConfigRejectsUnknownNetworkFlag(t *testing.T) {

	_, err := loadConfig(Flags{networkName: "nonsense"})
	require.Error(t, err)
}

func TestSeedNotifiersKeepsStoredConfig(t *testing.T) {

	db, err := storage.InitStorage(t.TempDir(), "regtest")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	stored := []byte(`{"chatids":[1],"apikey":"stored","enabled":false}`)
	require.NoError(t, db.SaveNotifiersConfig(notifications.TELEGRAM, stored))

	seeds := config.NotifierSeeds{
		Telegram: &config.TelegramSeed{APIKey: "seeded", ChatIDs: []int{2}},
		Email:    &config.EmailSeed{SMTPHost: "mail.example.com", From: "a@example.com", To: []string{"b@example.com"}},
	}
	require.NoError(t, seedNotifiers(db, seeds))

	telegram, err := db.GetNotifiersConfig(notifications.TELEGRAM)
	require.NoError(t, err)
	assert.JSONEq(t, string(stored), string(telegram))

	email, err := db.GetNotifiersConfig(notifications.EMAIL)
	require.NoError(t, err)

	var got config.EmailSeed
	require.NoError(t, json.Unmarshal(email, &got))
	assert.Equal(t, "mail.example.com", got.SMTPHost)
	assert.Equal(t, []string{"b@example.com"}, got.To)
}

func TestFetchLatestVersion(t *testing.T) {

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"date":"2026-01-10T00:00:00Z","version":"v1.1.0","notes":"older"},
			{"date":"2026-03-01T00:00:00Z","version":"v1.2.0","notes":"newest"}
		]`))
	}))
	defer srv.Close()

	latest, err := fetchLatestVersion(srv.URL)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "v1.2.0", latest.Version)
	assert.Equal(t, "newest", latest.Notes)
}

func TestFetchLatestVersionErrors(t *testing.T) {

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := fetchLatestVersion(srv.URL + "/missing")
	assert.Error(t, err)

	_, err = fetchLatestVersion(srv.URL)
	assert.Error(t, err)
}

func TestRunVersionCheckStopsOnShutdown(t *testing.T) {

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	s := new(AssetRewardsServer)
	shutdown := make(chan interface{})

	var wg sync.WaitGroup
	wg.Add(1)
	go s.RunVersionCheck(srv.URL, shutdown, &wg)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 1 }, 2*time.Second, 10*time.Millisecond)

	close(shutdown)
	wg.Wait()
}
