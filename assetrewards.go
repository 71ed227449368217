package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"assetrewards/config"
	"assetrewards/ledgerclient"
	"assetrewards/notifications"
	"assetrewards/payouts"
	"assetrewards/storage"
	"assetrewards/util"
	"assetrewards/webserver"
)

var (
	version    = "dev"
	commitHash = "unknown"
)

var (
	server *AssetRewardsServer
)

type AssetRewardsServer struct {
	*ledgerclient.LedgerClient
	*notifications.NotificationHandler
	*payouts.PayoutsHandler
	*webserver.WebServer
	*storage.Storage
	Flags
	config.Config
}

// Flags Server flags; set values override the config file
type Flags struct {
	configFile  string
	networkName string
	logDebug    bool
	logTrace    bool
	webUIAddr   string
	webUIPort   int
	dataDir     string
}

func main() {
	// Used throughout main
	var (
		err error
		wg  sync.WaitGroup
	)

	server = new(AssetRewardsServer)
	server.parseArgs()

	server.Config, err = loadConfig(server.Flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %s\n", err)
		os.Exit(1)
	}

	// Logging
	setupLogging(server.logDebug, server.logTrace, server.Config.DataDir, server.Config.LogFile, server.Config.LogMaxSizeMB)

	// Clean exits
	shutdownChannel := setupCloseChannel()

	networkConstants, err := util.GetNetworkConstants(server.Config.Network)
	if err != nil {
		log.WithError(err).Fatal("Unknown network")
	}

	// Open/Init database
	server.Storage, err = storage.InitStorage(server.Config.DataDir, server.Config.Network)
	if err != nil {
		log.WithError(err).Fatal("Could not open storage")
	}

	log.Infof("=== assetrewards %s (%s) ===", version, commitHash)
	log.Infof("=== Network: %s ===", server.Config.Network)

	log.WithFields(log.Fields{ //nolint:wsl
		"NativeSymbol":       networkConstants.NativeSymbol,
		"TimeBetweenBlocks":  networkConstants.TimeBetweenBlocks,
		"FutureHeightOffset": networkConstants.FutureHeightOffset,
	}).Debug("Loaded Network Constants")

	if err := server.Storage.AddDefaultEndpoints(server.Config.Ledger.Endpoints); err != nil {
		log.WithError(err).Fatal("Unable to save default endpoints")
	}

	if err := seedNotifiers(server.Storage, server.Config.Notifiers); err != nil {
		log.WithError(err).Error("Unable to seed notifier configs")
	}

	server.NotificationHandler, err = notifications.NewHandler(server.Storage)
	if err != nil {
		log.WithError(err).Error("Unable to load notifiers")
	}

	// Set up RPC polling-monitoring
	server.LedgerClient, err = ledgerclient.New(ledgerclient.LedgerClientArgs{
		Storage:             server.Storage,
		Notifier:            server.NotificationHandler,
		PollInterval:        server.Config.Ledger.PollInterval.Duration,
		Timeout:             server.Config.Ledger.Timeout.Duration,
		AssetTransferMethod: server.Config.Ledger.AssetTransferMethod,
	})
	if err != nil {
		log.WithError(err).Fatal("Cannot create ledger client")
	}

	server.PayoutsHandler, err = payouts.NewPayoutsHandler(payouts.PayoutsHandlerArgs{
		Storage:       server.Storage,
		Constants:     networkConstants,
		Ledger:        server.LedgerClient,
		Transferer:    server.LedgerClient,
		Balances:      server.LedgerClient,
		Notifier:      server.NotificationHandler,
		Metrics:       payouts.DefaultMetrics(),
		BatchSize:     server.Config.Payouts.BatchSize,
		Account:       server.Config.Payouts.Account,
		AutoCalculate: server.Config.Payouts.AutoCalculate,
	})
	if err != nil {
		log.WithError(err).Fatal("Cannot create payouts handler")
	}

	// Start API
	wg.Add(1)
	server.WebServer, err = webserver.Start(webserver.WebServerArgs{
		PayoutsHandler:      server.PayoutsHandler,
		NotificationHandler: server.NotificationHandler,
		Storage:             server.Storage,
		Ledger:              server.LedgerClient,
		Status:              server.LedgerClient.Status,
		BindAddr:            server.Config.Web.BindAddr,
		BindPort:            server.Config.Web.BindPort,
		CORSOrigins:         server.Config.Web.CORSOrigins,
		RateLimit:           server.Config.Web.RateLimit,
		RateBurst:           server.Config.Web.RateBurst,
		TrustProxyHeaders:   server.Config.Web.TrustProxyHeaders,
		ShutdownChannel:     shutdownChannel,
		WG:                  &wg,
	})
	if err != nil {
		log.WithError(err).Error("Unable to start API")
		os.Exit(1)
	}

	lastHeight, err := server.Storage.GetLastHeight()
	if err != nil {
		log.WithError(err).Fatal("Unable to read last processed height")
	}

	wg.Add(1)
	go server.LedgerClient.Run(shutdownChannel, &wg, lastHeight)

	if server.Config.VersionURL != "" {
		wg.Add(1)
		go server.RunVersionCheck(server.Config.VersionURL, shutdownChannel, &wg)
	}

	server.SendNotification(fmt.Sprintf("assetrewards %s started on %s", version, server.Config.Network), notifications.STARTUP)

	ctx, ctxCancel := context.WithCancel(context.Background())

	// loop forever, waiting for new heights coming from the RPC monitor
Main:
	for {

		select {
		case height := <-server.NewHeightNotifier:

			wg.Add(1)
			go server.handleNewHeight(ctx, &wg, height)

		case <-shutdownChannel:
			log.Warn("Shutting things down...")
			ctxCancel()
			break Main
		}
	}

	// Wait for threads to finish
	wg.Wait()

	// Clean close DB, logs
	server.Storage.Close()
	closeLogging()

	os.Exit(0)
}

func setupCloseChannel() chan interface{} {

	// Create channels for signals
	signalChan := make(chan os.Signal, 1)
	closingChan := make(chan interface{}, 1)

	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalChan
		close(closingChan)
	}()

	return closingChan
}

func (s *AssetRewardsServer) parseArgs() {

	flag.StringVar(&s.configFile, "config", "", "Path to YAML configuration file")

	flag.StringVar(&s.networkName, "network", "", fmt.Sprintf("Which network to use: %s", util.AvailableNetworks()))

	flag.BoolVar(&s.logDebug, "debug", false, "Enable debug-level logging")
	flag.BoolVar(&s.logTrace, "trace", false, "Enable trace-level logging")

	flag.StringVar(&s.webUIAddr, "webuiaddr", "", "Address on which to bind API server")
	flag.IntVar(&s.webUIPort, "webuiport", 0, "Port on which to bind API server")

	flag.StringVar(&s.dataDir, "datadir", "", "Location of database")

	printVersion := flag.Bool("version", false, "Show version and exit")

	flag.Parse()

	// Handle print version and exit
	if *printVersion {
		log.Printf("assetrewards %s (%s)", version, commitHash)
		os.Exit(0)
	}
}

// loadConfig reads the config file and applies any flags that were set
func loadConfig(f Flags) (config.Config, error) {

	cfg, err := config.Load(f.configFile)
	if err != nil {
		return cfg, err
	}

	if f.networkName != "" {
		cfg.Network = f.networkName
	}
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.webUIAddr != "" {
		cfg.Web.BindAddr = f.webUIAddr
	}
	if f.webUIPort != 0 {
		cfg.Web.BindPort = f.webUIPort
	}

	return cfg, cfg.Validate()
}

// seedNotifiers stores notifier configs from the config file unless the
// database already holds one
func seedNotifiers(db *storage.Storage, seeds config.NotifierSeeds) error {

	pending := map[string]interface{}{}
	if seeds.Telegram != nil {
		pending[notifications.TELEGRAM] = seeds.Telegram
	}
	if seeds.Email != nil {
		pending[notifications.EMAIL] = seeds.Email
	}

	for notifier, seed := range pending {

		existing, err := db.GetNotifiersConfig(notifier)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		raw, err := json.Marshal(seed)
		if err != nil {
			return errors.Wrapf(err, "Unable to encode %s seed", notifier)
		}

		if err := db.SaveNotifiersConfig(notifier, raw); err != nil {
			return err
		}
	}

	return nil
}
