package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"assetrewards/notifications"
)

const VERSION_CHECK_INTERVAL = 12 * time.Hour

type Versions []Version

type Version struct {
	Date    time.Time `json:"date"`
	Version string    `json:"version"`
	Notes   string    `json:"notes"`
}

// RunVersionCheck polls versionURL for published releases until shutdown is
// closed, notifying once per newer release seen
func (s *AssetRewardsServer) RunVersionCheck(versionURL string, shutdown <-chan interface{}, wg *sync.WaitGroup) {

	defer wg.Done()

	ticker := time.NewTicker(VERSION_CHECK_INTERVAL)
	defer ticker.Stop()

	var announced string

	for {

		latest, err := fetchLatestVersion(versionURL)
		switch {
		case err != nil:
			log.WithError(err).Error("Unable to get version update")

		case latest != nil && latest.Version != version && latest.Version != announced:
			announced = latest.Version

			log.WithFields(log.Fields{
				"Date": latest.Date, "Version": latest.Version, "Notes": latest.Notes,
			}).Info("Version Update")

			s.SendNotification(fmt.Sprintf("assetrewards %s is available (running %s)", latest.Version, version),
				notifications.STARTUP)
		}

		// wait here for next iteration
		select {
		case <-ticker.C:
		case <-shutdown:
			return
		}
	}
}

func fetchLatestVersion(versionURL string) (*Version, error) {

	// HTTP client 10s timeout
	client := &http.Client{
		Timeout: time.Second * 10,
	}

	resp, err := client.Get(versionURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("version check returned %s", resp.Status)
	}

	versions := Versions{}
	if err := json.NewDecoder(resp.Body).Decode(&versions); err != nil {
		return nil, errors.Wrap(err, "Unable to decode versions")
	}

	if len(versions) == 0 {
		return nil, nil
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Date.After(versions[j].Date)
	})

	return &versions[0], nil
}
