package notifications

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"assetrewards/storage"
)

const TELEGRAM_API = "https://api.telegram.org"

type NotifyTelegram struct {
	ChatIDs []int  `json:"chatids"`
	APIKey  string `json:"apikey"`
	Enabled bool   `json:"enabled"`

	apiURL  string
	storage *storage.Storage
}

// NewTelegram creates a new NotifyTelegram object using a JSON byte-stream
// provided from either DB lookup or the web API.
//
// If saveConfig is true, save the new object's config to DB. Normally would not
// do this if we just loaded from DB on app startup.
func (n *NotificationHandler) NewTelegram(config []byte, saveConfig bool) (*NotifyTelegram, error) {

	nt := &NotifyTelegram{
		Enabled: true,
		apiURL:  TELEGRAM_API,
		storage: n.storage,
	}

	if config != nil {
		if err := json.Unmarshal(config, nt); err != nil {
			return nil, errors.Wrap(err, "Unable to unmarshal telegram config")
		}
	}

	if nt.Enabled && (nt.APIKey == "" || len(nt.ChatIDs) == 0) {
		return nil, errors.New("Telegram requires an API key and at least one chat id")
	}

	if saveConfig {
		if err := nt.SaveConfig(); err != nil {
			return nil, err
		}
	}

	return nt, nil
}

func (n *NotifyTelegram) IsEnabled() bool {
	return n.Enabled
}

func (n *NotifyTelegram) Send(msg string) error {

	client := &http.Client{
		Timeout: time.Second * 10,
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiURL, n.APIKey)

	var failed int

	for _, id := range n.ChatIDs {
		if err := sendMessage(client, endpoint, msg, id); err != nil {
			log.WithError(err).WithField("ChatId", id).Error("Unable to send telegram message")
			failed++
		}
	}

	if failed > 0 {
		return errors.Errorf("%d of %d telegram messages failed", failed, len(n.ChatIDs))
	}

	log.WithField("MSG", msg).Info("Sent Telegram Message(s)")

	return nil
}

func sendMessage(client *http.Client, endpoint, msg string, chatID int) error {

	q := url.Values{}
	q.Set("chat_id", strconv.Itoa(chatID))
	q.Set("text", msg)

	resp, err := client.PostForm(endpoint, q)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "Unable to read telegram response")
	}

	log.WithField("Resp", string(body)).Debug("Telegram Reply")

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("telegram returned %s", resp.Status)
	}

	return nil
}

func (n *NotifyTelegram) SaveConfig() error {

	config, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "Unable to marshal telegram config")
	}

	if err := n.storage.SaveNotifiersConfig(TELEGRAM, config); err != nil {
		return errors.Wrap(err, "Unable to save telegram config")
	}

	return nil
}
