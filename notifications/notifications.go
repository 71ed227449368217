package notifications

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"assetrewards/storage"
)

const (
	TELEGRAM = "telegram"
	EMAIL    = "email"
)

type Category int

const (
	STARTUP Category = iota + 1
	REWARDS
	PAYOUTS
	SETTLEMENT
	LEDGER
)

func (c Category) String() string {
	switch c {
	case STARTUP:
		return "startup"
	case REWARDS:
		return "rewards"
	case PAYOUTS:
		return "payouts"
	case SETTLEMENT:
		return "settlement"
	case LEDGER:
		return "ledger"
	}
	return "unknown"
}

type Notifier interface {
	IsEnabled() bool
	Send(string) error
}

type NotificationHandler struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	storage   *storage.Storage
}

// NewHandler loads any saved notifier configs from db
func NewHandler(db *storage.Storage) (*NotificationHandler, error) {

	n := &NotificationHandler{
		notifiers: make(map[string]Notifier, 2),
		storage:   db,
	}

	if err := n.LoadNotifiers(); err != nil {
		return nil, errors.Wrap(err, "Failed New Notification")
	}

	return n, nil
}

func (n *NotificationHandler) LoadNotifiers() error {

	for _, notifier := range []string{TELEGRAM, EMAIL} {

		config, err := n.storage.GetNotifiersConfig(notifier)
		if err != nil {
			return errors.Wrapf(err, "Unable to load %s config", notifier)
		}

		// Nothing saved yet
		if config == nil {
			continue
		}

		// Don't save what we just loaded
		if err := n.Configure(notifier, config, false); err != nil {
			return errors.Wrapf(err, "Unable to init %s", notifier)
		}
	}

	return nil
}

// Configure replaces a notifier from a JSON config, optionally persisting it
func (n *NotificationHandler) Configure(notifier string, config []byte, saveConfig bool) error {

	var (
		nn  Notifier
		err error
	)

	switch notifier {
	case TELEGRAM:
		nn, err = n.NewTelegram(config, saveConfig)
	case EMAIL:
		nn, err = n.NewEmail(config, saveConfig)
	default:
		return errors.New("Unknown notification type")
	}

	if err != nil {
		return err
	}

	n.mu.Lock()
	n.notifiers[notifier] = nn
	n.mu.Unlock()

	return nil
}

// SendNotification delivers message to every enabled notifier. Failures are
// logged. Each notifier bounds its own delivery time; callers should not hold
// locks across this call.
func (n *NotificationHandler) SendNotification(message string, category Category) {

	if n == nil {
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	for name, notifier := range n.notifiers {

		if !notifier.IsEnabled() {
			continue
		}

		if err := notifier.Send(message); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"Notifier": name, "Category": category.String(),
			}).Error("Unable to send notification")
		}
	}
}

// TestSend sends message through a single notifier regardless of its
// enabled flag.
func (n *NotificationHandler) TestSend(notifier string, message string) error {

	n.mu.RLock()
	nn, ok := n.notifiers[notifier]
	n.mu.RUnlock()

	if !ok {
		return errors.Errorf("Notifier %s is not configured", notifier)
	}

	return nn.Send(message)
}

func (n *NotificationHandler) GetConfig() (json.RawMessage, error) {

	n.mu.RLock()
	defer n.mu.RUnlock()

	// Return RawMessage so as not to double Marshal
	bts, err := json.Marshal(n.notifiers)
	return json.RawMessage(bts), err
}
