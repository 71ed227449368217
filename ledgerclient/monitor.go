package ledgerclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"assetrewards/notifications"
)

// Run polls the node for its height until shutdown is closed, pushing every
// height above last onto NewHeightNotifier in ascending order. With last of
// zero only the current tip is emitted.
func (c *LedgerClient) Run(shutdown <-chan interface{}, wg *sync.WaitGroup, last int) {

	defer wg.Done()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var failing bool

	for {
		// Prefer the primary again once it recovers; call fails over if not
		c.UsePrimary()

		ctx, cancel := context.WithTimeout(context.Background(), c.pollInterval)
		tip, err := c.CurrentHeight(ctx)
		cancel()

		switch {
		case err != nil:
			c.Status.SetError(err)
			log.WithError(err).Error("Unable to fetch current height")

			if !failing && c.notifier != nil {
				c.notifier.SendNotification(fmt.Sprintf("Ledger node unreachable: %s", err), notifications.LEDGER)
			}
			failing = true

		default:
			if failing {
				log.Info("Ledger node reachable again")
			}
			failing = false

			e, _ := c.current()
			c.lock.RLock()
			primary := c.IsPrimary
			c.lock.RUnlock()

			c.Status.ClearError()
			c.Status.SetHeight(tip, e.String(), primary)

			if last == 0 {
				last = tip - 1
			}

			for h := last + 1; h <= tip; h++ {
				select {
				case c.NewHeightNotifier <- h:
					last = h
				case <-shutdown:
					return
				}
			}
		}

		select {
		case <-ticker.C:
		case <-shutdown:
			log.Info("Ledger monitor stopped")
			return
		}
	}
}
