package main

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// handleNewHeight runs the pipeline's per-height work and records the height
// so a restart resumes from the next one
func (s *AssetRewardsServer) handleNewHeight(ctx context.Context, wg *sync.WaitGroup, height int) {

	// Decrement waitGroup on exit
	defer wg.Done()

	// Handle panic gracefully
	defer func() {
		if r := recover(); r != nil {
			log.WithField("Message", r).Error("Panic recovered in handleNewHeight")
		}
	}()

	log.WithField("Height", height).Debug("New height")

	s.PayoutsHandler.HandleNewHeight(ctx, height)

	if err := s.Storage.SetLastHeight(height); err != nil {
		log.WithError(err).WithField("Height", height).Error("Unable to save last height")
	}
}
