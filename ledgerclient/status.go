package ledgerclient

import (
	"sync"
	"time"
)

type LedgerStatus struct {
	mu sync.RWMutex

	Height     int       `json:"height"`
	Endpoint   string    `json:"endpoint"`
	IsPrimary  bool      `json:"primary"`
	LastUpdate time.Time `json:"lastupdate"`
	ErrorMsg   string    `json:"error"`
}

func (s *LedgerStatus) SetHeight(height int, endpoint string, primary bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Height = height
	s.Endpoint = endpoint
	s.IsPrimary = primary
	s.LastUpdate = time.Now().UTC()
}

func (s *LedgerStatus) SetError(e error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrorMsg = e.Error()
}

func (s *LedgerStatus) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrorMsg = ""
}

// Snapshot returns a copy safe to marshal
func (s *LedgerStatus) Snapshot() LedgerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return LedgerStatus{
		Height:     s.Height,
		Endpoint:   s.Endpoint,
		IsPrimary:  s.IsPrimary,
		LastUpdate: s.LastUpdate,
		ErrorMsg:   s.ErrorMsg,
	}
}
