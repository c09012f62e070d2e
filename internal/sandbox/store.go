package sandbox

import (
	"sync"
	"time"
)

// Account is a prepaid card known to the sandbox
type Account struct {
	ICCID        string
	PasswordHash string
	Plan         *Plan // nil when no package is active
}

// Plan is an active data package
type Plan struct {
	Period     int // Days
	Expiration time.Time
	TotalMiB   int64
	UsedMiB    int64
}

// AccountStore looks up accounts by card number. A missing account is (nil, nil).
type AccountStore interface {
	GetAccount(iccid string) (*Account, error)
}

// MemoryStore is an AccountStore backed by a map
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewMemoryStore creates a store holding accounts
func NewMemoryStore(accounts ...*Account) *MemoryStore {
	s := &MemoryStore{accounts: make(map[string]*Account)}
	for _, a := range accounts {
		s.Put(a)
	}
	return s
}

// Put adds or replaces an account
func (s *MemoryStore) Put(a *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ICCID] = a
}

func (s *MemoryStore) GetAccount(iccid string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[iccid], nil
}
