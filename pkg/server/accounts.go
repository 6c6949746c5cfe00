package server

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/jmerrifield20/paymail/pkg/paymail"
)

// Account is a paymail address served by a ReferenceHandler.
type Account struct {
	Address paymail.Address

	// IdentityKey is returned by the pki capability.
	IdentityKey *secp256k1.PublicKey

	// PaymentKey receives funds. Destinations are P2PKH scripts for it.
	PaymentKey *secp256k1.PublicKey

	Name   string
	Avatar string
}

// AccountStore looks up served accounts.
type AccountStore interface {
	Account(ctx context.Context, addr paymail.Address) (*Account, error)
}

// MemoryAccounts is an AccountStore held in memory.
type MemoryAccounts struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewMemoryAccounts creates a MemoryAccounts holding accounts.
func NewMemoryAccounts(accounts ...*Account) (*MemoryAccounts, error) {
	m := &MemoryAccounts{accounts: make(map[string]*Account)}
	for _, a := range accounts {
		if err := m.Add(a); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func accountKey(addr paymail.Address) string {
	return strings.ToLower(addr.String())
}

// Add stores a, replacing any account with the same address.
func (m *MemoryAccounts) Add(a *Account) error {
	if a == nil || a.Address.Alias == "" || a.Address.Domain == "" {
		return fmt.Errorf("%w: account address required", paymail.ErrInvalidFormat)
	}
	if a.IdentityKey == nil {
		return fmt.Errorf("%w: account %s has no identity key", paymail.ErrInvalidFormat, a.Address)
	}
	if a.PaymentKey == nil {
		a.PaymentKey = a.IdentityKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[accountKey(a.Address)] = a
	return nil
}

// Remove deletes the account for addr.
func (m *MemoryAccounts) Remove(addr paymail.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, accountKey(addr))
}

// Account implements AccountStore.
func (m *MemoryAccounts) Account(_ context.Context, addr paymail.Address) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountKey(addr)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return a, nil
}
