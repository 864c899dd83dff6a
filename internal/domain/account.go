package domain

import (
	"strings"
	"time"
)

// HTTPOutgoing holds the peer endpoint this account's outgoing packets are
// sent to, with the bearer token presented to it.
type HTTPOutgoing struct {
	AuthToken string
	Endpoint  string
}

// Account is a node in the account forest. Each account owns exactly one
// ledger balance. A sub-account additionally owns credit and debt balances;
// an account with sub-accounts owns credit-extended and lent balances.
type Account struct {
	ID               string
	AssetCode        string
	AssetScale       uint32
	BalanceID        string
	Disabled         bool
	MaxPacketAmount  *uint64
	SuperAccountID   *string
	IncomingTokens   []string
	Outgoing         *HTTPOutgoing
	StaticILPAddress string

	// Set only on sub-accounts.
	CreditBalanceID *string
	DebtBalanceID   *string

	// Set only on accounts with at least one sub-account.
	CreditExtendedBalanceID *string
	LentBalanceID           *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsSubAccount reports whether the account has a super-account.
func (a *Account) IsSubAccount() bool {
	return a.SuperAccountID != nil
}

// Validate checks invariants on the account record itself.
func (a *Account) Validate() error {
	if a.SuperAccountID != nil && *a.SuperAccountID == a.ID {
		return ErrInvalidSuperAccount
	}
	if hasDuplicateTokens(a.IncomingTokens) {
		return ErrDuplicateIncomingToken
	}
	return nil
}

func hasDuplicateTokens(tokens []string) bool {
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			return true
		}
		seen[t] = true
	}
	return false
}

// AccountChain is an account with its materialized ancestor chain, ordered
// nearest super-account first up to the root.
type AccountChain struct {
	Account
	SuperAccounts []*Account
}

// HasSuperAccount reports whether id is a strict ancestor of the account.
// The account itself never counts.
func (c *AccountChain) HasSuperAccount(id string) bool {
	for _, super := range c.SuperAccounts {
		if super.ID == id {
			return true
		}
	}
	return false
}

// SuperAccount returns the immediate super-account, or nil for a root.
func (c *AccountChain) SuperAccount() *Account {
	if len(c.SuperAccounts) == 0 {
		return nil
	}
	return c.SuperAccounts[0]
}

// MatchesDestinationAddress reports whether destination equals address or
// is address with a ".suffix" appended (ILP address-prefix semantics).
func MatchesDestinationAddress(address, destination string) bool {
	if address == "" {
		return false
	}
	if destination == address {
		return true
	}
	return strings.HasPrefix(destination, address+".")
}
