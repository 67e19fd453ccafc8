package crosspost

// AccountStore is the session-scoped account registry. It is injected into
// the dispatcher and the auth handlers rather than living as process-wide
// state; the web layer provides a session-backed implementation.
type AccountStore interface {
	// Add inserts an account. Inserting a duplicate (Network, ID) is a no-op;
	// the return value reports whether the account was actually stored.
	Add(account Account) bool
	// Update replaces the stored account with the same (Network, ID). Used to
	// persist rotated credentials; it reports whether a match existed.
	Update(account Account) bool
	// Find looks up an account by network and exact external id.
	Find(network Network, id string) (Account, bool)
	// List returns the accounts for one network in insertion order.
	List(network Network) []Account
	// All returns every stored account grouped by network.
	All() map[Network][]Account
	// Clear removes all accounts (logout).
	Clear()
}

// MemoryStore is an in-memory AccountStore. It is not safe for concurrent
// use; each session owns its own store.
type MemoryStore struct {
	accounts map[Network][]Account
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[Network][]Account)}
}

func (s *MemoryStore) Add(account Account) bool {
	for _, existing := range s.accounts[account.Network] {
		if existing.ID == account.ID {
			return false
		}
	}
	s.accounts[account.Network] = append(s.accounts[account.Network], account)
	return true
}

func (s *MemoryStore) Update(account Account) bool {
	accounts := s.accounts[account.Network]
	for i, existing := range accounts {
		if existing.ID == account.ID {
			accounts[i] = account
			return true
		}
	}
	return false
}

func (s *MemoryStore) Find(network Network, id string) (Account, bool) {
	for _, account := range s.accounts[network] {
		if account.ID == id {
			return account, true
		}
	}
	return Account{}, false
}

func (s *MemoryStore) List(network Network) []Account {
	return s.accounts[network]
}

func (s *MemoryStore) All() map[Network][]Account {
	out := make(map[Network][]Account, len(s.accounts))
	for network, accounts := range s.accounts {
		if len(accounts) > 0 {
			out[network] = accounts
		}
	}
	return out
}

func (s *MemoryStore) Clear() {
	s.accounts = make(map[Network][]Account)
}
