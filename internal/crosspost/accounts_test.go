package crosspost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore(t *testing.T) {
	assert := assert.New(t)

	store := NewMemoryStore()

	t.Run("insert and find", func(t *testing.T) {
		assert.True(store.Add(Account{Network: NetworkTwitter, ID: "1", Username: "alice"}))
		account, ok := store.Find(NetworkTwitter, "1")
		assert.True(ok)
		assert.Equal("alice", account.Username)
	})

	t.Run("duplicate insert is a no-op", func(t *testing.T) {
		assert.False(store.Add(Account{Network: NetworkTwitter, ID: "1", Username: "impostor"}))
		assert.Len(store.List(NetworkTwitter), 1)
		account, _ := store.Find(NetworkTwitter, "1")
		assert.Equal("alice", account.Username)
	})

	t.Run("update replaces the stored account", func(t *testing.T) {
		assert.True(store.Update(Account{Network: NetworkTwitter, ID: "1", Username: "alice", DisplayName: "Alice"}))
		account, _ := store.Find(NetworkTwitter, "1")
		assert.Equal("Alice", account.DisplayName)
	})

	t.Run("update of an unknown account reports false", func(t *testing.T) {
		assert.False(store.Update(Account{Network: NetworkTwitter, ID: "missing"}))
	})

	t.Run("same id on another network is distinct", func(t *testing.T) {
		assert.True(store.Add(Account{Network: NetworkMisskey, ID: "1", Username: "alice@mi"}))
		assert.Len(store.All(), 2)
	})

	t.Run("clear removes everything", func(t *testing.T) {
		store.Clear()
		assert.Empty(store.All())
		_, ok := store.Find(NetworkTwitter, "1")
		assert.False(ok)
	})
}
