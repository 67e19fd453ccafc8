package crosspost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePublisher struct {
	network Network
	err     error
	delay   time.Duration
}

func (f *fakePublisher) Network() Network { return f.network }

func (f *fakePublisher) Publish(ctx context.Context, req Request) error {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.err
}

func fakeFactory(network Network, err error) PublisherFactory {
	return func(Account) (Publisher, error) {
		return &fakePublisher{network: network, err: err}, nil
	}
}

func storeWith(accounts ...Account) *MemoryStore {
	store := NewMemoryStore()
	for _, account := range accounts {
		store.Add(account)
	}
	return store
}

func TestDispatchIsolation(t *testing.T) {
	assert := assert.New(t)

	dispatcher := NewDispatcher(time.Second)
	dispatcher.Register(NetworkTwitter, fakeFactory(NetworkTwitter, errors.New("boom")))
	dispatcher.Register(NetworkBluesky, fakeFactory(NetworkBluesky, nil))

	store := storeWith(
		Account{Network: NetworkTwitter, ID: "1", Username: "t"},
		Account{Network: NetworkBluesky, ID: "2", Username: "b"},
	)
	req := Request{
		Text: "hello",
		Targets: []Target{
			{Network: NetworkTwitter, AccountID: "1"},
			{Network: NetworkBluesky, AccountID: "2"},
		},
	}

	outcomes := dispatcher.Dispatch(context.Background(), store, req)

	assert.Len(outcomes, 2)
	assert.Equal(StatusError, outcomes[0].Status)
	assert.Equal(NetworkTwitter, outcomes[0].Network)
	// one target's failure never blocks the other
	assert.Equal(StatusSuccess, outcomes[1].Status)
	assert.Equal(NetworkBluesky, outcomes[1].Network)

	message, kind := Summarize(outcomes)
	assert.Equal("Posted to 1 accounts. Failed: twitter", message)
	assert.Equal(ResultWarning, kind)
}

func TestDispatchUnresolvedTarget(t *testing.T) {
	assert := assert.New(t)

	dispatcher := NewDispatcher(time.Second)
	dispatcher.Register(NetworkBluesky, fakeFactory(NetworkBluesky, nil))

	store := storeWith(Account{Network: NetworkBluesky, ID: "2", Username: "b"})
	req := Request{
		Targets: []Target{
			{Network: NetworkTwitter, AccountID: "stale"},
			{Network: NetworkBluesky, AccountID: "2"},
		},
	}

	outcomes := dispatcher.Dispatch(context.Background(), store, req)

	assert.Len(outcomes, 2)
	assert.Equal(StatusError, outcomes[0].Status)
	assert.Contains(outcomes[0].Message, "AuthError")
	assert.Equal(StatusSuccess, outcomes[1].Status)
}

func TestDispatchOutcomeOrder(t *testing.T) {
	assert := assert.New(t)

	// the slow success must still land before the fast failure in the
	// outcome list
	dispatcher := NewDispatcher(time.Second)
	dispatcher.Register(NetworkMisskey, func(Account) (Publisher, error) {
		return &fakePublisher{network: NetworkMisskey, delay: 50 * time.Millisecond}, nil
	})
	dispatcher.Register(NetworkTwitter, fakeFactory(NetworkTwitter, errors.New("boom")))

	store := storeWith(
		Account{Network: NetworkMisskey, ID: "m1"},
		Account{Network: NetworkTwitter, ID: "t1"},
	)
	req := Request{
		Targets: []Target{
			{Network: NetworkMisskey, AccountID: "m1"},
			{Network: NetworkTwitter, AccountID: "t1"},
		},
	}

	outcomes := dispatcher.Dispatch(context.Background(), store, req)
	assert.Equal([]Network{NetworkMisskey, NetworkTwitter}, []Network{outcomes[0].Network, outcomes[1].Network})
	assert.Equal(StatusSuccess, outcomes[0].Status)
	assert.Equal(StatusError, outcomes[1].Status)
}

func TestDispatchTaskTimeout(t *testing.T) {
	assert := assert.New(t)

	dispatcher := NewDispatcher(20 * time.Millisecond)
	dispatcher.Register(NetworkMisskey, func(Account) (Publisher, error) {
		return &fakePublisher{network: NetworkMisskey, delay: time.Second}, nil
	})

	store := storeWith(Account{Network: NetworkMisskey, ID: "m1"})
	req := Request{Targets: []Target{{Network: NetworkMisskey, AccountID: "m1"}}}

	outcomes := dispatcher.Dispatch(context.Background(), store, req)
	assert.Equal(StatusError, outcomes[0].Status)
	assert.Contains(outcomes[0].Message, "timed out")
}

func TestDispatchDuplicateTargets(t *testing.T) {
	assert := assert.New(t)

	dispatcher := NewDispatcher(time.Second)
	dispatcher.Register(NetworkMisskey, fakeFactory(NetworkMisskey, nil))

	store := storeWith(Account{Network: NetworkMisskey, ID: "m1"})
	req := Request{
		Targets: []Target{
			{Network: NetworkMisskey, AccountID: "m1"},
			{Network: NetworkMisskey, AccountID: "m1"},
		},
	}

	outcomes := dispatcher.Dispatch(context.Background(), store, req)
	assert.Len(outcomes, 2)

	message, kind := Summarize(outcomes)
	assert.Equal("Posted to 2 accounts.", message)
	assert.Equal(ResultSuccess, kind)
}

type rotatingCredential struct {
	Token string
}

func (rotatingCredential) CredentialNetwork() Network { return NetworkTwitter }

// rotatingPublisher swaps its account credential during Publish, the way a
// token refresh does.
type rotatingPublisher struct {
	account Account
	updated *Account
}

func (f *rotatingPublisher) Network() Network { return NetworkTwitter }

func (f *rotatingPublisher) Publish(ctx context.Context, req Request) error {
	account := f.account
	account.Credential = rotatingCredential{Token: "rotated"}
	f.updated = &account
	return nil
}

func (f *rotatingPublisher) UpdatedAccount() (Account, bool) {
	if f.updated == nil {
		return Account{}, false
	}
	return *f.updated, true
}

func TestDispatchPersistsRotatedCredential(t *testing.T) {
	assert := assert.New(t)

	dispatcher := NewDispatcher(time.Second)
	dispatcher.Register(NetworkTwitter, func(account Account) (Publisher, error) {
		return &rotatingPublisher{account: account}, nil
	})

	store := storeWith(Account{
		Network:    NetworkTwitter,
		ID:         "1",
		Username:   "alice",
		Credential: rotatingCredential{Token: "stale"},
	})
	req := Request{Targets: []Target{{Network: NetworkTwitter, AccountID: "1"}}}

	outcomes := dispatcher.Dispatch(context.Background(), store, req)
	assert.Equal(StatusSuccess, outcomes[0].Status)

	// the rotated pair replaces the stored one; the stale token is gone
	account, ok := store.Find(NetworkTwitter, "1")
	assert.True(ok)
	assert.Equal(rotatingCredential{Token: "rotated"}, account.Credential)
}

func TestSummarizeFailureNames(t *testing.T) {
	assert := assert.New(t)

	outcomes := []Outcome{
		{Network: NetworkTwitter, Status: StatusError, Message: "x"},
		{Network: NetworkBluesky, Status: StatusSuccess},
		{Network: NetworkMisskey, Status: StatusError, Message: "y"},
	}
	message, kind := Summarize(outcomes)
	assert.Equal("Posted to 1 accounts. Failed: twitter, misskey", message)
	assert.Equal(ResultWarning, kind)
}
