package crosspost

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tnmt-1/sns-multi-posts/internal/logutil"
)

// DefaultTaskTimeout bounds one publish task so a hung upstream call cannot
// stall the aggregation forever.
const DefaultTaskTimeout = 60 * time.Second

// ResultKind styles the user-facing summary.
type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultWarning ResultKind = "warning"
)

// AccountUpdater is implemented by publishers that rotate a credential during
// Publish (a token refresh). The dispatcher persists the updated account once
// all tasks settle; losing a rotated pair would strand the account.
type AccountUpdater interface {
	UpdatedAccount() (Account, bool)
}

// Dispatcher fans one publish request out to every resolved target and
// aggregates per-target outcomes. One target's failure never aborts the
// others.
type Dispatcher struct {
	factories map[Network]PublisherFactory
	timeout   time.Duration
}

// NewDispatcher returns a dispatcher with the given per-task timeout.
// A zero or negative timeout falls back to DefaultTaskTimeout.
func NewDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &Dispatcher{
		factories: make(map[Network]PublisherFactory),
		timeout:   timeout,
	}
}

// Register binds a publisher factory to a network.
func (d *Dispatcher) Register(network Network, factory PublisherFactory) {
	d.factories[network] = factory
}

// Dispatch resolves each target against the store, runs one publish task per
// resolved target concurrently, and returns the outcomes in target order.
// Targets that do not resolve to a stored account (a stale checkbox after
// logout, for example) become error outcomes rather than silent drops.
func (d *Dispatcher) Dispatch(ctx context.Context, store AccountStore, req Request) []Outcome {
	outcomes := make([]Outcome, len(req.Targets))
	var wg sync.WaitGroup
	var updaters []AccountUpdater

	for i, target := range req.Targets {
		account, ok := store.Find(target.Network, target.AccountID)
		if !ok {
			err := AuthError{Network: target.Network, Reason: fmt.Sprintf("no authenticated account %q", target.AccountID)}
			logutil.Errorf("skipping unresolved target: %v", err)
			outcomes[i] = errorOutcome(target.Network, err)
			continue
		}

		factory, ok := d.factories[target.Network]
		if !ok {
			err := AuthError{Network: target.Network, Reason: "network not supported"}
			outcomes[i] = errorOutcome(target.Network, err)
			continue
		}

		publisher, err := factory(account)
		if err != nil {
			logutil.Errorf("building %s publisher for %s: %v", target.Network, account.Username, err)
			outcomes[i] = errorOutcome(target.Network, err)
			continue
		}

		if updater, ok := publisher.(AccountUpdater); ok {
			updaters = append(updaters, updater)
		}

		wg.Add(1)
		go func(i int, network Network, username string, publisher Publisher) {
			defer wg.Done()
			taskCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			if err := publisher.Publish(taskCtx, req); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					err = PublishError{Network: network, Body: fmt.Sprintf("timed out after %s", d.timeout)}
				}
				logutil.Errorf("post to %s (%s) failed: %v", network, username, err)
				outcomes[i] = errorOutcome(network, err)
				return
			}
			logutil.Infof("posted to %s (%s)", network, username)
			outcomes[i] = Outcome{Network: network, Status: StatusSuccess}
		}(i, target.Network, account.Username, publisher)
	}

	wg.Wait()

	for _, updater := range updaters {
		if account, ok := updater.UpdatedAccount(); ok {
			if !store.Update(account) {
				logutil.Warnf("rotated credential for %s account %q has no stored account", account.Network, account.ID)
			}
		}
	}
	return outcomes
}

func errorOutcome(network Network, err error) Outcome {
	return Outcome{
		Network: network,
		Status:  StatusError,
		Message: fmt.Sprintf("%s: %s", errorKind(err), err.Error()),
	}
}

func errorKind(err error) string {
	var (
		validationErr ValidationError
		authErr       AuthError
		rateErr       RateLimitError
		publishErr    PublishError
	)
	switch {
	case errors.As(err, &validationErr):
		return "ValidationError"
	case errors.As(err, &authErr):
		return "AuthError"
	case errors.As(err, &rateErr):
		return "RateLimited"
	case errors.As(err, &publishErr):
		return "PublishFailed"
	}
	return "PublishFailed"
}

// Summarize builds the user-facing summary line and result kind from the
// aggregated outcomes.
func Summarize(outcomes []Outcome) (string, ResultKind) {
	var successes int
	var failed []string
	for _, outcome := range outcomes {
		if outcome.Status == StatusSuccess {
			successes++
		} else {
			failed = append(failed, string(outcome.Network))
		}
	}

	message := fmt.Sprintf("Posted to %d accounts.", successes)
	if len(failed) > 0 {
		message += fmt.Sprintf(" Failed: %s", strings.Join(failed, ", "))
		return message, ResultWarning
	}
	return message, ResultSuccess
}
