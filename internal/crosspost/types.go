package crosspost

import "context"

// Network identifies one of the supported social networks.
type Network string

const (
	NetworkTwitter Network = "twitter"
	NetworkBluesky Network = "bluesky"
	NetworkMisskey Network = "misskey"
)

// KnownNetwork reports whether n is one of the supported networks.
func KnownNetwork(n Network) bool {
	switch n {
	case NetworkTwitter, NetworkBluesky, NetworkMisskey:
		return true
	}
	return false
}

// Visibility controls who can see a Misskey note.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityHome      Visibility = "home"
	VisibilityFollowers Visibility = "followers"
	VisibilitySpecified Visibility = "specified"
)

// Credential is one arm of the per-network credential union. Each network
// package provides its own implementation; the concrete type is resolved
// once when the account is created, so publishers never inspect loosely
// typed token blobs.
type Credential interface {
	CredentialNetwork() Network
}

// Account is one authenticated identity on one network. Within a session
// (Network, ID) is unique; inserting a duplicate is a no-op.
type Account struct {
	Network     Network
	ID          string
	Username    string
	DisplayName string
	Credential  Credential
}

// Target selects one stored account for publishing.
type Target struct {
	Network   Network
	AccountID string
}

// Image is a normalized upload: raw bytes plus a content type.
type Image struct {
	Data        []byte
	ContentType string
}

// Request is one user-submitted publish action. It exists only for the
// duration of a single submission.
type Request struct {
	Text              string
	Targets           []Target
	Images            []Image
	MisskeyVisibility Visibility
}

// Status classifies a publish outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Outcome is the per-target result produced by the dispatcher.
type Outcome struct {
	Network Network
	Status  Status
	Message string
}

// Publisher posts one request to one account on one network.
type Publisher interface {
	Network() Network
	Publish(ctx context.Context, req Request) error
}

// PublisherFactory builds a Publisher bound to a stored account. It returns
// an error when the account's credential does not match the network.
type PublisherFactory func(account Account) (Publisher, error)
