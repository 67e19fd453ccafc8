package web

import (
	"encoding/gob"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/tnmt-1/sns-multi-posts/internal/crosspost"
	"github.com/tnmt-1/sns-multi-posts/internal/crosspost/bluesky"
	"github.com/tnmt-1/sns-multi-posts/internal/crosspost/misskey"
	"github.com/tnmt-1/sns-multi-posts/internal/crosspost/twitter"
	"github.com/tnmt-1/sns-multi-posts/internal/logutil"
)

const (
	sessionName = "sns-multi-posts"

	keyAccounts       = "accounts"
	keyMisskeyPending = "misskey_pending"
	keyTwitterPending = "twitter_pending"
	keyFlashMessage   = "flash_message"
	keyFlashType      = "flash_type"
)

func init() {
	// the session cookie is gob-encoded; every credential arm of the union
	// must be registered
	gob.Register(map[crosspost.Network][]crosspost.Account{})
	gob.Register(crosspost.Account{})
	gob.Register(twitter.OAuth1Credential{})
	gob.Register(twitter.OAuth2Credential{})
	gob.Register(bluesky.Credential{})
	gob.Register(misskey.Credential{})
	gob.Register(misskey.AuthSession{})
	gob.Register(twitterPending{})
}

// twitterPending is the transient PKCE state between redirect and callback.
type twitterPending struct {
	State    string
	Verifier string
}

// NewSessionMiddleware builds the cookie-session middleware keyed by the
// application secret.
func NewSessionMiddleware(secret string) echo.MiddlewareFunc {
	return session.Middleware(sessions.NewCookieStore([]byte(secret)))
}

// SessionStore is the session-backed crosspost.AccountStore for one request.
// All account state lives in the browser session; there is no server-side
// datastore.
type SessionStore struct {
	c echo.Context
}

// Accounts returns the account store bound to the request session.
func Accounts(c echo.Context) *SessionStore {
	return &SessionStore{c: c}
}

func (s *SessionStore) load() map[crosspost.Network][]crosspost.Account {
	sess, err := session.Get(sessionName, s.c)
	if err != nil {
		logutil.Errorf("session read: %v", err)
		return map[crosspost.Network][]crosspost.Account{}
	}
	accounts, ok := sess.Values[keyAccounts].(map[crosspost.Network][]crosspost.Account)
	if !ok {
		return map[crosspost.Network][]crosspost.Account{}
	}
	return accounts
}

func (s *SessionStore) save(accounts map[crosspost.Network][]crosspost.Account) {
	sess, err := session.Get(sessionName, s.c)
	if err != nil {
		logutil.Errorf("session read: %v", err)
		return
	}
	sess.Values[keyAccounts] = accounts
	if err := sess.Save(s.c.Request(), s.c.Response()); err != nil {
		logutil.Errorf("session save: %v", err)
	}
}

func (s *SessionStore) Add(account crosspost.Account) bool {
	accounts := s.load()
	for _, existing := range accounts[account.Network] {
		if existing.ID == account.ID {
			return false
		}
	}
	accounts[account.Network] = append(accounts[account.Network], account)
	s.save(accounts)
	return true
}

func (s *SessionStore) Update(account crosspost.Account) bool {
	accounts := s.load()
	for i, existing := range accounts[account.Network] {
		if existing.ID == account.ID {
			accounts[account.Network][i] = account
			s.save(accounts)
			return true
		}
	}
	return false
}

func (s *SessionStore) Find(network crosspost.Network, id string) (crosspost.Account, bool) {
	for _, account := range s.load()[network] {
		if account.ID == id {
			return account, true
		}
	}
	return crosspost.Account{}, false
}

func (s *SessionStore) List(network crosspost.Network) []crosspost.Account {
	return s.load()[network]
}

func (s *SessionStore) All() map[crosspost.Network][]crosspost.Account {
	all := s.load()
	out := make(map[crosspost.Network][]crosspost.Account, len(all))
	for network, accounts := range all {
		if len(accounts) > 0 {
			out[network] = accounts
		}
	}
	return out
}

func (s *SessionStore) Clear() {
	s.save(map[crosspost.Network][]crosspost.Account{})
}

// session value helpers for transient auth state and flash messages

func sessionSet(c echo.Context, key string, value any) {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		logutil.Errorf("session read: %v", err)
		return
	}
	sess.Values[key] = value
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		logutil.Errorf("session save: %v", err)
	}
}

func sessionPop(c echo.Context, key string) (any, bool) {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return nil, false
	}
	value, ok := sess.Values[key]
	if !ok {
		return nil, false
	}
	delete(sess.Values, key)
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		logutil.Errorf("session save: %v", err)
	}
	return value, true
}

func setFlash(c echo.Context, message, kind string) {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		logutil.Errorf("session read: %v", err)
		return
	}
	sess.Values[keyFlashMessage] = message
	sess.Values[keyFlashType] = kind
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		logutil.Errorf("session save: %v", err)
	}
}

func popFlash(c echo.Context) (message, kind string) {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return "", ""
	}
	message, _ = sess.Values[keyFlashMessage].(string)
	kind, _ = sess.Values[keyFlashType].(string)
	if message == "" && kind == "" {
		return "", ""
	}
	delete(sess.Values, keyFlashMessage)
	delete(sess.Values, keyFlashType)
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		logutil.Errorf("session save: %v", err)
	}
	return message, kind
}
