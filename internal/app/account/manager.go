// Package account provides signup, login and logout against the remote
// document store.
package account

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/vibestream/internal/domain/user"
)

const minPasswordLength = 6

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("password or email incorrect")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrMissingField       = errors.New("name and email are required")
)

// Store reads and writes whole JSON documents.
type Store interface {
	Read(ctx context.Context, name string, v any) (bool, error)
	Write(ctx context.Context, name string, v any) error
}

// Session receives the logged-in user's data.
type Session interface {
	Hydrate(profile user.Profile, data user.PrivateData)
	Logout(ctx context.Context)
}

// Config represents account manager configuration.
type Config struct {
	Cost int              // bcrypt cost
	Now  func() time.Time // clock for account creation times
}

// Manager manages accounts in the global user list.
type Manager struct {
	// serializes read-modify-write of the user list from this process
	mu sync.Mutex

	store   Store
	session Session
	config  Config
}

// NewManager creates a new account manager.
func NewManager(store Store, session Session, config Config) *Manager {
	if config.Cost == 0 {
		config.Cost = bcrypt.DefaultCost
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Manager{store: store, session: session, config: config}
}

// Signup creates an account and logs it in.
func (m *Manager) Signup(ctx context.Context, name, email, password string) (user.Profile, error) {
	name = strings.TrimSpace(name)
	email = user.NormalizeEmail(email)
	if name == "" || email == "" {
		return user.Profile{}, ErrMissingField
	}
	if len(password) < minPasswordLength {
		return user.Profile{}, ErrWeakPassword
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	accounts, err := m.readAccounts(ctx)
	if err != nil {
		return user.Profile{}, err
	}
	if _, ok := findAccount(accounts, email); ok {
		return user.Profile{}, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.config.Cost)
	if err != nil {
		return user.Profile{}, errors.Wrap(err, "failed to hash password")
	}

	account := user.Account{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    m.config.Now().UnixMilli(),
	}
	accounts = append(accounts, account)
	if err := m.store.Write(ctx, user.UserListDocument, accounts); err != nil {
		return user.Profile{}, errors.Wrap(err, "failed to save user list")
	}

	data := user.PrivateData{UpdatedAt: m.config.Now().UnixMilli()}
	if err := m.store.Write(ctx, user.DocumentName(email), data); err != nil {
		return user.Profile{}, errors.Wrap(err, "failed to create user data")
	}

	profile := account.Profile()
	m.session.Hydrate(profile, data)
	zlog.Info().Msgf("account: signed up: email=%s", email)
	return profile, nil
}

// Login verifies the credentials and hydrates the session with the user's
// private data. A missing private document means an empty one.
func (m *Manager) Login(ctx context.Context, email, password string) (user.Profile, error) {
	email = user.NormalizeEmail(email)
	if email == "" || password == "" {
		return user.Profile{}, ErrInvalidCredentials
	}

	var (
		accounts []user.Account
		data     user.PrivateData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accounts, err = m.readAccounts(gctx)
		return err
	})
	g.Go(func() error {
		if _, err := m.store.Read(gctx, user.DocumentName(email), &data); err != nil {
			return errors.Wrap(err, "failed to read user data")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return user.Profile{}, err
	}

	account, ok := findAccount(accounts, email)
	if !ok {
		return user.Profile{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return user.Profile{}, ErrInvalidCredentials
	}

	profile := account.Profile()
	m.session.Hydrate(profile, data)
	zlog.Info().Msgf("account: logged in: email=%s playlists=%d liked=%d",
		email, len(data.Playlists), len(data.LikedSongs))
	return profile, nil
}

// Logout pushes pending changes and clears the session user.
func (m *Manager) Logout(ctx context.Context) {
	m.session.Logout(ctx)
	zlog.Info().Msg("account: logged out")
}

func (m *Manager) readAccounts(ctx context.Context) ([]user.Account, error) {
	var accounts []user.Account
	if _, err := m.store.Read(ctx, user.UserListDocument, &accounts); err != nil {
		return nil, errors.Wrap(err, "failed to read user list")
	}
	return accounts, nil
}

func findAccount(accounts []user.Account, email string) (user.Account, bool) {
	return lo.Find(accounts, func(a user.Account) bool {
		return user.NormalizeEmail(a.Email) == email
	})
}
