// Package auth provides user accounts and session tokens for the HTTP layer.
//
// Accounts live in memory alongside the record store; passwords are stored
// as bcrypt hashes. Sessions are HS256 JWTs carried in a cookie or an
// Authorization: Bearer header.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Account rules.
const (
	MinUsernameLength = 3
	MinPasswordLength = 6
)

var (
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUsername    = fmt.Errorf("username must be at least %d characters", MinUsernameLength)
	ErrInvalidPassword    = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// User is a registered account.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`

	passwordHash []byte
}

// Users is an in-memory account registry. Usernames are case-sensitive.
type Users struct {
	mu         sync.RWMutex
	byName     map[string]*User
	byID       map[string]*User
	bcryptCost int
}

// NewUsers creates an empty registry. A cost of 0 uses bcrypt.DefaultCost.
func NewUsers(bcryptCost int) *Users {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Users{
		byName:     make(map[string]*User),
		byID:       make(map[string]*User),
		bcryptCost: bcryptCost,
	}
}

// Register creates an account.
func (u *Users) Register(username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if len(username) < MinUsernameLength {
		return User{}, ErrInvalidUsername
	}
	if len(password) < MinPasswordLength {
		return User{}, ErrInvalidPassword
	}

	// bcrypt is slow; hash before taking the lock.
	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.byName[username]; ok {
		return User{}, ErrUserExists
	}
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		CreatedAt:    time.Now(),
		passwordHash: hash,
	}
	u.byName[username] = user
	u.byID[user.ID] = user
	return *user, nil
}

// Authenticate checks a username/password pair.
func (u *Users) Authenticate(username, password string) (User, error) {
	u.mu.RLock()
	user, ok := u.byName[strings.TrimSpace(username)]
	u.mu.RUnlock()

	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.passwordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return *user, nil
}

// Get returns the account with the given id.
func (u *Users) Get(id string) (User, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	user, ok := u.byID[id]
	if !ok {
		return User{}, false
	}
	return *user, true
}
