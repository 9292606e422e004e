package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-jobboard-trust/internal/domain"
)

type UserDirectory struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func NewUserDirectory() *UserDirectory {
	return &UserDirectory{users: make(map[string]domain.User)}
}

func (d *UserDirectory) Put(_ context.Context, u *domain.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.UserID] = *u
	return nil
}

func (d *UserDirectory) Get(_ context.Context, userID string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (d *UserDirectory) SetVerified(_ context.Context, userID string, ch domain.Channel) error {
	return d.update(userID, func(u *domain.User) {
		switch ch {
		case domain.ChannelEmail:
			u.EmailVerified = true
		case domain.ChannelPhone:
			u.PhoneVerified = true
		}
	})
}

func (d *UserDirectory) SetApproved(_ context.Context, userID string, approved bool) error {
	return d.update(userID, func(u *domain.User) { u.IsApproved = approved })
}

func (d *UserDirectory) update(userID string, fn func(*domain.User)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	d.users[userID] = u
	return nil
}

// Load reads a JSON array of users from r, as written by the users table
// export, and stores each one. Every user needs an id and a known role.
func (d *UserDirectory) Load(r io.Reader) (int, error) {
	var users []domain.User
	if err := json.NewDecoder(r).Decode(&users); err != nil {
		return 0, fmt.Errorf("decode users: %w", err)
	}
	for i, u := range users {
		if u.UserID == "" || !domain.ValidRole(u.Role) {
			return 0, fmt.Errorf("user %d: id and a known role are required: %w", i, domain.ErrBadRequest)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range users {
		d.users[u.UserID] = u
	}
	return len(users), nil
}
