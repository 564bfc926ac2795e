package devserver

import (
	"errors"
	"sync"

	"github.com/jmcleod/tokenkeeper/authapi"
)

var (
	errUsernameTaken = errors.New("username already exists")
	errEmailTaken    = errors.New("email already exists")
)

type user struct {
	ID           int64
	Username     string
	Email        string
	Role         string
	PasswordHash []byte
}

func (u *user) public() *authapi.User {
	return &authapi.User{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

type userStore struct {
	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]*user
	byUsername map[string]*user
	byEmail    map[string]*user
}

func newUserStore() *userStore {
	return &userStore{
		nextID:     1,
		byID:       make(map[int64]*user),
		byUsername: make(map[string]*user),
		byEmail:    make(map[string]*user),
	}
}

func (s *userStore) create(username, email string, hash []byte, role string) (*user, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUsername[username]; ok {
		return nil, errUsernameTaken
	}
	if _, ok := s.byEmail[email]; ok {
		return nil, errEmailTaken
	}
	if role == "" {
		role = "user"
	}
	u := &user{ID: s.nextID, Username: username, Email: email, Role: role, PasswordHash: hash}
	s.nextID++
	s.byID[u.ID] = u
	s.byUsername[username] = u
	s.byEmail[email] = u
	return u, nil
}

func (s *userStore) byName(username string) (*user, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byUsername[username]
	return u, ok
}

func (s *userStore) get(id int64) (*user, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	return u, ok
}
