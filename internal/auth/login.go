package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/freehub/internal/marketplace"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is returned by register and login.
type Session struct {
	Token string           `json:"token"`
	User  marketplace.User `json:"user"`
}

// Service registers users and opens sessions.
type Service struct {
	store  marketplace.Store
	tokens *Tokens
	cost   int
	now    func() time.Time
}

func NewService(store marketplace.Store, tokens *Tokens) *Service {
	return &Service{store: store, tokens: tokens, cost: bcrypt.DefaultCost, now: time.Now}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	role, ok := marketplace.ParseRole(req.Role)
	if !ok {
		return Session{}, marketplace.ValidationError{Field: "role", Msg: "must be client or provider"}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Session{}, marketplace.ValidationError{Field: "name", Msg: "is required"}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.CreateUser(ctx, marketplace.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hashed),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, marketplace.ErrDuplicate) {
			return Session{}, marketplace.ConflictError{Resource: "user", Msg: "email already registered"}
		}
		return Session{}, marketplace.StoreUnavailableError{Op: "create user", Err: err}
	}
	return s.session(user)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (Session, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, marketplace.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, marketplace.StoreUnavailableError{Op: "load user", Err: err}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.session(user)
}

// Me loads the caller's profile.
func (s *Service) Me(ctx context.Context, actor marketplace.Actor) (marketplace.User, error) {
	user, err := s.store.GetUser(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, marketplace.ErrNotFound) {
			return marketplace.User{}, marketplace.NotFoundError{Resource: "user", ID: actor.ID}
		}
		return marketplace.User{}, marketplace.StoreUnavailableError{Op: "load user", Err: err}
	}
	return user, nil
}

func (s *Service) session(u marketplace.User) (Session, error) {
	token, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: u}, nil
}
