package identity

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials indicates login failure.
var ErrInvalidCredentials = errors.New("identity: invalid credentials")

// ActorStore abstracts actor persistence for the service.
type ActorStore interface {
	GetActor(ctx context.Context, id int64) (Actor, error)
	FindByEmail(ctx context.Context, email string) (Actor, error)
	DeleteActor(ctx context.Context, id int64) error
}

// Service wraps actor lookup and authentication rules.
type Service struct {
	store ActorStore
}

// NewService constructs a new Service.
func NewService(store ActorStore) *Service {
	return &Service{store: store}
}

// Resolve returns the active actor for the given id.
func (s *Service) Resolve(ctx context.Context, id int64) (Actor, error) {
	actor, err := s.store.GetActor(ctx, id)
	if err != nil {
		return Actor{}, err
	}
	if !actor.IsActive {
		return Actor{}, ErrNotFound
	}
	return actor, nil
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Actor, error) {
	actor, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return Actor{}, ErrInvalidCredentials
	}
	if !actor.IsActive {
		return Actor{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(actor.PasswordHash), []byte(password)); err != nil {
		return Actor{}, ErrInvalidCredentials
	}
	return actor, nil
}

// DeleteActor removes an actor together with its dependent rows. Audit
// history survives by policy.
func (s *Service) DeleteActor(ctx context.Context, id int64) error {
	return s.store.DeleteActor(ctx, id)
}
