package service

import (
	"context"
	"fmt"

	"github.com/genericchat/backend/internal/domain"
	"github.com/genericchat/backend/internal/identity"
	"github.com/genericchat/backend/internal/security"
)

// AuthService handles registration and login. It is the application's Auth
// Provider: a successful login yields a token whose subject is the account's
// canonical key.
type AuthService struct {
	directory domain.DirectoryRepository
	tokens    *security.TokenService
	hash      *security.PasswordHasher
}

func NewAuthService(directory domain.DirectoryRepository, tokens *security.TokenService, hash *security.PasswordHasher) *AuthService {
	return &AuthService{
		directory: directory,
		tokens:    tokens,
		hash:      hash,
	}
}

type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

type LoginInput struct {
	Email    string
	Password string
}

type TokenResponse struct {
	AccessToken string
	TokenType   string
	Account     *domain.Account
}

// Register creates an account and its directory entry. Registering an email
// whose canonical key is already taken fails with ErrDuplicate, raised by the
// directory write itself so the check and the insert are one atomic step.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.Account, error) {
	if in.FirstName == "" || in.LastName == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("all fields are required: %w", domain.ErrInvalidInput)
	}
	if len(in.Password) < 6 {
		return nil, fmt.Errorf("password must be at least 6 characters: %w", domain.ErrInvalidInput)
	}

	key := identity.Canonicalize(in.Email)

	hashed, err := s.hash.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &domain.Account{
		Key:            key,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		HashedPassword: hashed,
	}

	if err := s.directory.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*TokenResponse, error) {
	key := identity.Canonicalize(in.Email)

	account, err := s.directory.AccountByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("incorrect email or password: %w", domain.ErrUnauthorized)
	}

	if err := s.hash.Verify(in.Password, account.HashedPassword); err != nil {
		return nil, fmt.Errorf("incorrect email or password: %w", domain.ErrUnauthorized)
	}

	token, err := s.tokens.CreateForAccount(account.Key)
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Account:     account,
	}, nil
}
