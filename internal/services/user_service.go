package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/farmcart/api/internal/domain"
	"github.com/farmcart/api/internal/repositories"
)

var (
	// ErrUserInvalidInput signals the caller provided invalid account data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserExists indicates an account is already registered for the mobile number.
	ErrUserExists = errors.New("user: account already exists")
	// ErrInvalidCredentials indicates the mobile/password pair did not match.
	ErrInvalidCredentials = errors.New("user: invalid credentials")
	// ErrUserNotFound indicates the account could not be located.
	ErrUserNotFound = errors.New("user: not found")
)

const userIDPrefix = "usr_"

// TokenIssuer mints signed session tokens for authenticated users.
type TokenIssuer interface {
	Issue(user User, now time.Time) (token string, expiresAt time.Time, err error)
}

// UserServiceDeps bundles collaborators required to construct the user service.
type UserServiceDeps struct {
	Users  repositories.UserRepository
	Tokens TokenIssuer
	// AdminSetupKey promotes registrations carrying the matching key to the
	// admin role. Empty disables admin self-registration.
	AdminSetupKey string
	BcryptCost    int
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users         repositories.UserRepository
	tokens        TokenIssuer
	adminSetupKey string
	bcryptCost    int
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("user service: token issuer is required")
	}

	cost := deps.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &userService{
		users:         deps.Users,
		tokens:        deps.Tokens,
		adminSetupKey: strings.TrimSpace(deps.AdminSetupKey),
		bcryptCost:    cost,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *userService) Register(ctx context.Context, cmd RegisterUserCommand) (User, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrUserInvalidInput)
	}
	mobile := strings.TrimSpace(cmd.Mobile)
	if mobile == "" {
		return User{}, fmt.Errorf("%w: mobile is required", ErrUserInvalidInput)
	}
	if len(cmd.Password) < 6 {
		return User{}, fmt.Errorf("%w: password must be at least 6 characters", ErrUserInvalidInput)
	}

	if _, err := s.users.FindByMobile(ctx, mobile); err == nil {
		return User{}, fmt.Errorf("%w: %s", ErrUserExists, mobile)
	} else {
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			return User{}, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("user: hash password: %w", err)
	}

	role := domain.RoleCustomer
	if s.adminSetupKey != "" && strings.TrimSpace(cmd.AdminSetupKey) == s.adminSetupKey {
		role = domain.RoleAdmin
	}

	user := User{
		ID:           userIDPrefix + s.newID(),
		Name:         name,
		Mobile:       mobile,
		Email:        strings.TrimSpace(cmd.Email),
		PasswordHash: string(hash),
		Role:         role,
		Address:      cmd.Address,
		CreatedAt:    s.clock(),
	}

	if err := s.users.Insert(ctx, user); err != nil {
		return User{}, err
	}

	s.logger(ctx, "user.registered", map[string]any{
		"userId": user.ID,
		"role":   string(user.Role),
	})
	return user, nil
}

func (s *userService) Authenticate(ctx context.Context, cmd LoginCommand) (AuthSession, error) {
	mobile := strings.TrimSpace(cmd.Mobile)
	if mobile == "" || cmd.Password == "" {
		return AuthSession{}, fmt.Errorf("%w: mobile and password are required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByMobile(ctx, mobile)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return AuthSession{}, ErrInvalidCredentials
		}
		return AuthSession{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(cmd.Password)); err != nil {
		return AuthSession{}, ErrInvalidCredentials
	}

	now := s.clock()
	token, expiresAt, err := s.tokens.Issue(user, now)
	if err != nil {
		return AuthSession{}, fmt.Errorf("user: issue token: %w", err)
	}

	return AuthSession{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (User, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func (s *userService) UpdateAddress(ctx context.Context, cmd UpdateAddressCommand) (User, error) {
	id := strings.TrimSpace(cmd.UserID)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}

	user.Address = cmd.Address
	if err := s.users.Update(ctx, user); err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func (s *userService) RegisterDeviceToken(ctx context.Context, cmd RegisterDeviceTokenCommand) error {
	id := strings.TrimSpace(cmd.UserID)
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	token := strings.TrimSpace(cmd.Token)
	if token == "" {
		return fmt.Errorf("%w: device token is required", ErrUserInvalidInput)
	}

	if err := s.users.AddDeviceToken(ctx, id, token); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *userService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrUserNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("user: repository unavailable: %w", err)
		}
	}
	return err
}
