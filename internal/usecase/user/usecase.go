package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	domain "user-api/internal/domain/user"
	pkgerrors "user-api/pkg/errors"
)

// Repository defines the interface for user data access operations.
// Each method issues a single statement against the users table (Update
// reads the row before writing it).
type Repository interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error)              // Create a new user
	GetByID(ctx context.Context, id int64) (*domain.User, error)                   // Retrieve user by ID
	GetByEmail(ctx context.Context, email string) (*domain.User, error)            // Retrieve user by email
	Update(ctx context.Context, id int64, ch domain.Changes) (*domain.User, error) // Overwrite supplied fields
	Delete(ctx context.Context, id int64) error                                    // Delete user by ID
	List(ctx context.Context) ([]domain.User, error)                               // List all users
}

// Service implements the user operations on top of a Repository.
// It validates input and maps repository results; it holds no state between calls.
type Service struct {
	repo     Repository          // Repository for data access
	log      *zap.Logger         // Logger for structured logging
	validate *validator.Validate // Validator for request validation
}

// New creates a new user Service with the provided repository and logger.
func New(r Repository, log *zap.Logger) *Service {
	return &Service{repo: r, log: log, validate: validator.New()}
}

var _ Usecase = (*Service)(nil)

// formatValidationError converts validator.ValidationErrors into a ValidationError.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	var messages []string
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", e.Field()))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s characters", e.Field(), e.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", e.Field()))
		}
	}

	field := ""
	if len(validationErrors) == 1 {
		field = strings.ToLower(validationErrors[0].Field())
	}
	return pkgerrors.NewValidationError(field, strings.Join(messages, ", "))
}

func userNotFound() error {
	return pkgerrors.NewNotFoundError("user", "User not found")
}

// CreateUser validates the request and stores a new user.
// Email uniqueness is left to the database unique index.
func (s *Service) CreateUser(ctx context.Context, in CreateUserRequest) (*User, error) {
	s.log.Info("creating user")

	if err := s.validate.Struct(in); err != nil {
		s.log.Warn("validate failed", zap.Error(err))
		return nil, formatValidationError(err)
	}

	u, err := s.repo.Create(ctx, &domain.User{
		Name:  in.Name,
		Email: in.Email,
		Age:   in.Age,
	})
	if err != nil {
		s.log.Warn("failed to create user", zap.Error(err))
		return nil, err
	}

	return fromDomain(u), nil
}

// UpdateUser overwrites the supplied fields of an existing user.
func (s *Service) UpdateUser(ctx context.Context, in UpdateUserRequest) (*User, error) {
	s.log.Info("updating user", zap.Int64("id", in.ID))

	if in.ID <= 0 {
		s.log.Warn("update user for non-positive id", zap.Int64("id", in.ID))
		return nil, userNotFound()
	}

	if err := s.validate.Struct(in); err != nil {
		s.log.Warn("validate failed", zap.Error(err))
		return nil, formatValidationError(err)
	}

	u, err := s.repo.Update(ctx, in.ID, domain.Changes{
		Name:  in.Name,
		Email: in.Email,
		Age:   in.Age,
	})
	if err != nil {
		s.log.Warn("failed to update user", zap.Int64("id", in.ID), zap.Error(err))
		return nil, err
	}

	return fromDomain(u), nil
}

// DeleteUser removes a user by id.
func (s *Service) DeleteUser(ctx context.Context, in DeleteUserRequest) (*DeleteUserResponse, error) {
	s.log.Info("deleting user", zap.Int64("id", in.ID))

	if in.ID <= 0 {
		s.log.Warn("delete user for non-positive id", zap.Int64("id", in.ID))
		return nil, userNotFound()
	}

	if err := s.repo.Delete(ctx, in.ID); err != nil {
		s.log.Warn("failed to delete user", zap.Int64("id", in.ID), zap.Error(err))
		return nil, err
	}

	return &DeleteUserResponse{ID: in.ID}, nil
}

// GetUser retrieves a user by ID.
func (s *Service) GetUser(ctx context.Context, in GetUserRequest) (*User, error) {
	if in.ID <= 0 {
		s.log.Warn("get user for non-positive id", zap.Int64("id", in.ID))
		return nil, userNotFound()
	}

	u, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		s.log.Warn("failed to get user", zap.Int64("id", in.ID), zap.Error(err))
		return nil, err
	}

	return fromDomain(u), nil
}

// ListUsers returns every stored user.
func (s *Service) ListUsers(ctx context.Context) (*ListUsersResponse, error) {
	s.log.Info("listing users")

	domainUsers, err := s.repo.List(ctx)
	if err != nil {
		s.log.Error("failed to list users", zap.Error(err))
		return nil, err
	}

	users := make([]User, len(domainUsers))
	for i := range domainUsers {
		users[i] = *fromDomain(&domainUsers[i])
	}

	return &ListUsersResponse{Users: users}, nil
}

// Login confirms that a user with the given email exists.
// It performs no credential verification.
func (s *Service) Login(ctx context.Context, in LoginRequest) (*LoginResponse, error) {
	s.log.Debug("checking user login")

	if err := s.validate.Struct(in); err != nil {
		s.log.Warn("validate failed", zap.Error(err))
		return nil, formatValidationError(err)
	}

	u, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		s.log.Warn("login lookup failed", zap.Error(err))
		return nil, err
	}

	s.log.Info("user found for login", zap.Int64("id", u.ID))
	return &LoginResponse{ID: u.ID, Name: u.Name}, nil
}
