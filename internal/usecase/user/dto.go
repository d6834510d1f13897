package user

import domain "user-api/internal/domain/user"

// CreateUserRequest represents the request payload for creating a new user.
type CreateUserRequest struct {
	Name  string `validate:"required,max=255"`
	Email string `validate:"required,max=255"`
	Age   int
}

// UpdateUserRequest represents the request payload for updating an existing user.
// Nil fields are left unchanged.
type UpdateUserRequest struct {
	ID    int64
	Name  *string `validate:"omitnil,min=1,max=255"`
	Email *string `validate:"omitnil,max=255"`
	Age   *int
}

// DeleteUserRequest represents the request payload for deleting a user.
type DeleteUserRequest struct {
	ID int64
}

// DeleteUserResponse represents the response payload after deleting a user.
type DeleteUserResponse struct {
	ID int64
}

// GetUserRequest represents the request payload for retrieving a user.
type GetUserRequest struct {
	ID int64
}

// ListUsersResponse represents the response payload for user listing.
type ListUsersResponse struct {
	Users []User
}

// LoginRequest identifies a user by email. No credential is involved.
type LoginRequest struct {
	Email string `validate:"required"`
}

// LoginResponse represents the response payload for a successful login.
type LoginResponse struct {
	ID   int64
	Name string
}

// User represents a user DTO (Data Transfer Object) for API responses.
type User struct {
	ID    int64
	Name  string
	Email string
	Age   int
}

func fromDomain(u *domain.User) *User {
	return &User{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Age:   u.Age,
	}
}
