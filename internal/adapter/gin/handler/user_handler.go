package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"user-api/internal/usecase/user"
	pkgerrors "user-api/pkg/errors"
	"user-api/pkg/logger"
)

// UserHandler handles HTTP requests for user operations
type UserHandler struct {
	uc           user.Usecase
	log          *zap.Logger
	exposeErrors bool
}

// Option configures a UserHandler.
type Option func(*UserHandler)

// WithErrorDetails makes 500 responses carry the raw error text.
func WithErrorDetails(expose bool) Option {
	return func(h *UserHandler) {
		h.exposeErrors = expose
	}
}

// NewUserHandler creates a new UserHandler instance
func NewUserHandler(uc user.Usecase, log *zap.Logger, opts ...Option) *UserHandler {
	h := &UserHandler{
		uc:  uc,
		log: log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CreateUserRequest represents the HTTP request body for creating a user
type CreateUserRequest struct {
	Name  string `json:"name" binding:"required" example:"Ann"`
	Email string `json:"email" binding:"required" example:"ann@x.com"`
	Age   *int   `json:"age" binding:"required" example:"30"`
}

// UpdateUserRequest represents the HTTP request body for updating a user.
// Omitted fields keep their stored value.
type UpdateUserRequest struct {
	Name  *string `json:"name,omitempty" example:"Annie"`
	Email *string `json:"email,omitempty" example:"annie@x.com"`
	Age   *int    `json:"age,omitempty" example:"31"`
}

// LoginRequest represents the HTTP request body for login
type LoginRequest struct {
	Email string `json:"email" example:"ann@x.com"`
}

// UserResponse represents the HTTP response for user data
type UserResponse struct {
	ID    int64  `json:"id" example:"1"`
	Name  string `json:"name" example:"Ann"`
	Email string `json:"email" example:"ann@x.com"`
	Age   int    `json:"age" example:"30"`
}

// DeleteUserResponse is returned after a successful delete
type DeleteUserResponse struct {
	Message string `json:"message" example:"User deleted successfully"`
	ID      int64  `json:"id" example:"1"`
}

// LoginResponse is returned after a successful login
type LoginResponse struct {
	Message string `json:"message" example:"Login successful"`
	Name    string `json:"name" example:"Ann"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error" example:"not_found"`
	Message   string `json:"message,omitempty" example:"User not found"`
	RequestID string `json:"request_id,omitempty"`
}

func toResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Age:   u.Age,
	}
}

// ListUsers handles GET /api/users
//
//	@Summary	List users
//	@Tags		users
//	@Produce	json
//	@Success	200	{array}		UserResponse
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	resp, err := h.uc.ListUsers(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	users := make([]UserResponse, len(resp.Users))
	for i := range resp.Users {
		users[i] = toResponse(&resp.Users[i])
	}

	c.JSON(http.StatusOK, users)
}

// GetUser handles GET /api/users/:id
//
//	@Summary	Get a user by id
//	@Tags		users
//	@Produce	json
//	@Param		id	path		int	true	"User ID"
//	@Success	200	{object}	UserResponse
//	@Failure	400	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	resp, err := h.uc.GetUser(c.Request.Context(), user.GetUserRequest{ID: id})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(resp))
}

// CreateUser handles POST /api/users
//
//	@Summary	Create a user
//	@Tags		users
//	@Accept		json
//	@Produce	json
//	@Param		user	body		CreateUserRequest	true	"User to create"
//	@Success	201		{object}	UserResponse
//	@Failure	400		{object}	ErrorResponse
//	@Failure	500		{object}	ErrorResponse
//	@Router		/api/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	resp, err := h.uc.CreateUser(c.Request.Context(), user.CreateUserRequest{
		Name:  req.Name,
		Email: req.Email,
		Age:   *req.Age,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toResponse(resp))
}

// UpdateUser handles PUT /api/users/:id
//
//	@Summary	Update a user
//	@Tags		users
//	@Accept		json
//	@Produce	json
//	@Param		id		path		int					true	"User ID"
//	@Param		user	body		UpdateUserRequest	true	"Fields to overwrite"
//	@Success	200		{object}	UserResponse
//	@Failure	400		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Failure	500		{object}	ErrorResponse
//	@Router		/api/users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	resp, err := h.uc.UpdateUser(c.Request.Context(), user.UpdateUserRequest{
		ID:    id,
		Name:  req.Name,
		Email: req.Email,
		Age:   req.Age,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(resp))
}

// DeleteUser handles DELETE /api/users/:id
//
//	@Summary	Delete a user
//	@Tags		users
//	@Produce	json
//	@Param		id	path		int	true	"User ID"
//	@Success	200	{object}	DeleteUserResponse
//	@Failure	400	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	resp, err := h.uc.DeleteUser(c.Request.Context(), user.DeleteUserRequest{ID: id})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, DeleteUserResponse{
		Message: "User deleted successfully",
		ID:      resp.ID,
	})
}

// Login handles POST /api/users/login.
// It only checks that the email belongs to a stored user.
//
//	@Summary	Log in by email
//	@Tags		users
//	@Accept		json
//	@Produce	json
//	@Param		credentials	body		LoginRequest	true	"Email to look up"
//	@Success	200			{object}	LoginResponse
//	@Failure	400			{object}	ErrorResponse
//	@Failure	500			{object}	ErrorResponse
//	@Router		/api/users/login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	resp, err := h.uc.Login(c.Request.Context(), user.LoginRequest{Email: req.Email})
	if err != nil {
		var validationErr *pkgerrors.ValidationError
		var notFoundErr *pkgerrors.NotFoundError
		switch {
		case errors.As(err, &validationErr):
			h.respondError(c, http.StatusBadRequest, "validation_error", validationErr.Message)
		case errors.As(err, &notFoundErr):
			h.respondError(c, http.StatusBadRequest, "user_not_found", notFoundErr.Error())
		default:
			h.handleError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Message: "Login successful",
		Name:    resp.Name,
	})
}

func (h *UserHandler) parseID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		logger.WithContext(c.Request.Context(), h.log).Warn("Invalid user ID", zap.String("id", idStr), zap.Error(err))
		h.respondError(c, http.StatusBadRequest, "invalid_id", "User ID must be a valid number")
		return 0, false
	}
	return id, true
}

func (h *UserHandler) badRequest(c *gin.Context, err error) {
	logger.WithContext(c.Request.Context(), h.log).Warn("Invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
	h.respondError(c, http.StatusBadRequest, "validation_error", bindingMessage(err))
}

// handleError converts usecase errors to appropriate HTTP responses
func (h *UserHandler) handleError(c *gin.Context, err error) {
	log := logger.WithContext(c.Request.Context(), h.log)

	status := http.StatusInternalServerError
	var statuser pkgerrors.HTTPStatuser
	if errors.As(err, &statuser) {
		status = statuser.HTTPStatus()
	}

	switch status {
	case http.StatusBadRequest:
		log.Warn("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
		msg := err.Error()
		var validationErr *pkgerrors.ValidationError
		if errors.As(err, &validationErr) {
			msg = validationErr.Message
		}
		h.respondError(c, status, "validation_error", msg)
	case http.StatusNotFound:
		log.Info("resource not found", zap.String("path", c.FullPath()), zap.Error(err))
		h.respondError(c, status, "not_found", err.Error())
	default:
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg := "An internal error occurred"
		if h.exposeErrors {
			msg = err.Error()
		}
		h.respondError(c, http.StatusInternalServerError, "internal_error", msg)
	}
}

func (h *UserHandler) respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   msg,
		RequestID: logger.GetRequestID(c.Request.Context()),
	})
}

// bindingMessage turns a binding failure into a client-facing message.
func bindingMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return "Invalid request body"
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		if e.Tag() == "required" {
			messages = append(messages, fmt.Sprintf("%s is required", e.Field()))
			continue
		}
		messages = append(messages, fmt.Sprintf("%s is invalid", e.Field()))
	}
	return strings.Join(messages, ", ")
}
