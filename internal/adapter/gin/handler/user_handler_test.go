package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	usecase "user-api/internal/usecase/user"
	pkgerrors "user-api/pkg/errors"
)

// MockUserUsecase is a mock implementation of user.Usecase
type MockUserUsecase struct {
	mock.Mock
}

func (m *MockUserUsecase) CreateUser(ctx context.Context, req usecase.CreateUserRequest) (*usecase.User, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.User), args.Error(1)
}

func (m *MockUserUsecase) GetUser(ctx context.Context, req usecase.GetUserRequest) (*usecase.User, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.User), args.Error(1)
}

func (m *MockUserUsecase) UpdateUser(ctx context.Context, req usecase.UpdateUserRequest) (*usecase.User, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.User), args.Error(1)
}

func (m *MockUserUsecase) DeleteUser(ctx context.Context, req usecase.DeleteUserRequest) (*usecase.DeleteUserResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.DeleteUserResponse), args.Error(1)
}

func (m *MockUserUsecase) ListUsers(ctx context.Context) (*usecase.ListUsersResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.ListUsersResponse), args.Error(1)
}

func (m *MockUserUsecase) Login(ctx context.Context, req usecase.LoginRequest) (*usecase.LoginResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.LoginResponse), args.Error(1)
}

func setupTest(t *testing.T, opts ...Option) (*gin.Engine, *UserHandler, *MockUserUsecase) {
	gin.SetMode(gin.TestMode)
	mockUsecase := new(MockUserUsecase)
	handler := NewUserHandler(mockUsecase, zaptest.NewLogger(t), opts...)

	r := gin.New()
	return r, handler, mockUsecase
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateUser(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.POST("/api/users", handler.CreateUser)

		mockUsecase.On("CreateUser", mock.Anything, usecase.CreateUserRequest{Name: "Ann", Email: "ann@x.com", Age: 30}).
			Return(&usecase.User{ID: 1, Name: "Ann", Email: "ann@x.com", Age: 30}, nil)

		w := doJSON(r, http.MethodPost, "/api/users", `{"name":"Ann","email":"ann@x.com","age":30}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.JSONEq(t, `{"id":1,"name":"Ann","email":"ann@x.com","age":30}`, w.Body.String())
		mockUsecase.AssertExpectations(t)
	})

	t.Run("Age zero is accepted", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.POST("/api/users", handler.CreateUser)

		mockUsecase.On("CreateUser", mock.Anything, usecase.CreateUserRequest{Name: "Baby", Email: "baby@x.com", Age: 0}).
			Return(&usecase.User{ID: 2, Name: "Baby", Email: "baby@x.com", Age: 0}, nil)

		w := doJSON(r, http.MethodPost, "/api/users", `{"name":"Baby","email":"baby@x.com","age":0}`)

		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("Invalid Request Body", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.POST("/api/users", handler.CreateUser)

		w := doJSON(r, http.MethodPost, "/api/users", "invalid json")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation_error", decodeError(t, w).Error)
		mockUsecase.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
	})

	t.Run("Missing Age", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.POST("/api/users", handler.CreateUser)

		w := doJSON(r, http.MethodPost, "/api/users", `{"name":"Ann","email":"ann@x.com"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Age is required", decodeError(t, w).Message)
		mockUsecase.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
	})

	t.Run("Duplicate Email", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.POST("/api/users", handler.CreateUser)

		mockUsecase.On("CreateUser", mock.Anything, mock.Anything).
			Return(nil, pkgerrors.NewValidationError("email", "email already exists"))

		w := doJSON(r, http.MethodPost, "/api/users", `{"name":"Ann","email":"ann@x.com","age":30}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "validation_error", resp.Error)
		assert.Equal(t, "email already exists", resp.Message)
	})

	t.Run("Usecase Error hides details", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.POST("/api/users", handler.CreateUser)

		mockUsecase.On("CreateUser", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))

		w := doJSON(r, http.MethodPost, "/api/users", `{"name":"Ann","email":"ann@x.com","age":30}`)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "internal_error", resp.Error)
		assert.NotContains(t, resp.Message, "connection refused")
	})

	t.Run("Usecase Error with details", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t, WithErrorDetails(true))
		r.POST("/api/users", handler.CreateUser)

		mockUsecase.On("CreateUser", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))

		w := doJSON(r, http.MethodPost, "/api/users", `{"name":"Ann","email":"ann@x.com","age":30}`)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "dial tcp: connection refused", decodeError(t, w).Message)
	})
}

func TestGetUser(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.GET("/api/users/:id", handler.GetUser)

		mockUsecase.On("GetUser", mock.Anything, usecase.GetUserRequest{ID: 1}).
			Return(&usecase.User{ID: 1, Name: "Ann", Email: "ann@x.com", Age: 30}, nil)

		w := doJSON(r, http.MethodGet, "/api/users/1", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var resp UserResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, UserResponse{ID: 1, Name: "Ann", Email: "ann@x.com", Age: 30}, resp)
	})

	t.Run("Invalid ID", func(t *testing.T) {
		r, handler, _ := setupTest(t)
		r.GET("/api/users/:id", handler.GetUser)

		w := doJSON(r, http.MethodGet, "/api/users/abc", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_id", decodeError(t, w).Error)
	})

	t.Run("Not Found", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.GET("/api/users/:id", handler.GetUser)

		mockUsecase.On("GetUser", mock.Anything, usecase.GetUserRequest{ID: 1}).
			Return(nil, pkgerrors.NewNotFoundError("user", "User not found"))

		w := doJSON(r, http.MethodGet, "/api/users/1", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "not_found", resp.Error)
		assert.Equal(t, "User not found", resp.Message)
	})
}

func TestUpdateUser(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.PUT("/api/users/:id", handler.UpdateUser)

		mockUsecase.On("UpdateUser", mock.Anything, mock.MatchedBy(func(req usecase.UpdateUserRequest) bool {
			return req.ID == 1 && req.Name != nil && *req.Name == "Annie" && req.Email == nil && req.Age == nil
		})).Return(&usecase.User{ID: 1, Name: "Annie", Email: "ann@x.com", Age: 30}, nil)

		w := doJSON(r, http.MethodPut, "/api/users/1", `{"name":"Annie"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":1,"name":"Annie","email":"ann@x.com","age":30}`, w.Body.String())
		mockUsecase.AssertExpectations(t)
	})

	t.Run("Invalid ID", func(t *testing.T) {
		r, handler, _ := setupTest(t)
		r.PUT("/api/users/:id", handler.UpdateUser)

		w := doJSON(r, http.MethodPut, "/api/users/abc", "{}")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Not Found", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.PUT("/api/users/:id", handler.UpdateUser)

		mockUsecase.On("UpdateUser", mock.Anything, mock.Anything).
			Return(nil, pkgerrors.NewNotFoundError("user", "User not found"))

		w := doJSON(r, http.MethodPut, "/api/users/99", `{"age":40}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDeleteUser(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.DELETE("/api/users/:id", handler.DeleteUser)

		mockUsecase.On("DeleteUser", mock.Anything, usecase.DeleteUserRequest{ID: 1}).Return(&usecase.DeleteUserResponse{ID: 1}, nil)

		w := doJSON(r, http.MethodDelete, "/api/users/1", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message":"User deleted successfully","id":1}`, w.Body.String())
	})

	t.Run("Not Found", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.DELETE("/api/users/:id", handler.DeleteUser)

		mockUsecase.On("DeleteUser", mock.Anything, usecase.DeleteUserRequest{ID: 5}).
			Return(nil, pkgerrors.NewNotFoundError("user", "User not found"))

		w := doJSON(r, http.MethodDelete, "/api/users/5", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestListUsers(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.GET("/api/users", handler.ListUsers)

		mockUsecase.On("ListUsers", mock.Anything).Return(&usecase.ListUsersResponse{
			Users: []usecase.User{
				{ID: 1, Name: "Ann", Email: "ann@x.com", Age: 30},
				{ID: 2, Name: "Bob", Email: "bob@x.com", Age: 41},
			},
		}, nil)

		w := doJSON(r, http.MethodGet, "/api/users", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[
			{"id":1,"name":"Ann","email":"ann@x.com","age":30},
			{"id":2,"name":"Bob","email":"bob@x.com","age":41}
		]`, w.Body.String())
	})

	t.Run("Empty list is an array", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.GET("/api/users", handler.ListUsers)

		mockUsecase.On("ListUsers", mock.Anything).Return(&usecase.ListUsersResponse{Users: []usecase.User{}}, nil)

		w := doJSON(r, http.MethodGet, "/api/users", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("Usecase Error", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.GET("/api/users", handler.ListUsers)

		mockUsecase.On("ListUsers", mock.Anything).Return(nil, errors.New("db gone"))

		w := doJSON(r, http.MethodGet, "/api/users", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestLogin(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.POST("/api/users/login", handler.Login)

		mockUsecase.On("Login", mock.Anything, usecase.LoginRequest{Email: "deepak@example.com"}).
			Return(&usecase.LoginResponse{ID: 3, Name: "Deepak"}, nil)

		w := doJSON(r, http.MethodPost, "/api/users/login", `{"email":"deepak@example.com"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message":"Login successful","name":"Deepak"}`, w.Body.String())
	})

	t.Run("Missing Email", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.POST("/api/users/login", handler.Login)

		mockUsecase.On("Login", mock.Anything, usecase.LoginRequest{}).
			Return(nil, pkgerrors.NewValidationError("email", "Email is required"))

		w := doJSON(r, http.MethodPost, "/api/users/login", `{}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Email is required", decodeError(t, w).Message)
	})

	t.Run("Unknown Email", func(t *testing.T) {
		r, handler, mockUsecase := setupTest(t)
		r.POST("/api/users/login", handler.Login)

		mockUsecase.On("Login", mock.Anything, usecase.LoginRequest{Email: "ghost@example.com"}).
			Return(nil, pkgerrors.NewNotFoundError("user", "User not found"))

		w := doJSON(r, http.MethodPost, "/api/users/login", `{"email":"ghost@example.com"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "user_not_found", resp.Error)
		assert.Equal(t, "User not found", resp.Message)
	})
}

func TestAddStudentResult(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewStudentHandler(zaptest.NewLogger(t))
	r := gin.New()
	r.POST("/students/add", h.AddStudentResult)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"object", `{"student":"Ann","score":91}`, http.StatusCreated},
		{"empty object", `{}`, http.StatusCreated},
		{"array", `[1,2,3]`, http.StatusBadRequest},
		{"null", `null`, http.StatusBadRequest},
		{"malformed", `{"student":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/students/add", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusCreated {
				assert.JSONEq(t, `{"message":"Student result received"}`, w.Body.String())
			}
		})
	}
}
