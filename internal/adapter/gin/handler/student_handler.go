package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"user-api/pkg/logger"
)

// StudentHandler accepts student results. Nothing is stored.
type StudentHandler struct {
	log *zap.Logger
}

// NewStudentHandler creates a new StudentHandler instance
func NewStudentHandler(log *zap.Logger) *StudentHandler {
	return &StudentHandler{log: log}
}

// StudentResultResponse acknowledges a received result
type StudentResultResponse struct {
	Message string `json:"message" example:"Student result received"`
}

// AddStudentResult handles POST /students/add
//
//	@Summary	Submit a student result
//	@Tags		students
//	@Accept		json
//	@Produce	json
//	@Param		result	body		object	true	"Any JSON object"
//	@Success	201		{object}	StudentResultResponse
//	@Failure	400		{object}	ErrorResponse
//	@Router		/students/add [post]
func (h *StudentHandler) AddStudentResult(c *gin.Context) {
	log := logger.WithContext(c.Request.Context(), h.log)

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil || payload == nil {
		log.Warn("Invalid student result body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "validation_error",
			Message:   "Request body must be a JSON object",
			RequestID: logger.GetRequestID(c.Request.Context()),
		})
		return
	}

	log.Info("Student result received", zap.Int("fields", len(payload)))
	c.JSON(http.StatusCreated, StudentResultResponse{Message: "Student result received"})
}
