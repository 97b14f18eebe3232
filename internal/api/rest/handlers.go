package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/storyforge/storyforge/internal/orchestrator"
	"github.com/storyforge/storyforge/pkg/story"
)

// GenerationHandlers exposes the Orchestrator's Generate operation over
// HTTP+JSON, grounded on the teacher's rest.WorkflowHandlers (validate
// body, call the application layer, translate errors to an APIError).
type GenerationHandlers struct {
	orch     *orchestrator.Orchestrator
	validate *validator.Validate
}

func NewGenerationHandlers(orch *orchestrator.Orchestrator) *GenerationHandlers {
	return &GenerationHandlers{orch: orch, validate: validator.New()}
}

// HandleGenerate validates a GenerationRequest body and drives it through
// the full pipeline synchronously, returning the assembled
// GenerationResponse (or a Failed response body for a fatal pipeline
// error such as an invalid request, an unsatisfiable structure or an
// expired deadline — that is a 200, not a 4xx/5xx, matching §7's
// propagation policy).
func (h *GenerationHandlers) HandleGenerate(c *gin.Context) {
	var req story.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(ErrInvalidJSON.HTTPStatus, ErrInvalidJSON)
		return
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	if err := h.validate.Struct(&req); err != nil {
		var verrs validator.ValidationErrors
		details := map[string]interface{}{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
		}
		c.JSON(http.StatusBadRequest, NewAPIErrorWithDetails("VALIDATION_FAILED", "request failed validation", http.StatusBadRequest, details))
		return
	}

	resp, err := h.orch.Generate(c.Request.Context(), &req)
	if err != nil {
		apiErr := TranslateError(err)
		c.JSON(apiErr.HTTPStatus, apiErr)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// NewAPIErrorWithDetails builds an APIError carrying structured field-level
// detail, used by validation failures.
func NewAPIErrorWithDetails(code, message string, httpStatus int, details map[string]interface{}) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus, Details: details}
}
