package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marminbh/toxicity-score-svc/internal/store"
)

// CommentsHandler serves read-only lookups of scored comments
type CommentsHandler struct {
	Store  store.Finder
	Logger *zap.Logger
}

// NewCommentsHandler creates a new comments handler with dependencies
func NewCommentsHandler(s store.Finder, logger *zap.Logger) *CommentsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentsHandler{
		Store:  s,
		Logger: logger,
	}
}

// CommentDTO represents a stored comment in the response
type CommentDTO struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Content   string  `json:"content"`
	Timestamp string  `json:"timestamp"`
	Score     float64 `json:"score"`
	CreatedAt string  `json:"created_at"`           // UTC ISO 8601 format
	UpdatedAt *string `json:"updated_at,omitempty"` // UTC ISO 8601 format
}

// GetComment handles GET /api/v1/comments/:id
func (h *CommentsHandler) GetComment(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "id path parameter is required",
		})
	}

	rec, err := h.Store.Find(c.UserContext(), id)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "comment not found",
		})
	}
	if err != nil {
		h.Logger.Error("Failed to fetch comment",
			zap.String("id", id),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch comment",
		})
	}

	dto := CommentDTO{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Content:   rec.Content,
		Timestamp: rec.OriginalTimestamp,
		Score:     rec.Score,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.UpdatedAt != nil {
		updated := rec.UpdatedAt.UTC().Format(time.RFC3339)
		dto.UpdatedAt = &updated
	}
	return c.JSON(dto)
}
