package models

import (
	"fmt"
	"time"
)

// Score bounds for every stored comment
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// CommentRecord is one user comment under moderation.
type CommentRecord struct {
	ID                string     `bson:"id" json:"id"`
	UserID            string     `bson:"user_id" json:"user_id"`
	Content           string     `bson:"content" json:"content"`
	OriginalTimestamp string     `bson:"timestamp" json:"timestamp"`
	Score             float64    `bson:"score" json:"score"`
	CreatedAt         time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt         *time.Time `bson:"updated_at" json:"updated_at,omitempty"`
	DeletedAt         *time.Time `bson:"deleted_at" json:"deleted_at,omitempty"`
}

// ValidScore reports whether score lies in [MinScore, MaxScore].
func ValidScore(score float64) bool {
	return score >= MinScore && score <= MaxScore
}

// ValidateScore returns an error for scores outside [MinScore, MaxScore].
func ValidateScore(score float64) error {
	if !ValidScore(score) {
		return fmt.Errorf("score must be between %v and %v, got %v", MinScore, MaxScore, score)
	}
	return nil
}
