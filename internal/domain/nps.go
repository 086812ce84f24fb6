package domain

import (
	"time"

	apperrors "github.com/testimonioya/recovery-service/pkg/util"
)

// NPSCategory is the segment a score falls into.
type NPSCategory string

const (
	NPSPromoter  NPSCategory = "promoter"
	NPSPassive   NPSCategory = "passive"
	NPSDetractor NPSCategory = "detractor"
)

// CategorizeScore maps a 0-10 score to its segment.
func CategorizeScore(score int) (NPSCategory, error) {
	switch {
	case score < 0 || score > 10:
		return "", apperrors.NewValidationError("score must be between 0 and 10", map[string]any{"score": score})
	case score >= 9:
		return NPSPromoter, nil
	case score >= 7:
		return NPSPassive, nil
	default:
		return NPSDetractor, nil
	}
}

// NPSResponse is a single survey submission.
type NPSResponse struct {
	ID            string
	BusinessID    string
	Score         int
	Category      NPSCategory
	Feedback      *string
	CustomerName  *string
	CustomerEmail *string
	CreatedAt     time.Time
}
