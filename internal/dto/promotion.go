package dto

import "github.com/svnapro/campus-api/internal/models"

// CreatePromotionRequest is the student-facing self-service payload.
type CreatePromotionRequest struct {
	FromYear         string   `json:"from_year" validate:"required"`
	ToYear           string   `json:"to_year" validate:"required"`
	FeeAmount        *float64 `json:"fee_amount,omitempty" validate:"omitempty,gte=0"`
	PaymentReference string   `json:"payment_reference,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

// ReviewPromotionRequest captures the admin decision on a pending request.
type ReviewPromotionRequest struct {
	Status models.PromotionStatus `json:"status" validate:"required"`
	Reason string                 `json:"reason,omitempty"`
}

// PromotionQuery mirrors supported listing filters.
type PromotionQuery struct {
	Status   []models.PromotionStatus
	Page     int
	PageSize int
}
