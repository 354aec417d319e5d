package models

import "time"

// PromotionStatus captures the self-service request lifecycle. Values are
// lowercase on the wire to match the dashboard contract.
type PromotionStatus string

const (
	PromotionStatusPending   PromotionStatus = "pending"
	PromotionStatusApproved  PromotionStatus = "approved"
	PromotionStatusRejected  PromotionStatus = "rejected"
	PromotionStatusCompleted PromotionStatus = "completed"
)

// PromotionRequest is a student-initiated year promotion awaiting admin review.
type PromotionRequest struct {
	ID               string          `db:"id" json:"id"`
	StudentID        string          `db:"student_id" json:"student_id"`
	CollegeID        string          `db:"college_id" json:"college_id"`
	FromYear         string          `db:"from_year" json:"from_year"`
	ToYear           string          `db:"to_year" json:"to_year"`
	FeePaid          bool            `db:"fee_paid" json:"fee_paid"`
	FeeAmount        *float64        `db:"fee_amount" json:"fee_amount,omitempty"`
	PaymentReference *string         `db:"payment_reference" json:"payment_reference,omitempty"`
	Status           PromotionStatus `db:"status" json:"status"`
	RejectionReason  *string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
	Notes            *string         `db:"notes" json:"notes,omitempty"`
	RequestedAt      time.Time       `db:"requested_at" json:"requested_at"`
	ReviewedBy       *string         `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time      `db:"reviewed_at" json:"reviewed_at,omitempty"`
	PromotedAt       *time.Time      `db:"promoted_at" json:"promoted_at,omitempty"`
}

// PromotionFilter constrains request listings.
type PromotionFilter struct {
	CollegeID string
	StudentID string
	Status    []PromotionStatus
	Limit     int
	Offset    int
}
