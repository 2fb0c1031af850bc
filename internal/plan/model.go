package plan

import (
	"time"

	"github.com/lib/pq"
)

type Plan struct {
	ID          int            `db:"id" json:"id"`
	Operator    string         `db:"operator" json:"operator"`
	AmountCents int64          `db:"amount_cents" json:"amount_cents"`
	Validity    string         `db:"validity" json:"validity"`
	Description string         `db:"description" json:"description"`
	Benefits    pq.StringArray `db:"benefits" json:"benefits"`
	PlanType    string         `db:"plan_type" json:"plan_type"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

type CreatePlanRequest struct {
	Operator    string   `json:"operator" binding:"required"`
	AmountCents int64    `json:"amount_cents" binding:"required,gt=0"`
	Validity    string   `json:"validity" binding:"required"`
	Description string   `json:"description" binding:"required"`
	Benefits    []string `json:"benefits"`
	PlanType    string   `json:"plan_type" binding:"required"`
}

type UpdatePlanRequest struct {
	Operator    string   `json:"operator" binding:"required"`
	AmountCents int64    `json:"amount_cents" binding:"required,gt=0"`
	Validity    string   `json:"validity" binding:"required"`
	Description string   `json:"description" binding:"required"`
	Benefits    []string `json:"benefits"`
	PlanType    string   `json:"plan_type" binding:"required"`
}
