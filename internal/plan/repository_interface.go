package plan

import "context"

type Repository interface {
	Create(ctx context.Context, operator string, amountCents int64, validity, description string, benefits []string, planType string) (*Plan, error)
	GetByID(ctx context.Context, id int) (*Plan, error)
	List(ctx context.Context, operator, planType string) ([]Plan, error)
	Update(ctx context.Context, id int, operator string, amountCents int64, validity, description string, benefits []string, planType string) (*Plan, error)
	Delete(ctx context.Context, id int) error
}
