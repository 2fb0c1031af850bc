package plan

import (
	"context"
)

type Service interface {
	CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error)
	GetPlanByID(ctx context.Context, id int) (*Plan, error)
	ListPlans(ctx context.Context, operator, planType string) ([]Plan, error)
	UpdatePlan(ctx context.Context, id int, req UpdatePlanRequest) (*Plan, error)
	DeletePlan(ctx context.Context, id int) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{
		repo: repo,
	}
}

func (s *service) CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error) {
	return s.repo.Create(ctx, req.Operator, req.AmountCents, req.Validity, req.Description, req.Benefits, req.PlanType)
}

func (s *service) GetPlanByID(ctx context.Context, id int) (*Plan, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListPlans(ctx context.Context, operator, planType string) ([]Plan, error) {
	return s.repo.List(ctx, operator, planType)
}

func (s *service) UpdatePlan(ctx context.Context, id int, req UpdatePlanRequest) (*Plan, error) {
	return s.repo.Update(ctx, id, req.Operator, req.AmountCents, req.Validity, req.Description, req.Benefits, req.PlanType)
}

func (s *service) DeletePlan(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}
