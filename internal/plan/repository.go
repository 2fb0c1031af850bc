package plan

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var ErrPlanNotFound = errors.New("plan not found")

const planColumns = `id, operator, amount_cents, validity, description, benefits, plan_type, created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, operator string, amountCents int64, validity, description string, benefits []string, planType string) (*Plan, error) {
	p := &Plan{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO plans (operator, amount_cents, validity, description, benefits, plan_type)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+planColumns,
		operator, amountCents, validity, description, pq.Array(benefits), planType,
	).StructScan(p)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Plan, error) {
	p := &Plan{}
	err := r.db.GetContext(ctx, p,
		`SELECT `+planColumns+` FROM plans WHERE id = $1`,
		id,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	return p, nil
}

func (r *repository) List(ctx context.Context, operator, planType string) ([]Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE 1=1`
	args := []interface{}{}

	if operator != "" {
		args = append(args, operator)
		query += ` AND operator = $1`
	}
	if planType != "" {
		args = append(args, planType)
		if operator != "" {
			query += ` AND plan_type = $2`
		} else {
			query += ` AND plan_type = $1`
		}
	}
	query += ` ORDER BY amount_cents ASC`

	var plans []Plan
	err := r.db.SelectContext(ctx, &plans, query, args...)
	if err != nil {
		return nil, err
	}

	return plans, nil
}

func (r *repository) Update(ctx context.Context, id int, operator string, amountCents int64, validity, description string, benefits []string, planType string) (*Plan, error) {
	p := &Plan{}
	err := r.db.QueryRowxContext(ctx,
		`UPDATE plans
		 SET operator = $1, amount_cents = $2, validity = $3, description = $4, benefits = $5, plan_type = $6, updated_at = NOW()
		 WHERE id = $7
		 RETURNING `+planColumns,
		operator, amountCents, validity, description, pq.Array(benefits), planType, id,
	).StructScan(p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	return p, nil
}

func (r *repository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrPlanNotFound
	}

	return nil
}
