package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	domainErrors "github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/cassiomorais/chargegate/internal/domain/refund"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RefundRepository struct {
	pool *pgxpool.Pool
}

func NewRefundRepository(pool *pgxpool.Pool) *RefundRepository {
	return &RefundRepository{pool: pool}
}

func (r *RefundRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

const refundColumns = `external_id, charge_external_id, amount, status, gateway_reference, user_external_id, created_at, updated_at`

func (r *RefundRepository) Create(ctx context.Context, ref *refund.Refund) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO refunds (`+refundColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ref.ExternalID, ref.ChargeExternalID, ref.Amount, string(ref.Status),
		ref.GatewayReference, ref.UserExternalID, ref.CreatedAt, ref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

func (r *RefundRepository) GetByExternalID(ctx context.Context, externalID string) (*refund.Refund, error) {
	row := r.db(ctx).QueryRow(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE external_id = $1`, externalID)
	ref, err := scanRefund(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrRefundNotFound
		}
		return nil, err
	}
	return ref, nil
}

func (r *RefundRepository) ListByCharge(ctx context.Context, chargeExternalID string) ([]*refund.Refund, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+refundColumns+` FROM refunds
		 WHERE charge_external_id = $1
		 ORDER BY created_at ASC`, chargeExternalID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	var refunds []*refund.Refund
	for rows.Next() {
		ref, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, ref)
	}
	return refunds, rows.Err()
}

func (r *RefundRepository) Update(ctx context.Context, ref *refund.Refund) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE refunds SET status = $1, gateway_reference = $2, updated_at = $3
		 WHERE external_id = $4`,
		string(ref.Status), ref.GatewayReference, ref.UpdatedAt, ref.ExternalID,
	)
	if err != nil {
		return fmt.Errorf("update refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrRefundNotFound
	}
	return nil
}

func scanRefund(row pgx.Row) (*refund.Refund, error) {
	ref := &refund.Refund{}
	var status string
	if err := row.Scan(
		&ref.ExternalID, &ref.ChargeExternalID, &ref.Amount, &status,
		&ref.GatewayReference, &ref.UserExternalID, &ref.CreatedAt, &ref.UpdatedAt,
	); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan refund: %w", err)
	}
	ref.Status = refund.Status(status)
	return ref, nil
}
