package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	domainErrors "github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChargeRepository struct {
	pool *pgxpool.Pool
}

func NewChargeRepository(pool *pgxpool.Pool) *ChargeRepository {
	return &ChargeRepository{pool: pool}
}

func (r *ChargeRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

const chargeColumns = `external_id, gateway_account_id, provider_name, amount, currency,
	description, reference, status, gateway_transaction_id, corporate_surcharge,
	three_ds, authorisation_mode, agreement_id, email, card_brand,
	version, created_at, updated_at`

func (r *ChargeRepository) Create(ctx context.Context, c *charge.Charge) error {
	threeDS, err := marshalThreeDS(c.ThreeDSDetail)
	if err != nil {
		return err
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO charges (`+chargeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		c.ExternalID, c.GatewayAccountID, c.ProviderName, c.Amount, c.Currency,
		c.Description, c.Reference, string(c.Status), c.GatewayTransactionID, c.CorporateSurcharge,
		threeDS, string(c.AuthorisationMode), c.AgreementID, c.Email, c.CardBrand,
		c.Version, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert charge: %w", err)
	}
	return r.AppendEvents(ctx, c.ExternalID, c.Events)
}

func (r *ChargeRepository) GetByExternalID(ctx context.Context, externalID string) (*charge.Charge, error) {
	row := r.db(ctx).QueryRow(ctx,
		`SELECT `+chargeColumns+` FROM charges WHERE external_id = $1`, externalID)
	return r.scanCharge(ctx, row)
}

func (r *ChargeRepository) GetByGatewayTransactionID(ctx context.Context, providerName, gatewayTxID string) (*charge.Charge, error) {
	row := r.db(ctx).QueryRow(ctx,
		`SELECT `+chargeColumns+` FROM charges
		 WHERE provider_name = $1 AND gateway_transaction_id = $2`,
		providerName, gatewayTxID)
	return r.scanCharge(ctx, row)
}

// Update persists the charge row guarded by its optimistic version and
// appends any events recorded since it was loaded. The version is bumped in
// the same statement that checks it, so two writers racing on the same
// version cannot both succeed.
func (r *ChargeRepository) Update(ctx context.Context, c *charge.Charge) error {
	threeDS, err := marshalThreeDS(c.ThreeDSDetail)
	if err != nil {
		return err
	}
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE charges SET
			status = $1, gateway_transaction_id = $2, corporate_surcharge = $3,
			three_ds = $4, agreement_id = $5, email = $6, card_brand = $7,
			updated_at = $8, version = version + 1
		 WHERE external_id = $9 AND version = $10`,
		string(c.Status), c.GatewayTransactionID, c.CorporateSurcharge,
		threeDS, c.AgreementID, c.Email, c.CardBrand,
		c.UpdatedAt, c.ExternalID, c.Version,
	)
	if err != nil {
		return fmt.Errorf("update charge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOptimisticLockFailed
	}
	c.Version++
	return r.AppendEvents(ctx, c.ExternalID, c.Events)
}

// AppendEvents inserts event records. Already-persisted events are skipped,
// so callers can hand over the charge's whole log on every save.
func (r *ChargeRepository) AppendEvents(ctx context.Context, externalID string, events []charge.Event) error {
	for i := range events {
		if events[i].ID == uuid.Nil {
			events[i].ID = uuid.New()
		}
		_, err := r.db(ctx).Exec(ctx,
			`INSERT INTO charge_events (id, charge_external_id, status, recorded_at, gateway_event_time)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (charge_external_id, status, recorded_at) DO NOTHING`,
			events[i].ID, externalID, string(events[i].Status), events[i].RecordedAt, events[i].GatewayEventTime,
		)
		if err != nil {
			return fmt.Errorf("insert charge event: %w", err)
		}
	}
	return nil
}

// AddFee inserts a fee record. Fee ids are assigned when the fee is first
// computed, so replays of the same save are no-ops.
func (r *ChargeRepository) AddFee(ctx context.Context, externalID string, fee charge.Fee) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO fees (id, charge_external_id, fee_type, amount_due, amount_collected, gateway_transaction_id, created_at, collected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		fee.ID, externalID, string(fee.Type), fee.AmountDue, fee.AmountCollected,
		fee.GatewayTransactionID, fee.CreatedAt, fee.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fee: %w", err)
	}
	return nil
}

func (r *ChargeRepository) ListByStatus(ctx context.Context, statuses []charge.Status, limit int) ([]*charge.Charge, error) {
	return r.list(ctx,
		`SELECT `+chargeColumns+` FROM charges
		 WHERE status = ANY($1)
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		statusStrings(statuses), limit)
}

func (r *ChargeRepository) ListStaleByStatus(ctx context.Context, statuses []charge.Status, cutoff time.Time, limit int) ([]*charge.Charge, error) {
	return r.list(ctx,
		`SELECT `+chargeColumns+` FROM charges
		 WHERE status = ANY($1) AND updated_at < $2
		 ORDER BY updated_at ASC
		 LIMIT $3`,
		statusStrings(statuses), cutoff, limit)
}

func (r *ChargeRepository) list(ctx context.Context, query string, args ...any) ([]*charge.Charge, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list charges: %w", err)
	}
	defer rows.Close()

	var charges []*charge.Charge
	for rows.Next() {
		c, err := scanChargeRow(rows)
		if err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, c := range charges {
		if err := r.loadChildren(ctx, c); err != nil {
			return nil, err
		}
	}
	return charges, nil
}

func (r *ChargeRepository) scanCharge(ctx context.Context, row pgx.Row) (*charge.Charge, error) {
	c, err := scanChargeRow(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrChargeNotFound
		}
		return nil, err
	}
	if err := r.loadChildren(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func scanChargeRow(row pgx.Row) (*charge.Charge, error) {
	c := &charge.Charge{}
	var status, mode string
	var threeDS []byte
	if err := row.Scan(
		&c.ExternalID, &c.GatewayAccountID, &c.ProviderName, &c.Amount, &c.Currency,
		&c.Description, &c.Reference, &status, &c.GatewayTransactionID, &c.CorporateSurcharge,
		&threeDS, &mode, &c.AgreementID, &c.Email, &c.CardBrand,
		&c.Version, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan charge: %w", err)
	}
	c.Status = charge.Status(status)
	c.AuthorisationMode = charge.AuthorisationMode(mode)
	if len(threeDS) > 0 {
		detail := &charge.ThreeDSDetail{}
		if err := json.Unmarshal(threeDS, detail); err != nil {
			return nil, fmt.Errorf("unmarshal 3ds detail: %w", err)
		}
		c.ThreeDSDetail = detail
	}
	return c, nil
}

func (r *ChargeRepository) loadChildren(ctx context.Context, c *charge.Charge) error {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, status, recorded_at, gateway_event_time
		 FROM charge_events WHERE charge_external_id = $1
		 ORDER BY recorded_at ASC`, c.ExternalID)
	if err != nil {
		return fmt.Errorf("load charge events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e charge.Event
		var status string
		if err := rows.Scan(&e.ID, &status, &e.RecordedAt, &e.GatewayEventTime); err != nil {
			return fmt.Errorf("scan charge event: %w", err)
		}
		e.Status = charge.Status(status)
		c.Events = append(c.Events, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	feeRows, err := r.db(ctx).Query(ctx,
		`SELECT id, fee_type, amount_due, amount_collected, gateway_transaction_id, created_at, collected_at
		 FROM fees WHERE charge_external_id = $1
		 ORDER BY created_at ASC`, c.ExternalID)
	if err != nil {
		return fmt.Errorf("load fees: %w", err)
	}
	defer feeRows.Close()
	for feeRows.Next() {
		f := charge.Fee{ChargeExternalID: c.ExternalID}
		var feeType string
		if err := feeRows.Scan(&f.ID, &feeType, &f.AmountDue, &f.AmountCollected, &f.GatewayTransactionID, &f.CreatedAt, &f.CollectedAt); err != nil {
			return fmt.Errorf("scan fee: %w", err)
		}
		f.Type = charge.FeeType(feeType)
		c.Fees = append(c.Fees, f)
	}
	return feeRows.Err()
}

func marshalThreeDS(d *charge.ThreeDSDetail) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal 3ds detail: %w", err)
	}
	return b, nil
}

func statusStrings(statuses []charge.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
