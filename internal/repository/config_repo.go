package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contestforge/backend/internal/models"
)

// ConfigRepo stores admin-editable configuration as jsonb documents keyed
// by config_id, plus the withdrawal method catalogue.
type ConfigRepo struct {
	pool *pgxpool.Pool
}

func NewConfigRepo(pool *pgxpool.Pool) *ConfigRepo {
	return &ConfigRepo{pool: pool}
}

// Get unmarshals the document for configID into out. Returns false when
// no document exists yet.
func (r *ConfigRepo) Get(ctx context.Context, configID string, out any) (bool, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT data FROM app_configs WHERE config_id = $1
	`, configID).Scan(&raw)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, out)
}

// Put upserts the document. Used both for admin updates and for seeding
// defaults on first read.
func (r *ConfigRepo) Put(ctx context.Context, configID string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO app_configs (config_id, data) VALUES ($1, $2)
		ON CONFLICT (config_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, configID, raw)
	return err
}

func (r *ConfigRepo) ListWithdrawalMethods(ctx context.Context, activeOnly bool) ([]*models.WithdrawalMethod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT method_id, name, is_active, supported_currencies, fee_type, fee_fixed, fee_percentage,
		       fee_min, fee_max, min_amount, max_amount, processing_days, sort_order
		FROM withdrawal_methods
		WHERE NOT $1 OR is_active
		ORDER BY sort_order
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WithdrawalMethod
	for rows.Next() {
		var m models.WithdrawalMethod
		if err := rows.Scan(&m.MethodID, &m.Name, &m.IsActive, &m.SupportedCurrencies, &m.FeeType,
			&m.FeeFixed, &m.FeePercentage, &m.FeeMin, &m.FeeMax, &m.MinAmount, &m.MaxAmount,
			&m.ProcessingDays, &m.SortOrder); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

func (r *ConfigRepo) GetWithdrawalMethod(ctx context.Context, methodID string) (*models.WithdrawalMethod, error) {
	var m models.WithdrawalMethod
	err := r.pool.QueryRow(ctx, `
		SELECT method_id, name, is_active, supported_currencies, fee_type, fee_fixed, fee_percentage,
		       fee_min, fee_max, min_amount, max_amount, processing_days, sort_order
		FROM withdrawal_methods WHERE method_id = $1
	`, methodID).Scan(&m.MethodID, &m.Name, &m.IsActive, &m.SupportedCurrencies, &m.FeeType,
		&m.FeeFixed, &m.FeePercentage, &m.FeeMin, &m.FeeMax, &m.MinAmount, &m.MaxAmount,
		&m.ProcessingDays, &m.SortOrder)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
