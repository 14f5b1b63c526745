package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type BillingQuerier interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetPrice(ctx context.Context, id int64) (Price, error)
	GetSubscription(ctx context.Context, id int64) (UserSubscription, error)
	UpdateSubscriptionStatus(ctx context.Context, id int64, status SubscriptionStatus) error
	UpdateSubscriptionMetadata(ctx context.Context, id int64, meta *SubscriptionMetadata) error

	GetCharge(ctx context.Context, id int64) (Charge, error)
	GetChargeByPaymentPlatformID(ctx context.Context, platformID string) (*Charge, error)
	GetChildCharges(ctx context.Context, parentID int64) ([]Charge, error)
	InsertCharge(ctx context.Context, c Charge) (Charge, error)
	UpdateCharge(ctx context.Context, c Charge) error
	LockCharge(ctx context.Context, id int64) (Charge, error)

	GetNextChargeForSubscription(ctx context.Context, subID int64, statuses []ChargeStatus) (*Charge, error)

	GetSubscriptionsForReconciliation(ctx context.Context, now time.Time) ([]UserSubscription, error)
	GetChargesDueOrFailed(ctx context.Context, now time.Time, failedCutoff time.Time) ([]Charge, error)
	GetStaleFailedCharges(ctx context.Context, cutoff time.Time) ([]Charge, error)
	GetChargesMissingTax(ctx context.Context, limit int) ([]Charge, error)
}

func (q *Queries) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := q.db.QueryRow(ctx, `SELECT id, name, metadata_kind, ram, cpu, swap, storage, region, unitary FROM products WHERE id = $1`, id)
	var p Product
	var kind string
	var ram, cpu, swap, storage *int32
	var region *string
	if err := row.Scan(&p.ID, &p.Name, &kind, &ram, &cpu, &swap, &storage, &region, &p.Unitary); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	p.Metadata.Kind = ProductMetadataKind(kind)
	switch p.Metadata.Kind {
	case ProductPyro:
		p.Metadata.Pyro = &ServerSpec{RAM: deref32(ram), CPU: deref32(cpu), Swap: deref32(swap), Storage: deref32(storage)}
	case ProductMedal:
		p.Metadata.Medal = &MedalSpec{
			ServerSpec: ServerSpec{RAM: deref32(ram), CPU: deref32(cpu), Swap: deref32(swap), Storage: deref32(storage)},
			Region:     derefStr(region),
		}
	}
	return p, nil
}

func deref32(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}
func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (q *Queries) GetPrice(ctx context.Context, id int64) (Price, error) {
	row := q.db.QueryRow(ctx, `SELECT id, product_id, currency, kind, one_time_amount, recurring_amounts FROM prices WHERE id = $1`, id)
	var p Price
	var kind string
	var recurring map[string]int64
	if err := row.Scan(&p.ID, &p.ProductID, &p.Currency, &kind, &p.OneTime, &recurring); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Price{}, ErrNotFound
		}
		return Price{}, err
	}
	p.Kind = PriceKind(kind)
	p.Recurring = make(map[PriceDuration]int64, len(recurring))
	for k, v := range recurring {
		p.Recurring[PriceDuration(k)] = v
	}
	return p, nil
}

func (q *Queries) GetSubscription(ctx context.Context, id int64) (UserSubscription, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, user_id, price_id, interval, created, status, metadata_kind, metadata_server_id, metadata_region
		FROM user_subscriptions WHERE id = $1`, id)
	var s UserSubscription
	var status, interval string
	var metaKind, metaServer, metaRegion *string
	if err := row.Scan(&s.ID, &s.UserID, &s.PriceID, &interval, &s.Created, &status, &metaKind, &metaServer, &metaRegion); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserSubscription{}, ErrNotFound
		}
		return UserSubscription{}, err
	}
	s.Interval = PriceDuration(interval)
	s.Status = SubscriptionStatus(status)
	if metaKind != nil {
		s.Metadata = &SubscriptionMetadata{Kind: SubscriptionMetadataKind(*metaKind), ServerID: derefStr(metaServer), Region: metaRegion}
	}
	return s, nil
}

func (q *Queries) UpdateSubscriptionStatus(ctx context.Context, id int64, status SubscriptionStatus) error {
	_, err := q.db.Exec(ctx, `UPDATE user_subscriptions SET status = $2 WHERE id = $1`, id, string(status))
	return err
}

func (q *Queries) UpdateSubscriptionMetadata(ctx context.Context, id int64, meta *SubscriptionMetadata) error {
	if meta == nil {
		_, err := q.db.Exec(ctx, `UPDATE user_subscriptions SET metadata_kind = NULL, metadata_server_id = NULL, metadata_region = NULL WHERE id = $1`, id)
		return err
	}
	_, err := q.db.Exec(ctx, `
		UPDATE user_subscriptions SET metadata_kind = $2, metadata_server_id = $3, metadata_region = $4 WHERE id = $1`,
		id, string(meta.Kind), meta.ServerID, meta.Region)
	return err
}

func scanCharge(row pgx.Row) (Charge, error) {
	var c Charge
	var status, ctype, platform string
	var interval *string
	if err := row.Scan(&c.ID, &c.UserID, &c.PriceID, &c.Amount, &c.TaxAmount, &c.CurrencyCode, &status,
		&c.Due, &c.LastAttempt, &ctype, &c.SubscriptionID, &interval, &platform, &c.PaymentPlatformID,
		&c.ParentChargeID, &c.Net, &c.TaxPlatformID, &c.TaxTransactionVersion, &c.TaxPlatformAccountingTime, &c.TaxLastUpdated); err != nil {
		return Charge{}, err
	}
	c.Status = ChargeStatus(status)
	c.Type = ChargeType(ctype)
	c.PaymentPlatform = PaymentPlatform(platform)
	if interval != nil {
		d := PriceDuration(*interval)
		c.SubscriptionInterval = &d
	}
	return c, nil
}

const chargeColumns = `id, user_id, price_id, amount, tax_amount, currency_code, status, due, last_attempt,
		type, subscription_id, subscription_interval, payment_platform, payment_platform_id,
		parent_charge_id, net, tax_platform_id, tax_transaction_version, tax_platform_accounting_time, tax_last_updated`

func (q *Queries) GetCharge(ctx context.Context, id int64) (Charge, error) {
	c, err := scanCharge(q.db.QueryRow(ctx, `SELECT `+chargeColumns+` FROM charges WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Charge{}, ErrNotFound
		}
		return Charge{}, err
	}
	return c, nil
}

// LockCharge selects the charge row FOR UPDATE, so webhook handlers
// serialize per charge_id as spec §5 requires.
func (q *Queries) LockCharge(ctx context.Context, id int64) (Charge, error) {
	c, err := scanCharge(q.db.QueryRow(ctx, `SELECT `+chargeColumns+` FROM charges WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Charge{}, ErrNotFound
		}
		return Charge{}, err
	}
	return c, nil
}

func (q *Queries) GetChargeByPaymentPlatformID(ctx context.Context, platformID string) (*Charge, error) {
	c, err := scanCharge(q.db.QueryRow(ctx, `SELECT `+chargeColumns+` FROM charges WHERE payment_platform_id = $1 FOR UPDATE`, platformID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (q *Queries) GetChildCharges(ctx context.Context, parentID int64) ([]Charge, error) {
	rows, err := q.db.Query(ctx, `SELECT `+chargeColumns+` FROM charges WHERE parent_charge_id = $1`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) InsertCharge(ctx context.Context, c Charge) (Charge, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO charges (user_id, price_id, amount, tax_amount, currency_code, status, due, last_attempt,
		                     type, subscription_id, subscription_interval, payment_platform, payment_platform_id,
		                     parent_charge_id, net, tax_platform_id, tax_transaction_version, tax_platform_accounting_time, tax_last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING id`,
		c.UserID, c.PriceID, c.Amount, c.TaxAmount, c.CurrencyCode, string(c.Status), c.Due, c.LastAttempt,
		string(c.Type), c.SubscriptionID, c.SubscriptionInterval, string(c.PaymentPlatform), c.PaymentPlatformID,
		c.ParentChargeID, c.Net, c.TaxPlatformID, c.TaxTransactionVersion, c.TaxPlatformAccountingTime, c.TaxLastUpdated)
	if err := row.Scan(&c.ID); err != nil {
		return Charge{}, err
	}
	return c, nil
}

func (q *Queries) UpdateCharge(ctx context.Context, c Charge) error {
	_, err := q.db.Exec(ctx, `
		UPDATE charges SET amount=$2, tax_amount=$3, currency_code=$4, status=$5, due=$6, last_attempt=$7,
			type=$8, subscription_id=$9, subscription_interval=$10, payment_platform=$11, payment_platform_id=$12,
			parent_charge_id=$13, net=$14, tax_platform_id=$15, tax_transaction_version=$16,
			tax_platform_accounting_time=$17, tax_last_updated=$18
		WHERE id = $1`,
		c.ID, c.Amount, c.TaxAmount, c.CurrencyCode, string(c.Status), c.Due, c.LastAttempt,
		string(c.Type), c.SubscriptionID, c.SubscriptionInterval, string(c.PaymentPlatform), c.PaymentPlatformID,
		c.ParentChargeID, c.Net, c.TaxPlatformID, c.TaxTransactionVersion, c.TaxPlatformAccountingTime, c.TaxLastUpdated)
	return err
}

func (q *Queries) GetNextChargeForSubscription(ctx context.Context, subID int64, statuses []ChargeStatus) (*Charge, error) {
	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}
	c, err := scanCharge(q.db.QueryRow(ctx, `
		SELECT `+chargeColumns+` FROM charges
		WHERE subscription_id = $1 AND status = ANY($2) AND type != 'refund'
		ORDER BY due ASC LIMIT 1`, subID, strs))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (q *Queries) GetSubscriptionsForReconciliation(ctx context.Context, now time.Time) ([]UserSubscription, error) {
	rows, err := q.db.Query(ctx, `
		SELECT DISTINCT s.id, s.user_id, s.price_id, s.interval, s.created, s.status,
		       s.metadata_kind, s.metadata_server_id, s.metadata_region
		FROM user_subscriptions s
		JOIN charges c ON c.subscription_id = s.id
		WHERE (c.status = 'cancelled' AND c.due <= $1)
		   OR (c.status = 'expiring' AND c.due <= $1)
		   OR (c.status = 'failed' AND c.last_attempt <= $2)`,
		now, now.Add(-2*24*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserSubscription
	for rows.Next() {
		var s UserSubscription
		var status, interval string
		var metaKind, metaServer, metaRegion *string
		if err := rows.Scan(&s.ID, &s.UserID, &s.PriceID, &interval, &s.Created, &status, &metaKind, &metaServer, &metaRegion); err != nil {
			return nil, err
		}
		s.Interval = PriceDuration(interval)
		s.Status = SubscriptionStatus(status)
		if metaKind != nil {
			s.Metadata = &SubscriptionMetadata{Kind: SubscriptionMetadataKind(*metaKind), ServerID: derefStr(metaServer), Region: metaRegion}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *Queries) GetChargesDueOrFailed(ctx context.Context, now time.Time, failedCutoff time.Time) ([]Charge, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+chargeColumns+` FROM charges
		WHERE (status = 'open' AND due <= $1) OR (status = 'failed' AND last_attempt <= $2)
		FOR UPDATE SKIP LOCKED`, now, failedCutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) GetStaleFailedCharges(ctx context.Context, cutoff time.Time) ([]Charge, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+chargeColumns+` FROM charges WHERE status = 'failed' AND last_attempt < $1
		FOR UPDATE SKIP LOCKED`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) GetChargesMissingTax(ctx context.Context, limit int) ([]Charge, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+chargeColumns+` FROM charges
		WHERE tax_amount = 0 AND status = 'succeeded' AND tax_platform_id IS NULL
		ORDER BY due ASC LIMIT $1 FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
