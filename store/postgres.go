package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"authpay/models"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var userColumns = []string{
	"id", "email", "name", "avatar", "password_hash", "auth_provider", "provider_user_id",
	"mfa_secret", "mfa_enabled", "subscription_tier", "credits", "stripe_customer_id",
	"created_at", "updated_at",
}

var productColumns = []string{
	"id", "name", "description", "active", "price_id", "price_cents", "currency", "metadata",
}

// Postgres implements Store on top of the schema in db/migrations.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) CreateUser(ctx context.Context, u *models.User) error {
	query, args, err := psql.Insert("users").Columns(userColumns...).Values(
		u.ID, u.Email, u.Name, u.Avatar, u.PasswordHash, u.AuthProvider, u.ProviderUserID,
		u.MFASecret, u.MFAEnabled, u.SubscriptionTier, u.Credits, u.StripeCustomerID,
		u.CreatedAt, u.UpdatedAt,
	).ToSql()
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return mapErr(err)
	}
	return nil
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*models.User, error) {
	return p.getUser(ctx, sq.Eq{"id": id})
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return p.getUser(ctx, sq.Expr("LOWER(email) = LOWER(?)", email))
}

func (p *Postgres) GetUserByProvider(ctx context.Context, provider, providerUserID string) (*models.User, error) {
	return p.getUser(ctx, sq.Eq{"auth_provider": provider, "provider_user_id": providerUserID})
}

func (p *Postgres) getUser(ctx context.Context, where sq.Sqlizer) (*models.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, err
	}

	var u models.User
	err = p.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.Name, &u.Avatar, &u.PasswordHash, &u.AuthProvider, &u.ProviderUserID,
		&u.MFASecret, &u.MFAEnabled, &u.SubscriptionTier, &u.Credits, &u.StripeCustomerID,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (p *Postgres) UpdateUser(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now().UTC()
	query, args, err := psql.Update("users").SetMap(map[string]interface{}{
		"email":              u.Email,
		"name":               u.Name,
		"avatar":             u.Avatar,
		"password_hash":      u.PasswordHash,
		"auth_provider":      u.AuthProvider,
		"provider_user_id":   u.ProviderUserID,
		"mfa_secret":         u.MFASecret,
		"mfa_enabled":        u.MFAEnabled,
		"subscription_tier":  u.SubscriptionTier,
		"stripe_customer_id": u.StripeCustomerID,
		"updated_at":         u.UpdatedAt,
	}).Where(sq.Eq{"id": u.ID}).ToSql()
	if err != nil {
		return err
	}
	return p.execOne(ctx, query, args...)
}

func (p *Postgres) AddCredits(ctx context.Context, userID string, delta int64) (int64, error) {
	query, args, err := psql.Update("users").
		Set("credits", sq.Expr("credits + ?", delta)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": userID}).
		Suffix("RETURNING credits").
		ToSql()
	if err != nil {
		return 0, err
	}

	var credits int64
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&credits); err != nil {
		return 0, mapErr(err)
	}
	return credits, nil
}

func (p *Postgres) CreateProduct(ctx context.Context, pr *models.Product) error {
	md, err := marshalMetadata(pr.Metadata)
	if err != nil {
		return err
	}
	query, args, err := psql.Insert("products").Columns(productColumns...).Values(
		pr.ID, pr.Name, pr.Description, pr.Active, pr.PriceID, nullInt(pr.PriceCents), pr.Currency, md,
	).ToSql()
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return mapErr(err)
	}
	return nil
}

func (p *Postgres) ListProducts(ctx context.Context) ([]models.Product, error) {
	query, args, err := psql.Select(productColumns...).From("products").OrderBy("name").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Product{}
	for rows.Next() {
		pr, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pr)
	}
	return out, rows.Err()
}

func (p *Postgres) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return p.getProduct(ctx, sq.Eq{"id": id})
}

func (p *Postgres) GetProductByName(ctx context.Context, name string) (*models.Product, error) {
	return p.getProduct(ctx, sq.Eq{"name": name})
}

func (p *Postgres) getProduct(ctx context.Context, where sq.Sqlizer) (*models.Product, error) {
	query, args, err := psql.Select(productColumns...).From("products").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, err
	}
	pr, err := scanProduct(p.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapErr(err)
	}
	return pr, nil
}

func (p *Postgres) DeleteProduct(ctx context.Context, id string) error {
	query, args, err := psql.Delete("products").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	return p.execOne(ctx, query, args...)
}

func (p *Postgres) CreatePayment(ctx context.Context, pm *models.Payment) error {
	md, err := marshalMetadata(pm.Metadata)
	if err != nil {
		return err
	}
	query, args, err := psql.Insert("payments").
		Columns("id", "user_id", "amount_cents", "currency", "status", "payment_method", "stripe_payment_id", "metadata", "created_at").
		Values(pm.ID, pm.UserID, pm.AmountCents, pm.Currency, pm.Status, pm.PaymentMethod, pm.StripePaymentID, md, pm.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return mapErr(err)
	}
	return nil
}

func (p *Postgres) ListPayments(ctx context.Context, userID string) ([]models.Payment, error) {
	query, args, err := psql.
		Select("id", "user_id", "amount_cents", "currency", "status", "payment_method", "stripe_payment_id", "metadata", "created_at").
		From("payments").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Payment{}
	for rows.Next() {
		var pm models.Payment
		var md []byte
		if err := rows.Scan(&pm.ID, &pm.UserID, &pm.AmountCents, &pm.Currency, &pm.Status,
			&pm.PaymentMethod, &pm.StripePaymentID, &md, &pm.CreatedAt); err != nil {
			return nil, err
		}
		if pm.Metadata, err = unmarshalMetadata(md); err != nil {
			return nil, err
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, s *models.Subscription) error {
	query, args, err := psql.Insert("subscriptions").
		Columns("id", "user_id", "product_id", "status", "current_period_start", "current_period_end",
			"cancel_at_period_end", "canceled_at", "stripe_subscription_id").
		Values(s.ID, s.UserID, s.ProductID, s.Status, s.CurrentPeriodStart, s.CurrentPeriodEnd,
			s.CancelAtPeriodEnd, s.CanceledAt, s.StripeSubscriptionID).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return mapErr(err)
	}
	return nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error) {
	query, args, err := psql.
		Select("id", "user_id", "product_id", "status", "current_period_start", "current_period_end",
			"cancel_at_period_end", "canceled_at", "stripe_subscription_id").
		From("subscriptions").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("current_period_start DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Subscription{}
	for rows.Next() {
		var s models.Subscription
		var canceledAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.UserID, &s.ProductID, &s.Status, &s.CurrentPeriodStart,
			&s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &canceledAt, &s.StripeSubscriptionID); err != nil {
			return nil, err
		}
		if canceledAt.Valid {
			s.CanceledAt = &canceledAt.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var pr models.Product
	var price sql.NullInt64
	var md []byte
	if err := row.Scan(&pr.ID, &pr.Name, &pr.Description, &pr.Active, &pr.PriceID, &price, &pr.Currency, &md); err != nil {
		return nil, err
	}
	if price.Valid {
		pr.PriceCents = &price.Int64
	}
	var err error
	if pr.Metadata, err = unmarshalMetadata(md); err != nil {
		return nil, err
	}
	return &pr, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// marshalMetadata returns a string so lib/pq sends text rather than bytea.
func marshalMetadata(md map[string]string) (string, error) {
	if md == nil {
		md = map[string]string{}
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(b []byte) (map[string]string, error) {
	md := map[string]string{}
	if len(b) == 0 {
		return md, nil
	}
	if err := json.Unmarshal(b, &md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return md, nil
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

// PostgresSessions stores sessions in the sessions table.
type PostgresSessions struct {
	db *sql.DB
}

func NewPostgresSessions(db *sql.DB) *PostgresSessions {
	return &PostgresSessions{db: db}
}

func (p *PostgresSessions) CreateSession(ctx context.Context, s *models.Session) error {
	query, args, err := psql.Insert("sessions").
		Columns("id", "user_id", "auth_method", "expires_at").
		Values(s.ID, s.UserID, s.AuthMethod, s.ExpiresAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return mapErr(err)
	}
	return nil
}

func (p *PostgresSessions) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query, args, err := psql.Select("id", "user_id", "auth_method", "expires_at").
		From("sessions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	var s models.Session
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&s.ID, &s.UserID, &s.AuthMethod, &s.ExpiresAt); err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (p *PostgresSessions) DeleteSession(ctx context.Context, id string) error {
	query, args, err := psql.Delete("sessions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, query, args...)
	return err
}

// Sweep deletes expired sessions.
func (p *PostgresSessions) Sweep(now time.Time) (int, error) {
	query, args, err := psql.Delete("sessions").Where(sq.LtOrEq{"expires_at": now}).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := p.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
