package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ansm0403/Shopping-mall/internal/auth/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxIface is the slice of pgxpool.Pool the repository needs; pgxmock
// implements it in tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresRepository struct {
	db PgxIface
}

func NewPostgresRepository(db PgxIface) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ===== users =====

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT id, email, password_hash, nick_name, phone_number, address, role, created_at, updated_at
		FROM users
		WHERE email = $1
		LIMIT 1;
	`

	return r.scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, email, password_hash, nick_name, phone_number, address, role, created_at, updated_at
		FROM users
		WHERE id = $1
		LIMIT 1;
	`

	return r.scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.NickName,
		&user.PhoneNumber, &user.Address, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, nick_name, phone_number, address, role, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, user.ID, user.Email, user.PasswordHash, user.NickName, user.PhoneNumber,
		user.Address, user.Role, user.CreatedAt, user.UpdatedAt)

	return err
}

func (r *PostgresRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}

	return exists, nil
}

func (r *PostgresRepository) NicknameExists(ctx context.Context, nickName string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE nick_name = $1)`, nickName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check nickname existence: %w", err)
	}

	return exists, nil
}

// ===== refresh tokens =====

func (r *PostgresRepository) Store(ctx context.Context, rt *domain.RefreshTokenRecord) error {
	query := `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, is_revoked, user_agent, ip_address, device_id, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		rt.ID, rt.UserID, rt.TokenHash, rt.ExpiresAt, rt.IsRevoked,
		rt.UserAgent, rt.IPAddress, rt.DeviceID, rt.CreatedAt)

	return err
}

func (r *PostgresRepository) Get(ctx context.Context, tokenID, userID string) (*domain.RefreshTokenRecord, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, is_revoked, revoked_at, user_agent, ip_address, device_id, created_at, last_used_at
		FROM refresh_tokens
		WHERE id = $1 AND user_id = $2
		LIMIT 1;
	`
	row := r.db.QueryRow(ctx, query, tokenID, userID)

	var rt domain.RefreshTokenRecord
	err := row.Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.IsRevoked,
		&rt.RevokedAt, &rt.UserAgent, &rt.IPAddress, &rt.DeviceID, &rt.CreatedAt, &rt.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return &rt, nil
}

// Revoke flips is_revoked only when the row is still active. The conditional
// update is what makes rotation single-winner under concurrent replay: the
// second caller's update matches zero rows.
func (r *PostgresRepository) Revoke(ctx context.Context, tokenID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET is_revoked = true, revoked_at = now()
		WHERE id = $1 AND is_revoked = false
	`, tokenID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET is_revoked = true, revoked_at = now()
		WHERE user_id = $1 AND is_revoked = false
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke user refresh tokens: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetActiveByUserID(ctx context.Context, userID string) ([]*domain.RefreshTokenRecord, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, is_revoked, revoked_at, user_agent, ip_address, device_id, created_at, last_used_at
		FROM refresh_tokens
		WHERE user_id = $1 AND is_revoked = false
		ORDER BY created_at DESC;
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active refresh tokens: %w", err)
	}
	defer rows.Close()

	var records []*domain.RefreshTokenRecord
	for rows.Next() {
		var rt domain.RefreshTokenRecord
		if err := rows.Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.IsRevoked,
			&rt.RevokedAt, &rt.UserAgent, &rt.IPAddress, &rt.DeviceID, &rt.CreatedAt, &rt.LastUsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan refresh token row: %w", err)
		}
		records = append(records, &rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate refresh token rows: %w", err)
	}

	return records, nil
}

func (r *PostgresRepository) CountActiveByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM refresh_tokens
		WHERE user_id = $1 AND is_revoked = false
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active refresh tokens: %w", err)
	}

	return count, nil
}

// RevokeOldestForUser revokes the user's oldest active session and returns
// its token id so the cache marker can be removed too. Returns "" when the
// user has no active sessions.
func (r *PostgresRepository) RevokeOldestForUser(ctx context.Context, userID string) (string, error) {
	var tokenID string
	err := r.db.QueryRow(ctx, `
		UPDATE refresh_tokens
		SET is_revoked = true, revoked_at = now()
		WHERE id = (
			SELECT id FROM refresh_tokens
			WHERE user_id = $1 AND is_revoked = false
			ORDER BY created_at ASC
			LIMIT 1
		)
		RETURNING id
	`, userID).Scan(&tokenID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to revoke oldest refresh token: %w", err)
	}

	return tokenID, nil
}

func (r *PostgresRepository) TouchLastUsed(ctx context.Context, tokenID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens SET last_used_at = now() WHERE id = $1
	`, tokenID)
	if err != nil {
		return fmt.Errorf("failed to update last_used_at: %w", err)
	}

	return nil
}

// ===== audit log =====

func (r *PostgresRepository) InsertAuditEntry(ctx context.Context, entry *domain.AuditEntry) error {
	var metadata []byte
	if entry.Metadata != nil {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	var userID any
	if entry.UserID != "" {
		userID = entry.UserID
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_logs (user_id, action, ip_address, user_agent, metadata, success, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, userID, string(entry.Action), entry.IPAddress, entry.UserAgent,
		metadata, entry.Success, entry.ErrorMessage, entry.CreatedAt)

	return err
}

func (r *PostgresRepository) ListAuditByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, COALESCE(user_id::text, ''), action, ip_address, COALESCE(user_agent, ''), metadata, success, COALESCE(error_message, ''), created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var action string
		var metadata []byte
		if err := rows.Scan(&entry.ID, &entry.UserID, &action, &entry.IPAddress,
			&entry.UserAgent, &metadata, &entry.Success, &entry.ErrorMessage, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log row: %w", err)
		}
		entry.Action = domain.AuditAction(action)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit log rows: %w", err)
	}

	return entries, nil
}

// CountFailedLogins counts FAILED_LOGIN events for an email since the given
// time, matching on the metadata the login flow records.
func (r *PostgresRepository) CountFailedLogins(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM audit_logs
		WHERE action = $1 AND success = false AND metadata->>'email' = $2 AND created_at >= $3
	`, string(domain.AuditFailedLogin), email, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed logins: %w", err)
	}

	return count, nil
}
