package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"listingsync/internal/core"
	"listingsync/internal/storage"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its dialect and base FS in package globals
var gooseMu sync.Mutex

// SQLiteStorage implements storage.Storage using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies migrations
func New(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY under concurrent jobs
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate applies the embedded goose migrations
func (s *SQLiteStorage) migrate() error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(s.db, "migrations")
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetProperty retrieves a property by ID
func (s *SQLiteStorage) GetProperty(ctx context.Context, id string) (*core.Property, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM properties WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrPropertyNotFound
	}
	if err != nil {
		return nil, err
	}

	var property core.Property
	if err := json.Unmarshal([]byte(data), &property); err != nil {
		return nil, fmt.Errorf("failed to unmarshal property: %w", err)
	}
	return &property, nil
}

// UpsertProperty creates or replaces a property record
func (s *SQLiteStorage) UpsertProperty(ctx context.Context, property *core.Property) error {
	property.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(property)
	if err != nil {
		return fmt.Errorf("failed to marshal property: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO properties (id, user_id, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET user_id = excluded.user_id, data = excluded.data, updated_at = excluded.updated_at
	`, property.ID, property.UserID, string(data), property.UpdatedAt)
	return err
}

const publicationColumns = `id, user_id, property_id, platform, status, external_id, external_url, title, rent,
	available_date, published_at, last_sync_at, error_code, error_message, created_at, updated_at`

// CreatePublication inserts a publication. The (property, platform) pair is unique.
func (s *SQLiteStorage) CreatePublication(ctx context.Context, pub *core.Publication) error {
	now := time.Now().UTC()
	if pub.CreatedAt.IsZero() {
		pub.CreatedAt = now
	}
	pub.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listing_publications (`+publicationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, pub.ID, pub.UserID, pub.PropertyID, pub.Platform, string(pub.Status),
		nullString(pub.ExternalID), nullString(pub.ExternalURL), nullString(pub.Title), pub.Rent.String(),
		nullTime(pub.AvailableDate), nullTime(pub.PublishedAt), nullTime(pub.LastSyncAt),
		nullString(pub.ErrorCode), nullString(pub.ErrorMessage), pub.CreatedAt.UTC(), pub.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", core.ErrPublicationExists, pub.Key())
	}
	return err
}

// GetPublication retrieves a publication by ID
func (s *SQLiteStorage) GetPublication(ctx context.Context, id string) (*core.Publication, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+publicationColumns+` FROM listing_publications WHERE id = ?`, id)
	return scanPublication(row)
}

// GetPublicationByPair retrieves the publication for a (property, platform) pair
func (s *SQLiteStorage) GetPublicationByPair(ctx context.Context, propertyID, platform string) (*core.Publication, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+publicationColumns+` FROM listing_publications
		WHERE property_id = ? AND platform = ?
	`, propertyID, platform)
	return scanPublication(row)
}

// ListPublications lists publications matching filter, newest first
func (s *SQLiteStorage) ListPublications(ctx context.Context, filter storage.PublicationFilter) ([]*core.Publication, error) {
	var conds []string
	var args []any
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.PropertyID != "" {
		conds = append(conds, "property_id = ?")
		args = append(args, filter.PropertyID)
	}
	if filter.Platform != "" {
		conds = append(conds, "platform = ?")
		args = append(args, filter.Platform)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + publicationColumns + ` FROM listing_publications`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pubs []*core.Publication
	for rows.Next() {
		pub, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, rows.Err()
}

// ListStalePublications returns active publications whose last sync is
// missing or older than cutoff
func (s *SQLiteStorage) ListStalePublications(ctx context.Context, cutoff time.Time) ([]*core.Publication, error) {
	active, err := s.ListPublications(ctx, storage.PublicationFilter{Status: core.PublicationStatusActive})
	if err != nil {
		return nil, err
	}

	var stale []*core.Publication
	for _, pub := range active {
		if pub.IsStale(cutoff) {
			stale = append(stale, pub)
		}
	}
	return stale, nil
}

// UpdatePublication updates an existing publication
func (s *SQLiteStorage) UpdatePublication(ctx context.Context, pub *core.Publication) error {
	pub.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE listing_publications
		SET status = ?, external_id = ?, external_url = ?, title = ?, rent = ?, available_date = ?,
			published_at = ?, last_sync_at = ?, error_code = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`, string(pub.Status), nullString(pub.ExternalID), nullString(pub.ExternalURL), nullString(pub.Title),
		pub.Rent.String(), nullTime(pub.AvailableDate), nullTime(pub.PublishedAt), nullTime(pub.LastSyncAt),
		nullString(pub.ErrorCode), nullString(pub.ErrorMessage), pub.UpdatedAt, pub.ID)
	if err != nil {
		return err
	}
	return expectRow(result, core.ErrPublicationNotFound)
}

// DeletePublication deletes a publication
func (s *SQLiteStorage) DeletePublication(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM listing_publications WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectRow(result, core.ErrPublicationNotFound)
}

// GetTokens retrieves a user's tokens for a platform
func (s *SQLiteStorage) GetTokens(ctx context.Context, userID, platform string) (*core.StoredTokens, error) {
	var t core.StoredTokens
	var refreshToken, tokenType, scope, accountName, accountEmail sql.NullString
	var expiresAt, lastRefreshedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, platform, access_token, refresh_token, token_type, scope, expires_at,
			issued_at, last_refreshed_at, valid, account_name, account_email
		FROM platform_tokens WHERE user_id = ? AND platform = ?
	`, userID, platform).Scan(&t.UserID, &t.Platform, &t.AccessToken, &refreshToken, &tokenType, &scope,
		&expiresAt, &t.IssuedAt, &lastRefreshedAt, &t.Valid, &accountName, &accountEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrTokensNotFound
	}
	if err != nil {
		return nil, err
	}

	t.RefreshToken = refreshToken.String
	t.TokenType = tokenType.String
	t.Scope = scope.String
	t.AccountName = accountName.String
	t.AccountEmail = accountEmail.String
	t.ExpiresAt = timePtr(expiresAt)
	t.LastRefreshedAt = timePtr(lastRefreshedAt)
	return &t, nil
}

// SaveTokens creates or replaces a user's tokens for a platform
func (s *SQLiteStorage) SaveTokens(ctx context.Context, t *core.StoredTokens) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_tokens (user_id, platform, access_token, refresh_token, token_type, scope,
			expires_at, issued_at, last_refreshed_at, valid, account_name, account_email, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, platform) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			scope = excluded.scope,
			expires_at = excluded.expires_at,
			issued_at = excluded.issued_at,
			last_refreshed_at = excluded.last_refreshed_at,
			valid = excluded.valid,
			account_name = excluded.account_name,
			account_email = excluded.account_email,
			updated_at = excluded.updated_at
	`, t.UserID, t.Platform, t.AccessToken, nullString(t.RefreshToken), nullString(t.TokenType), nullString(t.Scope),
		nullTime(t.ExpiresAt), t.IssuedAt.UTC(), nullTime(t.LastRefreshedAt), t.Valid,
		nullString(t.AccountName), nullString(t.AccountEmail), time.Now().UTC())
	return err
}

// InvalidateTokens flips the validity flag without deleting the record
func (s *SQLiteStorage) InvalidateTokens(ctx context.Context, userID, platform string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE platform_tokens SET valid = 0, updated_at = ? WHERE user_id = ? AND platform = ?
	`, time.Now().UTC(), userID, platform)
	if err != nil {
		return err
	}
	return expectRow(result, core.ErrTokensNotFound)
}

// DeleteTokens removes a platform connection
func (s *SQLiteStorage) DeleteTokens(ctx context.Context, userID, platform string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM platform_tokens WHERE user_id = ? AND platform = ?`, userID, platform)
	if err != nil {
		return err
	}
	return expectRow(result, core.ErrTokensNotFound)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPublication(row scanner) (*core.Publication, error) {
	var pub core.Publication
	var status, rent string
	var externalID, externalURL, title, errorCode, errorMessage sql.NullString
	var availableDate, publishedAt, lastSyncAt sql.NullTime

	err := row.Scan(&pub.ID, &pub.UserID, &pub.PropertyID, &pub.Platform, &status, &externalID, &externalURL,
		&title, &rent, &availableDate, &publishedAt, &lastSyncAt, &errorCode, &errorMessage,
		&pub.CreatedAt, &pub.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrPublicationNotFound
	}
	if err != nil {
		return nil, err
	}

	pub.Status = core.PublicationStatus(status)
	pub.ExternalID = externalID.String
	pub.ExternalURL = externalURL.String
	pub.Title = title.String
	pub.ErrorCode = errorCode.String
	pub.ErrorMessage = errorMessage.String
	pub.AvailableDate = timePtr(availableDate)
	pub.PublishedAt = timePtr(publishedAt)
	pub.LastSyncAt = timePtr(lastSyncAt)
	if rent != "" {
		if pub.Rent, err = decimal.NewFromString(rent); err != nil {
			return nil, fmt.Errorf("invalid rent %q: %w", rent, err)
		}
	}
	return &pub, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func expectRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ storage.Storage = (*SQLiteStorage)(nil)
