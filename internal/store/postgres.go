package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, email, first_name, last_name, display_name, role, password_hash, is_email_verified, COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.DisplayName,
		&user.Role,
		&user.PasswordHash,
		&user.IsEmailVerified,
		&user.VerificationToken,
		&user.VerificationExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", classify(err))
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, strings.TrimSpace(email)))
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", classify(err))
	}
	return user, nil
}

// LookupRole returns the role record for email, or nil when no user matches.
func (s *PostgresStore) LookupRole(ctx context.Context, email string) (*RoleRecord, error) {
	var record RoleRecord
	err := s.db.QueryRowContext(ctx, `SELECT email, role FROM users WHERE LOWER(email)=LOWER($1)`, strings.TrimSpace(email)).Scan(&record.Email, &record.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup role: %w", err)
	}
	return &record, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, display_name, role, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
	`, user.ID, strings.TrimSpace(user.Email), user.FirstName, user.LastName, user.DisplayName, user.Role, user.PasswordHash, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("create user: %w", classify(err))
	}
	return nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, userID, firstName, lastName, role string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users
		SET first_name=$2, last_name=$3, display_name=TRIM(CONCAT($2::text, ' ', $3::text)), role=$4, updated_at=NOW()
		WHERE id=$1
		RETURNING `+userColumns, userID, firstName, lastName, role))
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", classify(err))
	}
	return user, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectAffected(result, "delete user")
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	return expectAffected(result, "verify email")
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, is_email_verified=TRUE, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectAffected(result, "update password")
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

// ConsumePasswordReset marks an unused, unexpired reset token used and
// returns its user id. A token can be consumed once; later calls get ErrNotFound.
func (s *PostgresStore) ConsumePasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE password_resets SET used_at=NOW()
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
		RETURNING user_id
	`, token).Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("consume password reset: %w", classify(err))
	}
	return userID, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.first_name, u.last_name, u.display_name, u.role, u.password_hash, u.is_email_verified,
			COALESCE(u.verification_token, ''), u.verification_expires_at, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash))
	if err != nil {
		return User{}, fmt.Errorf("lookup refresh session: %w", classify(err))
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

const candidateColumns = `id, first_name, last_name, email, phone, location, linkedin_url, current_title, current_company,
	current_salary, expected_salary, notice_period, years_experience, skills, education, languages, summary,
	willing_to_relocate, availability_date, cv_file_path, cv_url, notes, created_by, date_added`

func scanCandidate(row rowScanner) (Candidate, error) {
	var item Candidate
	err := row.Scan(
		&item.ID,
		&item.FirstName,
		&item.LastName,
		&item.Email,
		&item.Phone,
		&item.Location,
		&item.LinkedInURL,
		&item.CurrentTitle,
		&item.CurrentCompany,
		&item.CurrentSalary,
		&item.ExpectedSalary,
		&item.NoticePeriod,
		&item.YearsExperience,
		&item.Skills,
		&item.Education,
		&item.Languages,
		&item.Summary,
		&item.WillingToRelocate,
		&item.AvailabilityDate,
		&item.CVFilePath,
		&item.CVURL,
		&item.Notes,
		&item.CreatedBy,
		&item.DateAdded,
	)
	return item, err
}

// InsertCandidate writes one candidate row and returns it as stored.
func (s *PostgresStore) InsertCandidate(ctx context.Context, item Candidate) (Candidate, error) {
	inserted, err := scanCandidate(s.db.QueryRowContext(ctx, `
		INSERT INTO candidates (id, first_name, last_name, email, phone, location, linkedin_url, current_title, current_company,
			current_salary, expected_salary, notice_period, years_experience, skills, education, languages, summary,
			willing_to_relocate, availability_date, cv_file_path, cv_url, notes, created_by, date_added)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING `+candidateColumns,
		item.ID, item.FirstName, item.LastName, item.Email, item.Phone, item.Location, item.LinkedInURL, item.CurrentTitle, item.CurrentCompany,
		item.CurrentSalary, item.ExpectedSalary, item.NoticePeriod, item.YearsExperience, item.Skills, item.Education, item.Languages, item.Summary,
		item.WillingToRelocate, item.AvailabilityDate, item.CVFilePath, item.CVURL, item.Notes, item.CreatedBy, item.DateAdded,
	))
	if err != nil {
		return Candidate{}, fmt.Errorf("insert candidate: %w", classify(err))
	}
	return inserted, nil
}

func (s *PostgresStore) GetCandidate(ctx context.Context, candidateID string) (Candidate, error) {
	item, err := scanCandidate(s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id=$1`, candidateID))
	if err != nil {
		return Candidate{}, fmt.Errorf("get candidate: %w", classify(err))
	}
	return item, nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+candidateColumns+` FROM candidates ORDER BY date_added DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	items := make([]Candidate, 0)
	for rows.Next() {
		item, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteCandidate(ctx context.Context, candidateID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM candidates WHERE id=$1`, candidateID)
	if err != nil {
		return fmt.Errorf("delete candidate: %w", err)
	}
	return expectAffected(result, "delete candidate")
}

func (s *PostgresStore) InsertCVDocument(ctx context.Context, doc CVDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cv_documents (path, filename, media_type, size_bytes, body, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (path) DO UPDATE SET body=EXCLUDED.body, size_bytes=EXCLUDED.size_bytes
	`, doc.Path, doc.Filename, doc.MediaType, doc.SizeBytes, doc.Body, doc.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert cv document: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertCompany(ctx context.Context, item Company) (Company, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO companies (id, name, location, industry, employee_count, website, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, item.ID, item.Name, item.Location, item.Industry, item.EmployeeCount, item.Website, item.CreatedBy).Scan(&item.CreatedAt)
	if err != nil {
		return Company{}, fmt.Errorf("insert company: %w", classify(err))
	}
	return item, nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]Company, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, location, industry, employee_count, website, created_by, created_at
		FROM companies
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	items := make([]Company, 0)
	for rows.Next() {
		var item Company
		if err := rows.Scan(&item.ID, &item.Name, &item.Location, &item.Industry, &item.EmployeeCount, &item.Website, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertNotification(ctx context.Context, item Notification) (Notification, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, link)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, item.ID, item.UserID, item.Title, item.Message, item.Link).Scan(&item.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", classify(err))
	}
	return item, nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, message, link, is_read, read_at, created_at
		FROM notifications
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &item.Message, &item.Link, &item.IsRead, &item.ReadAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UnreadNotificationCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND NOT is_read`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead flags one notification as read. It reports false only
// when no notification with that id belongs to userID; repeating it is fine.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, userID, notificationID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read=TRUE, read_at=COALESCE(read_at, NOW()) WHERE id=$1 AND user_id=$2
	`, notificationID, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read=TRUE, read_at=NOW() WHERE user_id=$1 AND NOT is_read
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read rows: %w", err)
	}
	return affected, nil
}

func expectAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
