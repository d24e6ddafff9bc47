package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pennsieve/agent/internal/agenterrors"
	"github.com/pennsieve/agent/internal/telemetry"
)

// sessionTokenValidity is how long a UserRecord's session_token
// remains usable after updated_at, per spec.md §3.
const sessionTokenValidity = 90 * time.Minute

// UserRecord is the agent's singleton logged-in-user row (inner_id is
// always 1; only one user profile is active at a time).
type UserRecord struct {
	ID               string
	Name             string
	SessionToken     string
	Profile          string
	Environment      string
	OrganizationID   string
	OrganizationName string
	EncryptionKey    string
	UpdatedAt        string
}

// UpsertUser replaces the singleton user_record row (inner_id=1).
func (s *Store) UpsertUser(ctx context.Context, u UserRecord) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "upsert_user", telemetry.StoreTable("user_record"))
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_record (
			inner_id, id, name, session_token, profile, environment,
			organization_id, organization_name, encryption_key, updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (inner_id) DO UPDATE SET
			id = excluded.id,
			name = excluded.name,
			session_token = excluded.session_token,
			profile = excluded.profile,
			environment = excluded.environment,
			organization_id = excluded.organization_id,
			organization_name = excluded.organization_name,
			encryption_key = excluded.encryption_key,
			updated_at = excluded.updated_at
	`, u.ID, u.Name, u.SessionToken, u.Profile, u.Environment,
		u.OrganizationID, u.OrganizationName, u.EncryptionKey, u.UpdatedAt)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return agenterrors.Wrap(agenterrors.CodeIO, "upserting user record", err)
	}
	return nil
}

// GetUser returns the singleton user row, or CodeNotFound if no user
// has ever logged in.
func (s *Store) GetUser(ctx context.Context) (*UserRecord, error) {
	ctx, span := telemetry.StartStoreSpan(ctx, "get_user", telemetry.StoreTable("user_record"))
	defer span.End()

	var u UserRecord
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, session_token, profile, environment,
			organization_id, organization_name, encryption_key, updated_at
		FROM user_record WHERE inner_id = 1
	`)
	if err := row.Scan(&u.ID, &u.Name, &u.SessionToken, &u.Profile, &u.Environment,
		&u.OrganizationID, &u.OrganizationName, &u.EncryptionKey, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, agenterrors.New(agenterrors.CodeNotFound, "no logged-in user")
		}
		telemetry.RecordError(ctx, err)
		return nil, agenterrors.Wrap(agenterrors.CodeIO, "getting user record", err)
	}
	return &u, nil
}

// DeleteUser removes the singleton user row (logout).
func (s *Store) DeleteUser(ctx context.Context) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "delete_user", telemetry.StoreTable("user_record"))
	defer span.End()

	_, err := s.db.ExecContext(ctx, `DELETE FROM user_record WHERE inner_id = 1`)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return agenterrors.Wrap(agenterrors.CodeIO, "deleting user record", err)
	}
	return nil
}

// SessionValid reports whether u's session_token is still usable,
// i.e. updated_at + 90 minutes is after now.
func (u *UserRecord) SessionValid(now time.Time) bool {
	updatedAt, err := time.Parse(time.RFC3339Nano, u.UpdatedAt)
	if err != nil {
		return false
	}
	return updatedAt.Add(sessionTokenValidity).After(now)
}

// UserSettings is a per-(user,profile) preference row; currently the
// only tracked setting is the last dataset a user browsed into.
type UserSettings struct {
	UserID       string
	Profile      string
	UseDatasetID sql.NullString
}

// UpsertUserSettings replaces a (user_id, profile) settings row.
func (s *Store) UpsertUserSettings(ctx context.Context, us UserSettings) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "upsert_user_settings", telemetry.StoreTable("user_settings"))
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, profile, use_dataset_id)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, profile) DO UPDATE SET
			use_dataset_id = excluded.use_dataset_id
	`, us.UserID, us.Profile, us.UseDatasetID)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return agenterrors.Wrap(agenterrors.CodeIO, "upserting user settings", err)
	}
	return nil
}

// GetOrCreateUserSettings returns the settings row for (userID,
// profile), creating an empty one if none exists yet.
func (s *Store) GetOrCreateUserSettings(ctx context.Context, userID, profile string) (*UserSettings, error) {
	ctx, span := telemetry.StartStoreSpan(ctx, "get_or_create_user_settings", telemetry.StoreTable("user_settings"))
	defer span.End()

	var us UserSettings
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, profile, use_dataset_id FROM user_settings
		WHERE user_id = ? AND profile = ?
	`, userID, profile)
	err := row.Scan(&us.UserID, &us.Profile, &us.UseDatasetID)
	if err == nil {
		return &us, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		telemetry.RecordError(ctx, err)
		return nil, agenterrors.Wrap(agenterrors.CodeIO, "getting user settings", err)
	}

	created := UserSettings{UserID: userID, Profile: profile}
	if err := s.UpsertUserSettings(ctx, created); err != nil {
		return nil, err
	}
	return &created, nil
}
