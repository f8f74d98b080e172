package identity

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new identity store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetIdentity retrieves an identity with its led teams eagerly loaded
func (s *PostgresStore) GetIdentity(ctx context.Context, id int64) (*Identity, error) {
	query := `
		SELECT id, username, email, full_name, role, primary_team_id, is_active, created_at, updated_at, last_login_at
		FROM identities
		WHERE id = $1
	`

	var ident Identity
	var email, fullName, role sql.NullString
	var primaryTeamID sql.NullInt64
	var lastLoginAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ident.ID,
		&ident.Username,
		&email,
		&fullName,
		&role,
		&primaryTeamID,
		&ident.IsActive,
		&ident.CreatedAt,
		&ident.UpdatedAt,
		&lastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	if email.Valid {
		ident.Email = email.String
	}
	if fullName.Valid {
		ident.FullName = fullName.String
	}
	if role.Valid {
		ident.Role = Role(role.String)
	}
	if primaryTeamID.Valid {
		teamID := primaryTeamID.Int64
		ident.PrimaryTeamID = &teamID
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		ident.LastLoginAt = &t
	}

	ledTeams, err := s.getLedTeams(ctx, id)
	if err != nil {
		return nil, err
	}
	ident.LedTeamIDs = ledTeams

	return &ident, nil
}

// getLedTeams returns the IDs of every team the identity leads
func (s *PostgresStore) getLedTeams(ctx context.Context, identityID int64) ([]int64, error) {
	query := `
		SELECT team_id
		FROM team_leaderships
		WHERE identity_id = $1
		ORDER BY team_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list led teams: %w", err)
	}
	defer rows.Close()

	var teamIDs []int64
	for rows.Next() {
		var teamID int64
		if err := rows.Scan(&teamID); err != nil {
			return nil, fmt.Errorf("failed to scan led team: %w", err)
		}
		teamIDs = append(teamIDs, teamID)
	}

	return teamIDs, rows.Err()
}

// GetTeam retrieves a team by ID
func (s *PostgresStore) GetTeam(ctx context.Context, id int64) (*Team, error) {
	query := `
		SELECT id, name, display_name, description, created_at, updated_at
		FROM teams
		WHERE id = $1
	`

	var team Team
	var description sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&team.ID,
		&team.Name,
		&team.DisplayName,
		&description,
		&team.CreatedAt,
		&team.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	if description.Valid {
		team.Description = description.String
	}

	return &team, nil
}

// ListTeamMembers returns all identities whose primary team is teamID
func (s *PostgresStore) ListTeamMembers(ctx context.Context, teamID int64) ([]*Identity, error) {
	query := `
		SELECT id, username, email, full_name, role, primary_team_id, is_active, created_at, updated_at, last_login_at
		FROM identities
		WHERE primary_team_id = $1
		ORDER BY username ASC
	`

	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var members []*Identity
	for rows.Next() {
		var ident Identity
		var email, fullName, role sql.NullString
		var primaryTeamID sql.NullInt64
		var lastLoginAt sql.NullTime

		if err := rows.Scan(
			&ident.ID,
			&ident.Username,
			&email,
			&fullName,
			&role,
			&primaryTeamID,
			&ident.IsActive,
			&ident.CreatedAt,
			&ident.UpdatedAt,
			&lastLoginAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}

		if email.Valid {
			ident.Email = email.String
		}
		if fullName.Valid {
			ident.FullName = fullName.String
		}
		if role.Valid {
			ident.Role = Role(role.String)
		}
		if primaryTeamID.Valid {
			tID := primaryTeamID.Int64
			ident.PrimaryTeamID = &tID
		}
		if lastLoginAt.Valid {
			t := lastLoginAt.Time
			ident.LastLoginAt = &t
		}

		members = append(members, &ident)
	}

	return members, rows.Err()
}

// ListTeams returns all teams ordered by name
func (s *PostgresStore) ListTeams(ctx context.Context) ([]*Team, error) {
	query := `
		SELECT id, name, display_name, description, created_at, updated_at
		FROM teams
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []*Team
	for rows.Next() {
		var team Team
		var description sql.NullString
		if err := rows.Scan(
			&team.ID,
			&team.Name,
			&team.DisplayName,
			&description,
			&team.CreatedAt,
			&team.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		if description.Valid {
			team.Description = description.String
		}
		teams = append(teams, &team)
	}

	return teams, rows.Err()
}

// UpdateIdentityRole persists a role change
func (s *PostgresStore) UpdateIdentityRole(ctx context.Context, id int64, role Role) error {
	query := `
		UPDATE identities
		SET role = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, string(role), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrIdentityNotFound
	}

	return nil
}

// UpdateIdentityTeam persists a primary-team change
func (s *PostgresStore) UpdateIdentityTeam(ctx context.Context, id int64, teamID *int64) error {
	query := `
		UPDATE identities
		SET primary_team_id = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, teamID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update primary team: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrIdentityNotFound
	}

	return nil
}

// AddTeamLeadership records a leadership relation, idempotently
func (s *PostgresStore) AddTeamLeadership(ctx context.Context, identityID, teamID int64) error {
	query := `
		INSERT INTO team_leaderships (identity_id, team_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity_id, team_id) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, identityID, teamID, time.Now()); err != nil {
		return fmt.Errorf("failed to add team leadership: %w", err)
	}

	return nil
}

// RemoveTeamLeadership removes a leadership relation
func (s *PostgresStore) RemoveTeamLeadership(ctx context.Context, identityID, teamID int64) error {
	query := `
		DELETE FROM team_leaderships
		WHERE identity_id = $1 AND team_id = $2
	`

	if _, err := s.db.ExecContext(ctx, query, identityID, teamID); err != nil {
		return fmt.Errorf("failed to remove team leadership: %w", err)
	}

	return nil
}
