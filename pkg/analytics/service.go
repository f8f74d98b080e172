package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/deskforge/deskforge/pkg/observability"
)

// TeamStats are the per-team ticket KPIs surfaced on dashboards
type TeamStats struct {
	TeamID            int64   `json:"team_id"`
	OpenTickets       int64   `json:"open_tickets"`
	ResolvedTickets   int64   `json:"resolved_tickets"`
	EscalatedTickets  int64   `json:"escalated_tickets"`
	AvgResolutionSecs float64 `json:"avg_resolution_secs"`
	ComputedAt        time.Time `json:"computed_at"`
}

// OverviewStats are organization-wide KPIs, admin only
type OverviewStats struct {
	TotalTickets     int64     `json:"total_tickets"`
	OpenTickets      int64     `json:"open_tickets"`
	EscalatedTickets int64     `json:"escalated_tickets"`
	ActiveTeams      int64     `json:"active_teams"`
	ComputedAt       time.Time `json:"computed_at"`
}

// DefaultStatsCacheSize bounds the per-team stats cache.
const DefaultStatsCacheSize = 256

// DefaultStatsTTL is how long computed team stats may be served.
const DefaultStatsTTL = 5 * time.Minute

// Service computes scoped ticket analytics. Team stats go through a
// bounded, TTL'd LRU injected at construction so eviction behavior is
// testable; this cache is separate from the resolution cache and holds
// no authorization state.
type Service struct {
	db     *sql.DB
	scoper *Scoper
	stats  *lru.LRU[int64, *TeamStats]
	logger *observability.Logger
}

// NewService creates an analytics service. statsCache may be nil, in
// which case a default-sized cache is created.
func NewService(db *sql.DB, scoper *Scoper, statsCache *lru.LRU[int64, *TeamStats], logger *observability.Logger) *Service {
	if statsCache == nil {
		statsCache = lru.NewLRU[int64, *TeamStats](DefaultStatsCacheSize, nil, DefaultStatsTTL)
	}
	return &Service{
		db:     db,
		scoper: scoper,
		stats:  statsCache,
		logger: logger,
	}
}

// GetTeamStats returns KPIs for one team, authorizing the caller first.
func (s *Service) GetTeamStats(ctx context.Context, identityID, teamID int64) (*TeamStats, error) {
	if !s.scoper.CanViewTeamAnalytics(ctx, identityID, teamID) {
		return nil, ErrAnalyticsDenied
	}

	if stats, ok := s.stats.Get(teamID); ok {
		return stats, nil
	}

	stats, err := s.computeTeamStats(ctx, teamID)
	if err != nil {
		return nil, err
	}

	s.stats.Add(teamID, stats)
	return stats, nil
}

// GetOverview returns organization-wide KPIs. Only identities with
// organization-level analytics access may call it.
func (s *Service) GetOverview(ctx context.Context, identityID int64) (*OverviewStats, error) {
	filter, err := s.scoper.FilterFor(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if filter.Level != LevelOrganization {
		return nil, ErrAnalyticsDenied
	}

	var overview OverviewStats
	overview.ComputedAt = time.Now().UTC()

	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status IN ('open', 'in_progress')),
		       COUNT(*) FILTER (WHERE escalated),
		       COUNT(DISTINCT team_id)
		FROM tickets
	`
	err = s.db.QueryRowContext(ctx, query).Scan(
		&overview.TotalTickets,
		&overview.OpenTickets,
		&overview.EscalatedTickets,
		&overview.ActiveTeams,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute overview: %w", err)
	}

	return &overview, nil
}

// ListTeamStats returns KPIs for every team the identity may see,
// filtered at query time by the analytics scope.
func (s *Service) ListTeamStats(ctx context.Context, identityID int64) ([]*TeamStats, error) {
	filter, err := s.scoper.FilterFor(ctx, identityID)
	if err != nil {
		return nil, err
	}

	clause, args := filter.SQL("team_id", 1)
	query := fmt.Sprintf(`
		SELECT team_id,
		       COUNT(*) FILTER (WHERE status IN ('open', 'in_progress')),
		       COUNT(*) FILTER (WHERE status = 'resolved'),
		       COUNT(*) FILTER (WHERE escalated),
		       COALESCE(AVG(EXTRACT(EPOCH FROM updated_at - created_at)) FILTER (WHERE status = 'resolved'), 0)
		FROM tickets
		WHERE team_id IS NOT NULL AND %s
		GROUP BY team_id
		ORDER BY team_id ASC
	`, clause)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list team stats: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var all []*TeamStats
	for rows.Next() {
		stats := TeamStats{ComputedAt: now}
		if err := rows.Scan(
			&stats.TeamID,
			&stats.OpenTickets,
			&stats.ResolvedTickets,
			&stats.EscalatedTickets,
			&stats.AvgResolutionSecs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan team stats: %w", err)
		}
		all = append(all, &stats)
	}

	return all, rows.Err()
}

// computeTeamStats runs the per-team aggregate
func (s *Service) computeTeamStats(ctx context.Context, teamID int64) (*TeamStats, error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE status IN ('open', 'in_progress')),
		       COUNT(*) FILTER (WHERE status = 'resolved'),
		       COUNT(*) FILTER (WHERE escalated),
		       COALESCE(AVG(EXTRACT(EPOCH FROM updated_at - created_at)) FILTER (WHERE status = 'resolved'), 0)
		FROM tickets
		WHERE team_id = $1
	`

	stats := TeamStats{TeamID: teamID, ComputedAt: time.Now().UTC()}
	err := s.db.QueryRowContext(ctx, query, teamID).Scan(
		&stats.OpenTickets,
		&stats.ResolvedTickets,
		&stats.EscalatedTickets,
		&stats.AvgResolutionSecs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute team stats: %w", err)
	}

	return &stats, nil
}

// InvalidateTeamStats removes one team's cached stats
func (s *Service) InvalidateTeamStats(teamID int64) {
	s.stats.Remove(teamID)
}
