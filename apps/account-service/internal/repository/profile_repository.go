package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/telemetry"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/usersession"
	"go.opentelemetry.io/otel/attribute"
)

// Querier is the part of *database.PostgresDB the repository needs
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresProfileRepository reads the profiles table of the auth database
type PostgresProfileRepository struct {
	db Querier
}

// NewPostgresProfileRepository creates a new PostgresProfileRepository
func NewPostgresProfileRepository(db Querier) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

// GetProfileByID returns the profile row of id, or (nil, nil) when there is none.
// The whole row is read so columns added later still reach the client.
func (r *PostgresProfileRepository) GetProfileByID(ctx context.Context, id string) (*usersession.Profile, error) {
	ctx, span := telemetry.StartSpan(ctx, "repository.profile.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", id))

	query := `
		SELECT row_to_json(p)
		FROM profiles p
		WHERE p.id::text = $1
	`
	var raw []byte
	if err := r.db.QueryRow(ctx, query, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	profile, err := decodeProfile(raw)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return profile, nil
}

var knownColumns = []string{"id", "full_name", "phone", "avatar_url", "created_at", "updated_at"}

// decodeProfile maps a row_to_json document onto Profile, keeping unknown
// columns in Extra. Null columns are left at their zero value.
func decodeProfile(raw []byte) (*usersession.Profile, error) {
	var cols map[string]json.RawMessage
	if err := json.Unmarshal(raw, &cols); err != nil {
		return nil, fmt.Errorf("failed to decode profile row: %w", err)
	}

	p := &usersession.Profile{}
	targets := map[string]interface{}{
		"id":         &p.ID,
		"full_name":  &p.FullName,
		"phone":      &p.Phone,
		"avatar_url": &p.AvatarURL,
		"created_at": &p.CreatedAt,
		"updated_at": &p.UpdatedAt,
	}
	for _, name := range knownColumns {
		val, ok := cols[name]
		delete(cols, name)
		if !ok || string(val) == "null" {
			continue
		}
		if err := json.Unmarshal(val, targets[name]); err != nil {
			if t, ok := targets[name].(*time.Time); ok {
				// timestamp without time zone comes back without an offset
				if parsed, perr := parseLocalTimestamp(val); perr == nil {
					*t = parsed
					continue
				}
			}
			return nil, fmt.Errorf("failed to decode profile column %s: %w", name, err)
		}
	}

	if len(cols) > 0 {
		p.Extra = cols
	}
	return p, nil
}

func parseLocalTimestamp(val json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(val, &s); err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation("2006-01-02T15:04:05.999999", s, time.UTC)
}
