package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shestoi/vigil/internal/notifier/repository"
)

// defaultHistoryLimit лимит выборки истории, если фильтр не задал свой
const defaultHistoryLimit = 100

// Repository реализует HistoryRepository и SilenceRepository используя PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый PostgreSQL репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

// InsertAlert сохраняет запись истории алертов
func (r *Repository) InsertAlert(ctx context.Context, record repository.AlertRecord) (int64, error) {
	labels, err := json.Marshal(record.Labels)
	if err != nil {
		return 0, fmt.Errorf("marshal labels: %w", err)
	}
	annotations, err := json.Marshal(record.Annotations)
	if err != nil {
		return 0, fmt.Errorf("marshal annotations: %w", err)
	}

	var endsAt *time.Time
	if !record.EndsAt.IsZero() {
		endsAt = &record.EndsAt
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO alert_history
		   (event_id, alert_name, status, labels, annotations, value, starts_at, ends_at, occurred_at, outcome)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		record.EventID, record.AlertName, record.Status, labels, annotations,
		record.Value, record.StartsAt, endsAt, record.OccurredAt, record.Outcome,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert alert history: %w", err)
	}

	return id, nil
}

// ListAlerts возвращает записи истории по фильтру, новые первыми
func (r *Repository) ListAlerts(ctx context.Context, filter repository.HistoryFilter) ([]repository.AlertRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := `SELECT id, event_id, alert_name, status, labels, annotations, value,
	                 starts_at, ends_at, occurred_at, outcome, created_at
	          FROM alert_history`
	args := []any{}
	where := ""
	if filter.AlertName != "" {
		args = append(args, filter.AlertName)
		where += fmt.Sprintf(" WHERE alert_name = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		if where == "" {
			where = fmt.Sprintf(" WHERE status = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND status = $%d", len(args))
		}
	}
	args = append(args, limit)
	query += where + fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alert history: %w", err)
	}
	defer rows.Close()

	out := make([]repository.AlertRecord, 0)
	for rows.Next() {
		var record repository.AlertRecord
		var labels, annotations []byte
		var endsAt *time.Time
		if err := rows.Scan(&record.ID, &record.EventID, &record.AlertName, &record.Status,
			&labels, &annotations, &record.Value,
			&record.StartsAt, &endsAt, &record.OccurredAt, &record.Outcome, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert history row: %w", err)
		}
		if err := json.Unmarshal(labels, &record.Labels); err != nil {
			return nil, fmt.Errorf("unmarshal labels: %w", err)
		}
		if err := json.Unmarshal(annotations, &record.Annotations); err != nil {
			return nil, fmt.Errorf("unmarshal annotations: %w", err)
		}
		if endsAt != nil {
			record.EndsAt = *endsAt
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// CreateSilence сохраняет новый silence
func (r *Repository) CreateSilence(ctx context.Context, silence repository.Silence) error {
	matchers, err := json.Marshal(silence.Matchers)
	if err != nil {
		return fmt.Errorf("marshal matchers: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO silences (id, matchers, starts_at, ends_at, created_by, comment)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		silence.ID, matchers, silence.StartsAt, silence.EndsAt, silence.CreatedBy, silence.Comment,
	)
	if err != nil {
		return fmt.Errorf("insert silence: %w", err)
	}

	return nil
}

// GetSilence возвращает silence по id
func (r *Repository) GetSilence(ctx context.Context, id string) (repository.Silence, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, matchers, starts_at, ends_at, created_by, comment, created_at
		 FROM silences WHERE id = $1`, id)

	silence, err := scanSilence(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Silence{}, repository.ErrNotFound
		}
		return repository.Silence{}, fmt.Errorf("get silence: %w", err)
	}
	return silence, nil
}

// ListSilences возвращает silences; activeAt обрезает до действующих в этот момент
func (r *Repository) ListSilences(ctx context.Context, activeAt time.Time) ([]repository.Silence, error) {
	query := `SELECT id, matchers, starts_at, ends_at, created_by, comment, created_at FROM silences`
	args := []any{}
	if !activeAt.IsZero() {
		args = append(args, activeAt)
		query += ` WHERE starts_at <= $1 AND ends_at > $1`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list silences: %w", err)
	}
	defer rows.Close()

	out := make([]repository.Silence, 0)
	for rows.Next() {
		silence, err := scanSilence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan silence row: %w", err)
		}
		out = append(out, silence)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// DeleteSilence удаляет silence по id
func (r *Repository) DeleteSilence(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM silences WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete silence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanSilence(row pgx.Row) (repository.Silence, error) {
	var silence repository.Silence
	var matchers []byte
	if err := row.Scan(&silence.ID, &matchers, &silence.StartsAt, &silence.EndsAt,
		&silence.CreatedBy, &silence.Comment, &silence.CreatedAt); err != nil {
		return repository.Silence{}, err
	}
	if err := json.Unmarshal(matchers, &silence.Matchers); err != nil {
		return repository.Silence{}, fmt.Errorf("unmarshal matchers: %w", err)
	}
	return silence, nil
}
