package platform

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-dirigera/internal/entity"
)

// timeLayout is fixed-width so timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Row is the persisted form of an entity.
type Row struct {
	DeviceID     string       `json:"device_id"`
	VendorType   string       `json:"vendor_type"`
	Category     string       `json:"category"`
	Name         string       `json:"name"`
	Model        string       `json:"model,omitempty"`
	Manufacturer string       `json:"manufacturer,omitempty"`
	Firmware     string       `json:"firmware,omitempty"`
	Room         string       `json:"room,omitempty"`
	State        entity.State `json:"state"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// rowFor snapshots ent for persistence.
func rowFor(ent entity.Entity) Row {
	info := ent.DeviceInfo()
	return Row{
		DeviceID:     ent.UniqueID(),
		VendorType:   string(ent.VendorType()),
		Category:     string(ent.Category()),
		Name:         ent.Name(),
		Model:        info.Model,
		Manufacturer: info.Manufacturer,
		Firmware:     info.FirmwareVersion,
		Room:         info.Room,
		State:        ent.State(),
	}
}

// Repository persists entity rows.
type Repository interface {
	// SaveAll inserts or updates rows in a single transaction. Existing
	// rows keep their created_at.
	SaveAll(ctx context.Context, rows []Row) error

	// UpdateState replaces the stored state of one entity.
	// Returns ErrEntityNotFound if no row exists.
	UpdateState(ctx context.Context, id string, state entity.State) error

	// Get returns one row. Returns ErrEntityNotFound if no row exists.
	Get(ctx context.Context, id string) (*Row, error)

	// List returns rows ordered by device id, optionally for one category.
	List(ctx context.Context, category entity.Category) ([]Row, error)

	// Delete removes one row. Returns ErrEntityNotFound if no row exists.
	Delete(ctx context.Context, id string) error

	// PruneExcept removes every row whose id is not in keep and returns
	// the number removed.
	PruneExcept(ctx context.Context, keep []string) (int, error)
}

// SQLiteRepository implements Repository on the entities table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveAll implements Repository.
func (r *SQLiteRepository) SaveAll(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (device_id, vendor_type, category, name, model, manufacturer,
			firmware, room, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			vendor_type = excluded.vendor_type,
			category = excluded.category,
			name = excluded.name,
			model = excluded.model,
			manufacturer = excluded.manufacturer,
			firmware = excluded.firmware,
			room = excluded.room,
			state = excluded.state,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing entity upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(timeLayout)
	for i := range rows {
		row := &rows[i]
		state, err := encodeState(row.State)
		if err != nil {
			return fmt.Errorf("entity %s: %w", row.DeviceID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			row.DeviceID, row.VendorType, row.Category, row.Name,
			nullableString(row.Model), nullableString(row.Manufacturer),
			nullableString(row.Firmware), nullableString(row.Room),
			state, now, now,
		); err != nil {
			return fmt.Errorf("saving entity %s: %w", row.DeviceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing entities: %w", err)
	}
	return nil
}

// UpdateState implements Repository.
func (r *SQLiteRepository) UpdateState(ctx context.Context, id string, state entity.State) error {
	encoded, err := encodeState(state)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE entities SET state = ?, updated_at = ? WHERE device_id = ?`,
		encoded, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("updating entity state: %w", err)
	}
	return expectOne(res, id)
}

// Get implements Repository.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Row, error) {
	row, err := scanRow(r.db.QueryRowContext(ctx, selectRows+` WHERE device_id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
		}
		return nil, fmt.Errorf("querying entity: %w", err)
	}
	return row, nil
}

// List implements Repository.
func (r *SQLiteRepository) List(ctx context.Context, category entity.Category) ([]Row, error) {
	query := selectRows
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY device_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	result := []Row{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		result = append(result, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	return result, nil
}

// Delete implements Repository.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entities WHERE device_id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	return expectOne(res, id)
}

// PruneExcept implements Repository.
func (r *SQLiteRepository) PruneExcept(ctx context.Context, keep []string) (int, error) {
	query := `DELETE FROM entities`
	args := make([]any, 0, len(keep))
	if len(keep) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
		query += ` WHERE device_id NOT IN (` + placeholders + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("pruning entities: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

const selectRows = `
	SELECT device_id, vendor_type, category, name, model, manufacturer, firmware, room,
		state, created_at, updated_at
	FROM entities`

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*Row, error) {
	var row Row
	var model, manufacturer, firmware, room sql.NullString
	var state, createdAt, updatedAt string
	if err := s.Scan(&row.DeviceID, &row.VendorType, &row.Category, &row.Name,
		&model, &manufacturer, &firmware, &room, &state, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	row.Model = model.String
	row.Manufacturer = manufacturer.String
	row.Firmware = firmware.String
	row.Room = room.String

	if err := json.Unmarshal([]byte(state), &row.State); err != nil {
		return nil, fmt.Errorf("decoding state of %s: %w", row.DeviceID, err)
	}
	var err error
	if row.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if row.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &row, nil
}

func encodeState(state entity.State) (string, error) {
	if state == nil {
		return "{}", nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encoding state: %w", err)
	}
	return string(data), nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	return nil
}

// nullableString maps "" to NULL for optional TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
