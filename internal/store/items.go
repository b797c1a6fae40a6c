package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ppissanetzky/barcode-sub000/internal/model"
)

var (
	// ErrItemNotFound is returned by mutations that target a missing item.
	ErrItemNotFound = errors.New("item not found")
	// ErrInvalidItem wraps validation failures of ItemParams.
	ErrInvalidItem = errors.New("invalid item")
)

// ItemParams holds the editable attributes of an item.
type ItemParams struct {
	Name          string
	Description   string
	MaxDays       int
	AlertStartDay *int
	ThreadID      int64
}

func (p ItemParams) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidItem)
	}
	if p.MaxDays <= 0 {
		return fmt.Errorf("%w: max days must be positive", ErrInvalidItem)
	}
	if p.AlertStartDay != nil && *p.AlertStartDay <= 0 {
		return fmt.Errorf("%w: alert start day must be positive", ErrInvalidItem)
	}
	return nil
}

const itemColumns = `id, name, description, max_days, alert_start_day, thread_id, image_mime, created_at, updated_at`

// CreateItem creates a new item.
func CreateItem(ctx context.Context, db *sql.DB, p ItemParams) (*model.Item, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO items (name, description, max_days, alert_start_day, thread_id) VALUES (?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.MaxDays, p.AlertStartDay, p.ThreadID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, db, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var description, imageMime sql.NullString
	var alertStartDay sql.NullInt64
	if err := row.Scan(&item.ID, &item.Name, &description, &item.MaxDays, &alertStartDay,
		&item.ThreadID, &imageMime, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.Description = description.String
	item.ImageMime = imageMime.String
	if alertStartDay.Valid {
		d := int(alertStartDay.Int64)
		item.AlertStartDay = &d
	}
	return item, nil
}

// GetItem returns an item by ID, or nil if there is no such item.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	item, err := scanItem(db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns all items ordered by name.
func ListItems(ctx context.Context, db *sql.DB) ([]model.Item, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ListItemsForUser returns all items, each annotated with whether the user
// has a queue entry for it and whether they currently hold it.
func ListItemsForUser(ctx context.Context, db *sql.DB, userID int64) ([]model.UserItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT i.id, i.name, i.description, i.max_days, i.alert_start_day, i.thread_id,
		        i.image_mime, i.created_at, i.updated_at,
		        q.user_id IS NOT NULL AS in_list,
		        q.date_received IS NOT NULL AS has_it
		 FROM items i
		 LEFT JOIN queue q ON q.item_id = i.id AND q.user_id = ?
		 ORDER BY i.name, i.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items for user: %w", err)
	}
	defer rows.Close()

	var items []model.UserItem
	for rows.Next() {
		var ui model.UserItem
		var description, imageMime sql.NullString
		var alertStartDay sql.NullInt64
		if err := rows.Scan(&ui.ID, &ui.Name, &description, &ui.MaxDays, &alertStartDay,
			&ui.ThreadID, &imageMime, &ui.CreatedAt, &ui.UpdatedAt, &ui.InList, &ui.HasIt); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		ui.Description = description.String
		ui.ImageMime = imageMime.String
		if alertStartDay.Valid {
			d := int(alertStartDay.Int64)
			ui.AlertStartDay = &d
		}
		items = append(items, ui)
	}
	return items, rows.Err()
}

// UpdateItem updates an item's attributes.
func UpdateItem(ctx context.Context, db *sql.DB, id int64, p ItemParams) error {
	if err := p.validate(); err != nil {
		return err
	}
	result, err := db.ExecContext(ctx,
		`UPDATE items SET name = ?, description = ?, max_days = ?, alert_start_day = ?, thread_id = ?,
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		p.Name, p.Description, p.MaxDays, p.AlertStartDay, p.ThreadID, id,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// SetItemImage sets an item's picture.
func SetItemImage(ctx context.Context, db *sql.DB, id int64, image []byte, mime string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// GetItemImage returns an item's picture and MIME type.
func GetItemImage(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM items WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return image, mime.String, nil
}
