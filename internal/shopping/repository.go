package shopping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"weekly-meal-planner/internal/database"
)

// ErrItemNotFound is returned when an item does not exist for the user.
var ErrItemNotFound = errors.New("shopping list item not found")

// ErrListNotFound is returned when no snapshot exists for a plan and week.
var ErrListNotFound = errors.New("shopping list not found")

// Repository handles persistence of shopping list snapshots.
type Repository struct {
	db database.Querier
}

// NewRepository creates a new shopping list repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

// ReplaceSnapshot stores list as the only snapshot for its plan and week,
// dropping any earlier one together with its items. Run it inside a
// transaction so readers never see a half-written list.
func (r *Repository) ReplaceSnapshot(ctx context.Context, list *List) error {
	week := list.WeekStartDate.Format(database.DateLayout)
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM shopping_lists WHERE plan_id = ? AND week_start_date = ?`, list.PlanID, week); err != nil {
		return fmt.Errorf("failed to delete previous shopping list: %w", err)
	}

	if list.CreatedAt.IsZero() {
		list.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shopping_lists (id, plan_id, user_id, week_start_date, total_cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		list.ID, list.PlanID, list.UserID, week, list.TotalCost, database.FormatTime(list.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert shopping list: %w", err)
	}

	position := 0
	for _, group := range list.Categories {
		for _, item := range group.Items {
			_, err := r.db.ExecContext(ctx, `
				INSERT INTO shopping_list_items (id, list_id, name, quantity, unit, category,
					estimated_cost, is_purchased, position)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				item.ID, list.ID, item.Name, item.Quantity, item.Unit, item.Category,
				item.EstimatedCost, database.BoolToInt(item.IsPurchased), position)
			if err != nil {
				return fmt.Errorf("failed to insert shopping list item %q: %w", item.Name, err)
			}
			position++
		}
	}
	return nil
}

// GetSnapshot loads the snapshot for a plan and week.
func (r *Repository) GetSnapshot(ctx context.Context, planID string, weekStart time.Time) (*List, error) {
	var (
		list          List
		week, created string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, plan_id, user_id, week_start_date, total_cost, created_at
		FROM shopping_lists WHERE plan_id = ? AND week_start_date = ?`,
		planID, weekStart.Format(database.DateLayout)).
		Scan(&list.ID, &list.PlanID, &list.UserID, &week, &list.TotalCost, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrListNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load shopping list: %w", err)
	}
	if list.WeekStartDate, err = database.ParseDate(week); err != nil {
		return nil, err
	}
	if list.CreatedAt, err = database.ParseTime(created); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, quantity, unit, category, estimated_cost, is_purchased
		FROM shopping_list_items WHERE list_id = ? ORDER BY position`, list.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load shopping list items: %w", err)
	}
	defer rows.Close()

	index := make(map[string]int)
	for rows.Next() {
		var (
			item      Item
			purchased int
		)
		if err := rows.Scan(&item.ID, &item.Name, &item.Quantity, &item.Unit, &item.Category,
			&item.EstimatedCost, &purchased); err != nil {
			return nil, fmt.Errorf("failed to scan shopping list item: %w", err)
		}
		item.IsPurchased = purchased == 1

		i, ok := index[item.Category]
		if !ok {
			i = len(list.Categories)
			index[item.Category] = i
			list.Categories = append(list.Categories, CategoryGroup{Category: item.Category})
		}
		list.Categories[i].Items = append(list.Categories[i].Items, item)
		list.Categories[i].Subtotal = roundTo(list.Categories[i].Subtotal+item.EstimatedCost, 100)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shopping list items: %w", err)
	}
	return &list, nil
}

// SetPurchased toggles an item, checking that it belongs to userID.
func (r *Repository) SetPurchased(ctx context.Context, userID, itemID string, purchased bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE shopping_list_items SET is_purchased = ?
		WHERE id = ? AND list_id IN (SELECT id FROM shopping_lists WHERE user_id = ?)`,
		database.BoolToInt(purchased), itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to update shopping list item %s: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update shopping list item %s: %w", itemID, err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}
