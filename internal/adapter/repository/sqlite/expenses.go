package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iho/tripledger/internal/domain"
)

const expenseColumns = `id, trip_id, description, amount, category, date, paid_by, paid_by_name, created_by,
	is_group_expense, created_at, is_local, is_synced, last_modified`

const splitColumns = `id, expense_id, member_id, member_name, amount_owed, created_at`

// ExpenseRepository implements usecase.ExpenseRepository.
type ExpenseRepository struct {
	s *Store
}

// Save writes the expense and replaces its splits in one transaction.
func (r *ExpenseRepository) Save(ctx context.Context, expense *domain.ExpenseWithSplits) error {
	return r.s.write(ctx, func(tx *sql.Tx) (string, error) {
		if err := tripExists(ctx, tx, expense.TripID); err != nil {
			return "", err
		}
		if err := upsertExpense(ctx, tx, expense); err != nil {
			return "", err
		}
		return expense.TripID, nil
	})
}

// Delete removes the expense with its splits and leaves a delete marker.
func (r *ExpenseRepository) Delete(ctx context.Context, id string, deletedAt time.Time) error {
	return r.s.deleteLocal(ctx, domain.KindExpense, id, deletedAt, domain.ErrExpenseNotFound)
}

// GetByID retrieves an expense with its splits.
func (r *ExpenseRepository) GetByID(ctx context.Context, id string) (*domain.ExpenseWithSplits, error) {
	row := r.s.db.QueryRowContext(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE id = ?", id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrExpenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	splits, err := r.listSplits(ctx, "expense_id = ?", id)
	if err != nil {
		return nil, err
	}
	e.Splits = splits[id]
	return e, nil
}

// ListByTrip returns the trip's expenses with their splits, ordered by ID.
func (r *ExpenseRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.ExpenseWithSplits, error) {
	rows, err := r.s.db.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE trip_id = ? ORDER BY id", tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	expenses := []*domain.ExpenseWithSplits{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	// The single connection must be released before the next query.
	rows.Close()

	splits, err := r.listSplits(ctx, "expense_id IN (SELECT id FROM expenses WHERE trip_id = ?)", tripID)
	if err != nil {
		return nil, err
	}
	for _, e := range expenses {
		e.Splits = splits[e.ID]
	}
	return expenses, nil
}

func (r *ExpenseRepository) listSplits(ctx context.Context, where string, arg any) (map[string][]domain.ExpenseSplit, error) {
	rows, err := r.s.db.QueryContext(ctx,
		"SELECT "+splitColumns+" FROM expense_splits WHERE "+where+" ORDER BY expense_id, rowid", arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list splits: %w", err)
	}
	defer rows.Close()

	splits := make(map[string][]domain.ExpenseSplit)
	for rows.Next() {
		var (
			sp        domain.ExpenseSplit
			owed      string
			createdAt int64
		)
		if err := rows.Scan(&sp.ID, &sp.ExpenseID, &sp.MemberID, &sp.MemberName, &owed, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		if sp.AmountOwed, err = parseDecimal(owed); err != nil {
			return nil, err
		}
		sp.CreatedAt = fromMicros(createdAt)
		splits[sp.ExpenseID] = append(splits[sp.ExpenseID], sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate splits: %w", err)
	}
	return splits, nil
}

func upsertExpense(ctx context.Context, q querier, e *domain.ExpenseWithSplits) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			trip_id = excluded.trip_id,
			description = excluded.description,
			amount = excluded.amount,
			category = excluded.category,
			date = excluded.date,
			paid_by = excluded.paid_by,
			paid_by_name = excluded.paid_by_name,
			created_by = excluded.created_by,
			is_group_expense = excluded.is_group_expense,
			created_at = excluded.created_at,
			is_local = excluded.is_local,
			is_synced = excluded.is_synced,
			last_modified = excluded.last_modified`,
		e.ID, e.TripID, e.Description, e.Amount.String(), string(e.Category), toMicros(e.Date),
		e.PaidBy, e.PaidByName, e.CreatedBy, boolInt(e.IsGroupExpense), toMicros(e.CreatedAt),
		boolInt(e.IsLocal), boolInt(e.IsSynced), toMicros(e.LastModified),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert expense: %w", err)
	}

	if _, err := q.ExecContext(ctx, "DELETE FROM expense_splits WHERE expense_id = ?", e.ID); err != nil {
		return fmt.Errorf("failed to clear splits: %w", err)
	}
	for _, sp := range e.Splits {
		_, err := q.ExecContext(ctx,
			"INSERT INTO expense_splits ("+splitColumns+") VALUES (?, ?, ?, ?, ?, ?)",
			sp.ID, e.ID, sp.MemberID, sp.MemberName, sp.AmountOwed.String(), toMicros(sp.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert split: %w", err)
		}
	}
	return nil
}

func scanExpense(row rowScanner) (*domain.ExpenseWithSplits, error) {
	var (
		e                        domain.ExpenseWithSplits
		amount, category         string
		date, createdAt, changed int64
		isLocal, isSynced        bool
	)
	err := row.Scan(&e.ID, &e.TripID, &e.Description, &amount, &category, &date, &e.PaidBy, &e.PaidByName,
		&e.CreatedBy, &e.IsGroupExpense, &createdAt, &isLocal, &isSynced, &changed)
	if err != nil {
		return nil, err
	}
	if e.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	e.Category = domain.Category(category)
	e.Date = fromMicros(date)
	e.CreatedAt = fromMicros(createdAt)
	e.SyncMeta = syncMeta(isLocal, isSynced, changed)
	e.Splits = []domain.ExpenseSplit{}
	return &e, nil
}
