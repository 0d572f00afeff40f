package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/lending-service/cmd/api/lending"
	"go.uber.org/zap"

	_ "github.com/golang-migrate/migrate/v4/source/file"

	_ "github.com/lib/pq"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists lending snapshots in PostgreSQL.
type Store struct {
	db     *sql.DB
	exc    *Executor
	logger *zap.Logger
}

type Executor struct {
	DBTX
}

func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		exc:    NewExc(db),
		logger: logger,
	}
}

func NewExc(dbtx DBTX) *Executor {
	return &Executor{DBTX: dbtx}
}

/* Connects to the database trought a connection string and returns a pointer to a valid DB object (*sql.DB). */
func ConnectDb(ctx context.Context, connStr string) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting to db, opening: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connecting to db, pinging: %w", err)
	}
	return sqlDB, nil
}

// MigrationUp applies the migrations found under path. migrate.ErrNoChange
// is returned wrapped when the schema is already current.
func MigrationUp(store *Store, path string) error {
	driver, err := postgres.WithInstance(store.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", path),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	if err := m.Up(); err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}
	return nil
}

/* Replaces the stored state with snap inside one transaction. */
func (store *Store) SaveSnapshot(ctx context.Context, snap lending.Snapshot) (err error) {
	if err := lending.ValidateSnapshot(snap); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("saving snapshot, beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	txStore := &Store{db: store.db, exc: NewExc(tx), logger: store.logger}

	if _, err = txStore.exc.ExecContext(ctx, `TRUNCATE loans, items, borrowers, ledger_state`); err != nil {
		return fmt.Errorf("saving snapshot, truncating: %w", err)
	}
	for i, item := range snap.Items {
		if err = txStore.insertItem(ctx, i+1, item); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
	}
	for i, b := range snap.Borrowers {
		if err = txStore.insertBorrower(ctx, i+1, b); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
	}
	for _, loan := range snap.Loans {
		if err = txStore.insertLoan(ctx, loan); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
	}
	if _, err = txStore.exc.ExecContext(ctx, `INSERT INTO ledger_state (next_loan_id) VALUES ($1)`, max(snap.NextLoanID, 1)); err != nil {
		return fmt.Errorf("saving snapshot, ledger state: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("saving snapshot, committing: %w", err)
	}
	store.logger.Info("snapshot saved",
		zap.Int("items", len(snap.Items)),
		zap.Int("borrowers", len(snap.Borrowers)),
		zap.Int("loans", len(snap.Loans)),
	)
	return nil
}

func (store *Store) insertItem(ctx context.Context, position int, item lending.Item) error {
	sqlStatement := `
	INSERT INTO items (id, position, title, creator, publisher, year, category, total_copies, available_copies, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := store.exc.ExecContext(ctx, sqlStatement, item.ID, position, item.Title, item.Creator, item.Publisher,
		item.Year, item.Category, item.TotalCopies, item.AvailableCopies, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting item %s: %w", item.ID, err)
	}
	return nil
}

func (store *Store) insertBorrower(ctx context.Context, position int, b lending.Borrower) error {
	sqlStatement := `
	INSERT INTO borrowers (id, position, name, email, phone, address, open_loans, fine_balance_cents, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := store.exc.ExecContext(ctx, sqlStatement, b.ID, position, b.Name, b.Email, b.Phone, b.Address,
		b.OpenLoans, int64(b.FineBalance), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting borrower %s: %w", b.ID, err)
	}
	return nil
}

func (store *Store) insertLoan(ctx context.Context, loan lending.LoanTransaction) error {
	sqlStatement := `
	INSERT INTO loans (id, reference, item_id, borrower_id, issued_on, due_on, returned_on, fine_cents, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := store.exc.ExecContext(ctx, sqlStatement, loan.ID, loan.Reference, loan.ItemID, loan.BorrowerID,
		lending.FormatDate(loan.IssuedOn), lending.FormatDate(loan.DueOn), nullDate(loan.ReturnedOn),
		int64(loan.Fine), string(loan.Status))
	if err != nil {
		return fmt.Errorf("inserting loan %d: %w", loan.ID, err)
	}
	return nil
}

func nullDate(t sql.NullTime) sql.NullString {
	if !t.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: lending.FormatDate(t.Time), Valid: true}
}

/* Reads back the stored state. An empty database yields an empty snapshot. */
func (store *Store) LoadSnapshot(ctx context.Context) (lending.Snapshot, error) {
	var snap lending.Snapshot

	items, err := store.loadItems(ctx)
	if err != nil {
		return lending.Snapshot{}, fmt.Errorf("loading snapshot: %w", err)
	}
	borrowers, err := store.loadBorrowers(ctx)
	if err != nil {
		return lending.Snapshot{}, fmt.Errorf("loading snapshot: %w", err)
	}
	loans, err := store.loadLoans(ctx)
	if err != nil {
		return lending.Snapshot{}, fmt.Errorf("loading snapshot: %w", err)
	}
	snap.Items, snap.Borrowers, snap.Loans = items, borrowers, loans

	row := store.exc.QueryRowContext(ctx, `SELECT next_loan_id FROM ledger_state LIMIT 1`)
	switch err := row.Scan(&snap.NextLoanID); err {
	case nil:
	case sql.ErrNoRows:
		snap.NextLoanID = 1
	default:
		return lending.Snapshot{}, fmt.Errorf("loading snapshot, ledger state: %w", err)
	}

	if err := lending.ValidateSnapshot(snap); err != nil {
		return lending.Snapshot{}, fmt.Errorf("loading snapshot: %w", err)
	}
	store.logger.Info("snapshot loaded",
		zap.Int("items", len(snap.Items)),
		zap.Int("borrowers", len(snap.Borrowers)),
		zap.Int("loans", len(snap.Loans)),
	)
	return snap, nil
}

func (store *Store) loadItems(ctx context.Context) ([]lending.Item, error) {
	sqlStatement := `
	SELECT id, title, creator, publisher, year, category, total_copies, available_copies, created_at, updated_at
	FROM items
	ORDER BY position`
	rows, err := store.exc.QueryContext(ctx, sqlStatement)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []lending.Item
	for rows.Next() {
		var item lending.Item
		if err := rows.Scan(&item.ID, &item.Title, &item.Creator, &item.Publisher, &item.Year, &item.Category,
			&item.TotalCopies, &item.AvailableCopies, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		item.CreatedAt, item.UpdatedAt = item.CreatedAt.UTC(), item.UpdatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}

func (store *Store) loadBorrowers(ctx context.Context) ([]lending.Borrower, error) {
	sqlStatement := `
	SELECT id, name, email, phone, address, open_loans, fine_balance_cents, created_at, updated_at
	FROM borrowers
	ORDER BY position`
	rows, err := store.exc.QueryContext(ctx, sqlStatement)
	if err != nil {
		return nil, fmt.Errorf("listing borrowers: %w", err)
	}
	defer rows.Close()

	var borrowers []lending.Borrower
	for rows.Next() {
		var (
			b     lending.Borrower
			cents int64
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Email, &b.Phone, &b.Address, &b.OpenLoans, &cents,
			&b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning borrower: %w", err)
		}
		b.FineBalance = lending.Money(cents)
		b.CreatedAt, b.UpdatedAt = b.CreatedAt.UTC(), b.UpdatedAt.UTC()
		borrowers = append(borrowers, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing borrowers: %w", err)
	}
	return borrowers, nil
}

func (store *Store) loadLoans(ctx context.Context) ([]lending.LoanTransaction, error) {
	sqlStatement := `
	SELECT id, reference, item_id, borrower_id, to_char(issued_on, 'YYYY-MM-DD'), to_char(due_on, 'YYYY-MM-DD'),
		to_char(returned_on, 'YYYY-MM-DD'), fine_cents, status
	FROM loans
	ORDER BY id`
	rows, err := store.exc.QueryContext(ctx, sqlStatement)
	if err != nil {
		return nil, fmt.Errorf("listing loans: %w", err)
	}
	defer rows.Close()

	var loans []lending.LoanTransaction
	for rows.Next() {
		var (
			loan        lending.LoanTransaction
			issued, due string
			returned    sql.NullString
			cents       int64
			status      string
		)
		if err := rows.Scan(&loan.ID, &loan.Reference, &loan.ItemID, &loan.BorrowerID, &issued, &due,
			&returned, &cents, &status); err != nil {
			return nil, fmt.Errorf("scanning loan: %w", err)
		}
		if loan.IssuedOn, err = lending.ParseDate(issued); err != nil {
			return nil, fmt.Errorf("loan %d issue date: %w", loan.ID, err)
		}
		if loan.DueOn, err = lending.ParseDate(due); err != nil {
			return nil, fmt.Errorf("loan %d due date: %w", loan.ID, err)
		}
		if returned.Valid {
			on, err := lending.ParseDate(returned.String)
			if err != nil {
				return nil, fmt.Errorf("loan %d return date: %w", loan.ID, err)
			}
			loan.ReturnedOn = sql.NullTime{Time: on, Valid: true}
		}
		loan.Fine = lending.Money(cents)
		loan.Status = lending.LoanStatus(status)
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing loans: %w", err)
	}
	return loans, nil
}
