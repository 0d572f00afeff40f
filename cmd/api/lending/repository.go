package lending

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"iter"
)

// Repository is the storage the components work against. Scans yield
// items and borrowers in insertion order and loans in ID order.
type Repository interface {
	CreateItem(ctx context.Context, item Item) (Item, error)
	GetItem(ctx context.Context, id string) (Item, error)
	UpdateItem(ctx context.Context, item Item) (Item, error)
	DeleteItem(ctx context.Context, id string) error
	ScanItems(ctx context.Context) iter.Seq2[Item, error]

	CreateBorrower(ctx context.Context, borrower Borrower) (Borrower, error)
	GetBorrower(ctx context.Context, id string) (Borrower, error)
	UpdateBorrower(ctx context.Context, borrower Borrower) (Borrower, error)
	DeleteBorrower(ctx context.Context, id string) error
	ScanBorrowers(ctx context.Context) iter.Seq2[Borrower, error]

	NextLoanID(ctx context.Context) (int64, error)
	CreateLoan(ctx context.Context, loan LoanTransaction) (LoanTransaction, error)
	UpdateLoan(ctx context.Context, loan LoanTransaction) (LoanTransaction, error)
	GetLoan(ctx context.Context, id int64) (LoanTransaction, error)
	GetLoanByReference(ctx context.Context, reference string) (LoanTransaction, error)
	ScanLoans(ctx context.Context) iter.Seq2[LoanTransaction, error]
	ScanOpenLoans(ctx context.Context) iter.Seq2[LoanTransaction, error]
	OpenLoansFor(ctx context.Context, borrowerID, itemID string) ([]LoanTransaction, error)
	CountOpenLoansByItem(ctx context.Context, itemID string) (int, error)
	CountOpenLoansByBorrower(ctx context.Context, borrowerID string) (int, error)

	BeginTx(ctx context.Context, opts *sql.TxOptions) (Repository, driver.Tx, error)
}

// LoanTracker owns the copy and loan counters. Catalog and Registry
// consult it with the repository bound to their own transaction.
type LoanTracker interface {
	OpenLoansForItem(ctx context.Context, repo Repository, itemID string) (int, error)
	OpenLoansForBorrower(ctx context.Context, repo Repository, borrowerID string) (int, error)
	AdjustTotalCopies(ctx context.Context, repo Repository, item Item, total int) (Item, error)
}

// collect drains seq into a slice, stopping at the first error.
func collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
