package inmemory

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"iter"

	"github.com/hashicorp/go-memdb"
	"github.com/lending-service/cmd/api/lending"
)

const (
	itemTable     = "item"
	borrowerTable = "borrower"
	loanTable     = "loan"
	sequenceTable = "sequence"
)

type InMemoryStore struct {
	db  *memdb.MemDB
	exc *memdb.Txn
}

func NewInMemoryStore() (*InMemoryStore, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			itemTable: {
				Name: itemTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"seq": {
						Name:    "seq",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Seq"},
					},
				},
			},
			borrowerTable: {
				Name: borrowerTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"seq": {
						Name:    "seq",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Seq"},
					},
				},
			},
			loanTable: {
				Name: loanTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
					"reference": {
						Name:         "reference",
						Unique:       true,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "Reference"},
					},
					"open": {
						Name:    "open",
						Indexer: &memdb.BoolFieldIndex{Field: "Open"},
					},
					"item_open": {
						Name: "item_open",
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "ItemID"},
								&memdb.BoolFieldIndex{Field: "Open"},
							},
						},
					},
					"borrower_open": {
						Name: "borrower_open",
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "BorrowerID"},
								&memdb.BoolFieldIndex{Field: "Open"},
							},
						},
					},
					"pair_open": { // Composite index for the one open loan per borrower and item
						Name: "pair_open",
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "BorrowerID"},
								&memdb.StringFieldIndex{Field: "ItemID"},
								&memdb.BoolFieldIndex{Field: "Open"},
							},
						},
					},
				},
			},
			sequenceTable: {
				Name: sequenceTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Name"},
					},
				},
			},
		},
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("creating in-memory database: %w", err)
	}

	return &InMemoryStore{db: db, exc: nil}, nil
}

// memdb keys compare as bytes, so numeric keys are zero padded to keep their order.
func seqKey(n int64) string {
	return fmt.Sprintf("%020d", n)
}

type AdaptedItem struct {
	Seq string
	lending.Item
}

type AdaptedBorrower struct {
	Seq string
	lending.Borrower
}

type AdaptedLoan struct {
	Key  string
	Open bool
	lending.LoanTransaction
}

type sequence struct {
	Name string
	Next int64
}

func adaptLoan(loan lending.LoanTransaction) AdaptedLoan {
	return AdaptedLoan{
		Key:             seqKey(loan.ID),
		Open:            loan.IsOpen(),
		LoanTransaction: loan,
	}
}

// begin returns the transaction the store is bound to, or a new one when
// the call is not part of a larger transaction.
func (store *InMemoryStore) begin(write bool) (txn *memdb.Txn, insideTx bool) {
	if store.exc != nil {
		return store.exc, true
	}
	return store.db.Txn(write), false
}

// next hands out the next value of the named sequence, starting at 1.
func next(txn *memdb.Txn, name string) (int64, error) {
	raw, err := txn.First(sequenceTable, "id", name)
	if err != nil {
		return 0, fmt.Errorf("reading sequence %s: %w", name, err)
	}
	n := int64(1)
	if raw != nil {
		n = raw.(sequence).Next
	}
	if err := txn.Insert(sequenceTable, sequence{Name: name, Next: n + 1}); err != nil {
		return 0, fmt.Errorf("advancing sequence %s: %w", name, err)
	}
	return n, nil
}

func (store *InMemoryStore) CreateItem(ctx context.Context, item lending.Item) (lending.Item, error) {
	txn, insideTx := store.begin(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(itemTable, "id", item.ID)
	if err != nil {
		return lending.Item{}, fmt.Errorf("searching by ID: %w", err)
	}
	if raw != nil {
		return lending.Item{}, lending.ErrResponseDuplicateItem.WithDetail("%s", item.ID)
	}
	seq, err := next(txn, itemTable)
	if err != nil {
		return lending.Item{}, err
	}
	if err := txn.Insert(itemTable, AdaptedItem{Seq: seqKey(seq), Item: item}); err != nil {
		return lending.Item{}, fmt.Errorf("inserting item: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return item, nil
}

func (store *InMemoryStore) GetItem(ctx context.Context, id string) (lending.Item, error) {
	txn, insideTx := store.begin(false)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(itemTable, "id", id)
	if err != nil {
		return lending.Item{}, fmt.Errorf("searching by ID: %w", err)
	}
	if raw == nil {
		return lending.Item{}, lending.ErrResponseItemNotFound.WithDetail("%s", id)
	}
	return raw.(AdaptedItem).Item, nil
}

func (store *InMemoryStore) UpdateItem(ctx context.Context, item lending.Item) (lending.Item, error) {
	txn, insideTx := store.begin(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(itemTable, "id", item.ID)
	if err != nil {
		return lending.Item{}, fmt.Errorf("searching by ID: %w", err)
	}
	if raw == nil {
		return lending.Item{}, lending.ErrResponseItemNotFound.WithDetail("%s", item.ID)
	}
	updated := raw.(AdaptedItem)
	updated.Item = item
	if err := txn.Insert(itemTable, updated); err != nil {
		return lending.Item{}, fmt.Errorf("updating item: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return item, nil
}

func (store *InMemoryStore) DeleteItem(ctx context.Context, id string) error {
	txn, insideTx := store.begin(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(itemTable, "id", id)
	if err != nil {
		return fmt.Errorf("searching by ID: %w", err)
	}
	if raw == nil {
		return lending.ErrResponseItemNotFound.WithDetail("%s", id)
	}
	if err := txn.Delete(itemTable, raw); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return nil
}

// ScanItems yields from a single read snapshot taken when iteration starts.
func (store *InMemoryStore) ScanItems(ctx context.Context) iter.Seq2[lending.Item, error] {
	return func(yield func(lending.Item, error) bool) {
		txn, insideTx := store.begin(false)
		if !insideTx {
			defer txn.Abort()
		}
		it, err := txn.Get(itemTable, "seq")
		if err != nil {
			yield(lending.Item{}, fmt.Errorf("listing items: %w", err))
			return
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			if err := ctx.Err(); err != nil {
				yield(lending.Item{}, err)
				return
			}
			if !yield(obj.(AdaptedItem).Item, nil) {
				return
			}
		}
	}
}

func (store *InMemoryStore) CreateBorrower(ctx context.Context, borrower lending.Borrower) (lending.Borrower, error) {
	txn, insideTx := store.begin(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(borrowerTable, "id", borrower.ID)
	if err != nil {
		return lending.Borrower{}, fmt.Errorf("searching by ID: %w", err)
	}
	if raw != nil {
		return lending.Borrower{}, lending.ErrResponseDuplicateBorrower.WithDetail("%s", borrower.ID)
	}
	seq, err := next(txn, borrowerTable)
	if err != nil {
		return lending.Borrower{}, err
	}
	if err := txn.Insert(borrowerTable, AdaptedBorrower{Seq: seqKey(seq), Borrower: borrower}); err != nil {
		return lending.Borrower{}, fmt.Errorf("inserting borrower: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return borrower, nil
}

func (store *InMemoryStore) GetBorrower(ctx context.Context, id string) (lending.Borrower, error) {
	txn, insideTx := store.begin(false)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(borrowerTable, "id", id)
	if err != nil {
		return lending.Borrower{}, fmt.Errorf("searching by ID: %w", err)
	}
	if raw == nil {
		return lending.Borrower{}, lending.ErrResponseBorrowerNotFound.WithDetail("%s", id)
	}
	return raw.(AdaptedBorrower).Borrower, nil
}

func (store *InMemoryStore) UpdateBorrower(ctx context.Context, borrower lending.Borrower) (lending.Borrower, error) {
	txn, insideTx := store.begin(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(borrowerTable, "id", borrower.ID)
	if err != nil {
		return lending.Borrower{}, fmt.Errorf("searching by ID: %w", err)
	}
	if raw == nil {
		return lending.Borrower{}, lending.ErrResponseBorrowerNotFound.WithDetail("%s", borrower.ID)
	}
	updated := raw.(AdaptedBorrower)
	updated.Borrower = borrower
	if err := txn.Insert(borrowerTable, updated); err != nil {
		return lending.Borrower{}, fmt.Errorf("updating borrower: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return borrower, nil
}

func (store *InMemoryStore) DeleteBorrower(ctx context.Context, id string) error {
	txn, insideTx := store.begin(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(borrowerTable, "id", id)
	if err != nil {
		return fmt.Errorf("searching by ID: %w", err)
	}
	if raw == nil {
		return lending.ErrResponseBorrowerNotFound.WithDetail("%s", id)
	}
	if err := txn.Delete(borrowerTable, raw); err != nil {
		return fmt.Errorf("deleting borrower: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return nil
}

func (store *InMemoryStore) ScanBorrowers(ctx context.Context) iter.Seq2[lending.Borrower, error] {
	return func(yield func(lending.Borrower, error) bool) {
		txn, insideTx := store.begin(false)
		if !insideTx {
			defer txn.Abort()
		}
		it, err := txn.Get(borrowerTable, "seq")
		if err != nil {
			yield(lending.Borrower{}, fmt.Errorf("listing borrowers: %w", err))
			return
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			if err := ctx.Err(); err != nil {
				yield(lending.Borrower{}, err)
				return
			}
			if !yield(obj.(AdaptedBorrower).Borrower, nil) {
				return
			}
		}
	}
}

func (store *InMemoryStore) NextLoanID(ctx context.Context) (int64, error) {
	txn, insideTx := store.begin(true)
	if !insideTx {
		defer txn.Abort()
	}
	id, err := next(txn, loanTable)
	if err != nil {
		return 0, err
	}
	if !insideTx {
		txn.Commit()
	}
	return id, nil
}

func (store *InMemoryStore) CreateLoan(ctx context.Context, loan lending.LoanTransaction) (lending.LoanTransaction, error) {
	txn, insideTx := store.begin(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(loanTable, "id", seqKey(loan.ID))
	if err != nil {
		return lending.LoanTransaction{}, fmt.Errorf("searching by ID: %w", err)
	}
	if raw != nil {
		return lending.LoanTransaction{}, fmt.Errorf("loan %d already recorded", loan.ID)
	}
	if err := txn.Insert(loanTable, adaptLoan(loan)); err != nil {
		return lending.LoanTransaction{}, fmt.Errorf("inserting loan: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return loan, nil
}

func (store *InMemoryStore) UpdateLoan(ctx context.Context, loan lending.LoanTransaction) (lending.LoanTransaction, error) {
	txn, insideTx := store.begin(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(loanTable, "id", seqKey(loan.ID))
	if err != nil {
		return lending.LoanTransaction{}, fmt.Errorf("searching by ID: %w", err)
	}
	if raw == nil {
		return lending.LoanTransaction{}, lending.ErrResponseLoanNotFound.WithDetail("%d", loan.ID)
	}
	if err := txn.Insert(loanTable, adaptLoan(loan)); err != nil {
		return lending.LoanTransaction{}, fmt.Errorf("updating loan: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return loan, nil
}

func (store *InMemoryStore) GetLoan(ctx context.Context, id int64) (lending.LoanTransaction, error) {
	txn, insideTx := store.begin(false)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(loanTable, "id", seqKey(id))
	if err != nil {
		return lending.LoanTransaction{}, fmt.Errorf("searching by ID: %w", err)
	}
	if raw == nil {
		return lending.LoanTransaction{}, lending.ErrResponseLoanNotFound.WithDetail("%d", id)
	}
	return raw.(AdaptedLoan).LoanTransaction, nil
}

func (store *InMemoryStore) GetLoanByReference(ctx context.Context, reference string) (lending.LoanTransaction, error) {
	txn, insideTx := store.begin(false)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(loanTable, "reference", reference)
	if err != nil {
		return lending.LoanTransaction{}, fmt.Errorf("searching by reference: %w", err)
	}
	if raw == nil {
		return lending.LoanTransaction{}, lending.ErrResponseLoanNotFound.WithDetail("%s", reference)
	}
	return raw.(AdaptedLoan).LoanTransaction, nil
}

func (store *InMemoryStore) scanLoans(ctx context.Context, index string, args ...any) iter.Seq2[lending.LoanTransaction, error] {
	return func(yield func(lending.LoanTransaction, error) bool) {
		txn, insideTx := store.begin(false)
		if !insideTx {
			defer txn.Abort()
		}
		it, err := txn.Get(loanTable, index, args...)
		if err != nil {
			yield(lending.LoanTransaction{}, fmt.Errorf("listing loans: %w", err))
			return
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			if err := ctx.Err(); err != nil {
				yield(lending.LoanTransaction{}, err)
				return
			}
			if !yield(obj.(AdaptedLoan).LoanTransaction, nil) {
				return
			}
		}
	}
}

func (store *InMemoryStore) ScanLoans(ctx context.Context) iter.Seq2[lending.LoanTransaction, error] {
	return store.scanLoans(ctx, "id")
}

func (store *InMemoryStore) ScanOpenLoans(ctx context.Context) iter.Seq2[lending.LoanTransaction, error] {
	return store.scanLoans(ctx, "open", true)
}

func (store *InMemoryStore) OpenLoansFor(ctx context.Context, borrowerID, itemID string) ([]lending.LoanTransaction, error) {
	var loans []lending.LoanTransaction
	for loan, err := range store.scanLoans(ctx, "pair_open", borrowerID, itemID, true) {
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, nil
}

func (store *InMemoryStore) count(ctx context.Context, index string, args ...any) (int, error) {
	n := 0
	for _, err := range store.scanLoans(ctx, index, args...) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func (store *InMemoryStore) CountOpenLoansByItem(ctx context.Context, itemID string) (int, error) {
	return store.count(ctx, "item_open", itemID, true)
}

func (store *InMemoryStore) CountOpenLoansByBorrower(ctx context.Context, borrowerID string) (int, error) {
	return store.count(ctx, "borrower_open", borrowerID, true)
}

// Snapshot copies the whole state out of one read transaction.
func (store *InMemoryStore) Snapshot(ctx context.Context) (lending.Snapshot, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()
	view := &InMemoryStore{db: store.db, exc: txn}

	var snap lending.Snapshot
	for item, err := range view.ScanItems(ctx) {
		if err != nil {
			return lending.Snapshot{}, err
		}
		snap.Items = append(snap.Items, item)
	}
	for b, err := range view.ScanBorrowers(ctx) {
		if err != nil {
			return lending.Snapshot{}, err
		}
		snap.Borrowers = append(snap.Borrowers, b)
	}
	for loan, err := range view.ScanLoans(ctx) {
		if err != nil {
			return lending.Snapshot{}, err
		}
		snap.Loans = append(snap.Loans, loan)
	}
	raw, err := txn.First(sequenceTable, "id", loanTable)
	if err != nil {
		return lending.Snapshot{}, fmt.Errorf("reading loan sequence: %w", err)
	}
	snap.NextLoanID = 1
	if raw != nil {
		snap.NextLoanID = raw.(sequence).Next
	}
	return snap, nil
}

// Restore replaces the whole state with snap once it validates.
func (store *InMemoryStore) Restore(ctx context.Context, snap lending.Snapshot) error {
	if err := lending.ValidateSnapshot(snap); err != nil {
		return fmt.Errorf("restoring snapshot: %w", err)
	}

	txn := store.db.Txn(true)
	defer txn.Abort()

	for _, table := range []string{itemTable, borrowerTable, loanTable, sequenceTable} {
		if _, err := txn.DeleteAll(table, "id"); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	for i, item := range snap.Items {
		if err := txn.Insert(itemTable, AdaptedItem{Seq: seqKey(int64(i + 1)), Item: item}); err != nil {
			return fmt.Errorf("restoring item %s: %w", item.ID, err)
		}
	}
	for i, b := range snap.Borrowers {
		if err := txn.Insert(borrowerTable, AdaptedBorrower{Seq: seqKey(int64(i + 1)), Borrower: b}); err != nil {
			return fmt.Errorf("restoring borrower %s: %w", b.ID, err)
		}
	}
	for _, loan := range snap.Loans {
		if err := txn.Insert(loanTable, adaptLoan(loan)); err != nil {
			return fmt.Errorf("restoring loan %d: %w", loan.ID, err)
		}
	}
	nextLoanID := max(snap.NextLoanID, 1)
	sequences := []sequence{
		{Name: itemTable, Next: int64(len(snap.Items)) + 1},
		{Name: borrowerTable, Next: int64(len(snap.Borrowers)) + 1},
		{Name: loanTable, Next: nextLoanID},
	}
	for _, s := range sequences {
		if err := txn.Insert(sequenceTable, s); err != nil {
			return fmt.Errorf("restoring sequence %s: %w", s.Name, err)
		}
	}

	txn.Commit()
	return nil
}

func (store *InMemoryStore) BeginTx(ctx context.Context, opts *sql.TxOptions) (lending.Repository, driver.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	txn := store.db.Txn(true)
	if txn == nil {
		return nil, nil, fmt.Errorf("failed to create transaction")
	}

	txWrapper := &TxWrapper{txn: txn}
	txStore := &InMemoryStore{
		db:  store.db,
		exc: txWrapper.txn,
	}

	return txStore, txWrapper, nil
}

// TxWrapper exposes a memdb write transaction as a driver.Tx.
type TxWrapper struct {
	txn *memdb.Txn
}

func (tx *TxWrapper) Commit() error {
	tx.txn.Commit()
	return nil
}

func (tx *TxWrapper) Rollback() error {
	tx.txn.Abort()
	return nil
}
