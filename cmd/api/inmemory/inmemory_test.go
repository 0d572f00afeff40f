package inmemory_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/lending-service/cmd/api/inmemory"
	"github.com/lending-service/cmd/api/lending"
	"github.com/matryer/is"
)

var ctx context.Context = context.Background()

var day = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

func newStore() *inmemory.InMemoryStore {
	store, err := inmemory.NewInMemoryStore()
	if err != nil {
		log.Fatalln(err)
	}
	return store
}

func newItem(id string, copies int) lending.Item {
	return lending.Item{
		ID:              id,
		Title:           "Title of " + id,
		Creator:         "Someone",
		Category:        "Fiction",
		TotalCopies:     copies,
		AvailableCopies: copies,
		CreatedAt:       day,
		UpdatedAt:       day,
	}
}

func newLoan(id int64, borrowerID, itemID string) lending.LoanTransaction {
	return lending.LoanTransaction{
		ID:         id,
		Reference:  fmt.Sprintf("REF%03d", id),
		ItemID:     itemID,
		BorrowerID: borrowerID,
		IssuedOn:   day,
		DueOn:      day.AddDate(0, 0, 14),
		Status:     lending.StatusIssued,
	}
}

func TestCreateItem(t *testing.T) {
	store := newStore()

	t.Run("creates an item without errors", func(t *testing.T) {
		is := is.New(t)

		created, err := store.CreateItem(ctx, newItem("B1", 2))
		is.NoErr(err)
		is.Equal(created, newItem("B1", 2))

		found, err := store.GetItem(ctx, "B1")
		is.NoErr(err)
		is.Equal(found, newItem("B1", 2))
	})

	t.Run("rejects an item whose id is already taken", func(t *testing.T) {
		is := is.New(t)

		_, err := store.CreateItem(ctx, newItem("B1", 5))
		is.True(errors.Is(err, lending.ErrResponseDuplicateItem))

		found, err := store.GetItem(ctx, "B1")
		is.NoErr(err)
		is.Equal(found.TotalCopies, 2) // first insert wins
	})

	t.Run("reports a missing item as not found", func(t *testing.T) {
		is := is.New(t)

		_, err := store.GetItem(ctx, "nope")
		is.True(errors.Is(err, lending.ErrResponseItemNotFound))
		is.Equal(lending.KindOf(err), lending.KindNotFound)
	})
}

func TestScanItemsKeepsInsertionOrder(t *testing.T) {
	is := is.New(t)
	store := newStore()

	for _, id := range []string{"Z9", "A1", "M5"} {
		_, err := store.CreateItem(ctx, newItem(id, 1))
		is.NoErr(err)
	}
	is.NoErr(store.DeleteItem(ctx, "A1"))
	_, err := store.CreateItem(ctx, newItem("A1", 1))
	is.NoErr(err)

	var ids []string
	for item, err := range store.ScanItems(ctx) {
		is.NoErr(err)
		ids = append(ids, item.ID)
	}
	is.Equal(ids, []string{"Z9", "M5", "A1"})
}

func TestUpdateAndDeleteBorrower(t *testing.T) {
	store := newStore()
	b := lending.Borrower{ID: "M1", Name: "Ann", CreatedAt: day, UpdatedAt: day}

	t.Run("updates an existing borrower", func(t *testing.T) {
		is := is.New(t)

		_, err := store.CreateBorrower(ctx, b)
		is.NoErr(err)
		b.Email = "ann@example.com"
		_, err = store.UpdateBorrower(ctx, b)
		is.NoErr(err)

		found, err := store.GetBorrower(ctx, "M1")
		is.NoErr(err)
		is.Equal(found.Email, "ann@example.com")
	})

	t.Run("fails to update a borrower that does not exist", func(t *testing.T) {
		is := is.New(t)

		_, err := store.UpdateBorrower(ctx, lending.Borrower{ID: "M2"})
		is.True(errors.Is(err, lending.ErrResponseBorrowerNotFound))
	})

	t.Run("deletes a borrower", func(t *testing.T) {
		is := is.New(t)

		is.NoErr(store.DeleteBorrower(ctx, "M1"))
		_, err := store.GetBorrower(ctx, "M1")
		is.True(errors.Is(err, lending.ErrResponseBorrowerNotFound))
		is.True(errors.Is(store.DeleteBorrower(ctx, "M1"), lending.ErrResponseBorrowerNotFound))
	})
}

func TestLoans(t *testing.T) {
	store := newStore()

	t.Run("hands out loan ids in sequence", func(t *testing.T) {
		is := is.New(t)

		for want := int64(1); want <= 3; want++ {
			id, err := store.NextLoanID(ctx)
			is.NoErr(err)
			is.Equal(id, want)
		}
	})

	t.Run("finds loans by id and reference and tracks the open ones", func(t *testing.T) {
		is := is.New(t)

		for _, l := range []lending.LoanTransaction{
			newLoan(1, "M1", "B1"),
			newLoan(2, "M1", "B2"),
			newLoan(3, "M2", "B1"),
		} {
			_, err := store.CreateLoan(ctx, l)
			is.NoErr(err)
		}

		byID, err := store.GetLoan(ctx, 2)
		is.NoErr(err)
		is.Equal(byID.ItemID, "B2")
		byRef, err := store.GetLoanByReference(ctx, "REF003")
		is.NoErr(err)
		is.Equal(byRef.ID, int64(3))

		n, err := store.CountOpenLoansByItem(ctx, "B1")
		is.NoErr(err)
		is.Equal(n, 2)
		n, err = store.CountOpenLoansByBorrower(ctx, "M1")
		is.NoErr(err)
		is.Equal(n, 2)

		returned := newLoan(1, "M1", "B1")
		returned.ReturnedOn = sql.NullTime{Time: day.AddDate(0, 0, 3), Valid: true}
		returned.Status = lending.StatusReturned
		_, err = store.UpdateLoan(ctx, returned)
		is.NoErr(err)

		open, err := store.OpenLoansFor(ctx, "M1", "B1")
		is.NoErr(err)
		is.Equal(len(open), 0)
		n, err = store.CountOpenLoansByItem(ctx, "B1")
		is.NoErr(err)
		is.Equal(n, 1)

		var openIDs []int64
		for l, err := range store.ScanOpenLoans(ctx) {
			is.NoErr(err)
			openIDs = append(openIDs, l.ID)
		}
		is.Equal(openIDs, []int64{2, 3})
	})

	t.Run("scans every loan in id order past the ninth", func(t *testing.T) {
		is := is.New(t)
		store := newStore()

		for id := int64(12); id >= 1; id-- {
			_, err := store.CreateLoan(ctx, newLoan(id, "M1", fmt.Sprintf("B%d", id)))
			is.NoErr(err)
		}
		var ids []int64
		for l, err := range store.ScanLoans(ctx) {
			is.NoErr(err)
			ids = append(ids, l.ID)
		}
		is.Equal(len(ids), 12)
		for i, id := range ids {
			is.Equal(id, int64(i+1))
		}
	})
}

func TestTransactions(t *testing.T) {
	t.Run("a rolled back transaction leaves no trace", func(t *testing.T) {
		is := is.New(t)
		store := newStore()

		txRepo, tx, err := store.BeginTx(ctx, nil)
		is.NoErr(err)
		_, err = txRepo.CreateItem(ctx, newItem("B1", 1))
		is.NoErr(err)
		is.NoErr(tx.Rollback())

		_, err = store.GetItem(ctx, "B1")
		is.True(errors.Is(err, lending.ErrResponseItemNotFound))
	})

	t.Run("a committed transaction is visible to later reads", func(t *testing.T) {
		is := is.New(t)
		store := newStore()

		txRepo, tx, err := store.BeginTx(ctx, nil)
		is.NoErr(err)
		_, err = txRepo.CreateItem(ctx, newItem("B1", 1))
		is.NoErr(err)
		got, err := txRepo.GetItem(ctx, "B1")
		is.NoErr(err)
		is.Equal(got.ID, "B1")
		is.NoErr(tx.Commit())

		_, err = store.GetItem(ctx, "B1")
		is.NoErr(err)
	})
}

func TestSnapshotRestore(t *testing.T) {
	t.Run("restores a snapshot taken from another store", func(t *testing.T) {
		is := is.New(t)
		src := newStore()

		item := newItem("B1", 2)
		item.AvailableCopies = 1
		_, err := src.CreateItem(ctx, item)
		is.NoErr(err)
		_, err = src.CreateItem(ctx, newItem("B2", 1))
		is.NoErr(err)
		_, err = src.CreateBorrower(ctx, lending.Borrower{ID: "M1", Name: "Ann", OpenLoans: 1})
		is.NoErr(err)
		id, err := src.NextLoanID(ctx)
		is.NoErr(err)
		_, err = src.CreateLoan(ctx, newLoan(id, "M1", "B1"))
		is.NoErr(err)

		snap, err := src.Snapshot(ctx)
		is.NoErr(err)
		is.Equal(snap.NextLoanID, int64(2))
		is.Equal(len(snap.Items), 2)

		dst := newStore()
		is.NoErr(dst.Restore(ctx, snap))
		again, err := dst.Snapshot(ctx)
		is.NoErr(err)
		is.Equal(again, snap)

		next, err := dst.NextLoanID(ctx)
		is.NoErr(err)
		is.Equal(next, int64(2))
		_, err = dst.CreateItem(ctx, newItem("B3", 1))
		is.NoErr(err)
	})

	t.Run("refuses an inconsistent snapshot and keeps the current state", func(t *testing.T) {
		is := is.New(t)
		store := newStore()
		_, err := store.CreateItem(ctx, newItem("KEEP", 1))
		is.NoErr(err)

		bad := lending.Snapshot{
			Items:      []lending.Item{newItem("B1", 1)},
			Borrowers:  []lending.Borrower{{ID: "M1", Name: "Ann", OpenLoans: 0}},
			Loans:      []lending.LoanTransaction{newLoan(1, "M1", "B1")},
			NextLoanID: 2,
		}
		err = store.Restore(ctx, bad)
		is.True(errors.Is(err, lending.ErrResponseInconsistentSnapshot))

		_, err = store.GetItem(ctx, "KEEP")
		is.NoErr(err)
	})
}
