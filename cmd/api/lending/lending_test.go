package lending_test

import (
	"context"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/lending-service/cmd/api/inmemory"
	"github.com/lending-service/cmd/api/lending"
	"github.com/matryer/is"
)

var ctx context.Context = context.Background()

var start = time.Date(2024, time.January, 10, 9, 30, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advanceDays(n int) { c.now = c.now.AddDate(0, 0, n) }

type fixture struct {
	clock    *fakeClock
	store    *inmemory.InMemoryStore
	catalog  *lending.Catalog
	registry *lending.Registry
	ledger   *lending.Ledger
	reports  *lending.Reports
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := inmemory.NewInMemoryStore()
	if err != nil {
		t.Fatal(err)
	}
	clock := &fakeClock{now: start}
	opts := []lending.Option{lending.WithClock(clock)}
	ledger := lending.NewLedger(store, opts...)
	catalog := lending.NewCatalog(store, ledger, opts...)
	registry := lending.NewRegistry(store, ledger, opts...)
	return &fixture{
		clock:    clock,
		store:    store,
		catalog:  catalog,
		registry: registry,
		ledger:   ledger,
		reports:  lending.NewReports(catalog, registry, ledger),
	}
}

func (f *fixture) addItem(is *is.I, id string, copies int) lending.Item {
	is.Helper()
	item, err := f.catalog.Add(ctx, lending.CreateItemRequest{
		ID:          id,
		Title:       "Title " + id,
		Creator:     "Author " + id,
		Category:    "Fiction",
		TotalCopies: copies,
	})
	is.NoErr(err)
	return item
}

func (f *fixture) addBorrower(is *is.I, id string) lending.Borrower {
	is.Helper()
	b, err := f.registry.Add(ctx, lending.CreateBorrowerRequest{ID: id, Name: "Borrower " + id})
	is.NoErr(err)
	return b
}

func (f *fixture) snapshot(is *is.I) lending.Snapshot {
	is.Helper()
	snap, err := f.store.Snapshot(ctx)
	is.NoErr(err)
	return snap
}

// checkConservation verifies available + open loans == total for every item.
func (f *fixture) checkConservation(is *is.I) {
	is.Helper()
	open := map[string]int{}
	for loan, err := range f.ledger.Loans(ctx) {
		is.NoErr(err)
		if loan.IsOpen() {
			open[loan.ItemID]++
		}
	}
	for item, err := range f.catalog.List(ctx) {
		is.NoErr(err)
		is.Equal(item.AvailableCopies+open[item.ID], item.TotalCopies) // copies conserved
	}
	is.NoErr(lending.ValidateSnapshot(f.snapshot(is)))
}

func toPointer[T any](v T) *T {
	return &v
}

func ids[T any](is *is.I, seq iter.Seq2[T, error], id func(T) string) []string {
	is.Helper()
	var out []string
	for v, err := range seq {
		is.NoErr(err)
		out = append(out, id(v))
	}
	return out
}

func itemID(i lending.Item) string         { return i.ID }
func borrowerID(b lending.Borrower) string { return b.ID }
func loanID(l lending.LoanTransaction) string {
	return fmt.Sprint(l.ID)
}
