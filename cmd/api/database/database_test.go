package database_test

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/lending-service/cmd/api/database"
	"github.com/lending-service/cmd/api/lending"
	"github.com/matryer/is"
)

var store *database.Store
var sqlDB *sql.DB
var ctx context.Context = context.Background()

// TestMain prepares the database. The tests need a PostgreSQL instance,
// so they are skipped when DATABASE_URL is not set.
func TestMain(m *testing.M) {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		log.Println("DATABASE_URL not set, skipping database tests")
		os.Exit(0)
	}

	var err error
	sqlDB, err = database.ConnectDb(ctx, connStr)
	if err != nil {
		log.Fatalln(err)
	}

	store = database.NewStore(sqlDB, nil)
	path := os.Getenv("DATABASE_MIGRATIONS_PATH")
	if path == "" {
		path = "../../../migrations"
	}
	err = database.MigrationUp(store, path)
	if err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalln(err)
		}
		log.Println(err)
	}

	os.Exit(m.Run())
}

var stamp = time.Date(2024, time.February, 3, 10, 4, 5, 123456000, time.UTC)
var day = lending.DateOf(stamp)

func sampleSnapshot() lending.Snapshot {
	return lending.Snapshot{
		Items: []lending.Item{
			{ID: "Z-9", Title: "Last added first", TotalCopies: 1, AvailableCopies: 1, CreatedAt: stamp, UpdatedAt: stamp},
			{ID: "A-1", Title: "Dune", Creator: "Frank Herbert", Publisher: "Chilton", Year: 1965, Category: "Fiction",
				TotalCopies: 2, AvailableCopies: 1, CreatedAt: stamp, UpdatedAt: stamp},
		},
		Borrowers: []lending.Borrower{
			{ID: "M1", Name: "Ann", Email: "ann@example.com", OpenLoans: 1, FineBalance: 150, CreatedAt: stamp, UpdatedAt: stamp},
		},
		Loans: []lending.LoanTransaction{
			{ID: 1, Reference: "01HNQ3M4Z5A6B7C8D9E0F1G2H3", ItemID: "A-1", BorrowerID: "M1", IssuedOn: day,
				DueOn: day.AddDate(0, 0, 14), ReturnedOn: sql.NullTime{Time: day.AddDate(0, 0, 17), Valid: true},
				Fine: 150, Status: lending.StatusReturned},
			{ID: 2, Reference: "01HNQ3M4Z5A6B7C8D9E0F1G2H4", ItemID: "A-1", BorrowerID: "M1", IssuedOn: day.AddDate(0, 0, 17),
				DueOn: day.AddDate(0, 0, 31), Status: lending.StatusIssued},
		},
		NextLoanID: 3,
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})

	t.Run("loads back exactly what was saved", func(t *testing.T) {
		is := is.New(t)

		want := sampleSnapshot()
		is.NoErr(store.SaveSnapshot(ctx, want))

		got, err := store.LoadSnapshot(ctx)
		is.NoErr(err)
		compareSnapshots(is, got, want)
	})

	t.Run("saving again replaces the previous state", func(t *testing.T) {
		is := is.New(t)

		smaller := sampleSnapshot()
		smaller.Items = smaller.Items[:1]
		smaller.Borrowers = nil
		smaller.Loans = nil
		is.NoErr(store.SaveSnapshot(ctx, smaller))

		got, err := store.LoadSnapshot(ctx)
		is.NoErr(err)
		compareSnapshots(is, got, smaller)
	})

	t.Run("refuses to save an inconsistent snapshot", func(t *testing.T) {
		is := is.New(t)

		bad := sampleSnapshot()
		bad.Borrowers[0].OpenLoans = 3
		err := store.SaveSnapshot(ctx, bad)
		is.True(errors.Is(err, lending.ErrResponseInconsistentSnapshot))
	})
}

func TestLoadEmptyDatabase(t *testing.T) {
	is := is.New(t)
	teardownDB(t)

	got, err := store.LoadSnapshot(ctx)
	is.NoErr(err)
	is.Equal(len(got.Items), 0)
	is.Equal(got.NextLoanID, int64(1))
}

func compareSnapshots(is *is.I, got, want lending.Snapshot) {
	is.Helper()
	is.Equal(got.NextLoanID, want.NextLoanID)
	is.Equal(len(got.Items), len(want.Items))
	for i := range want.Items {
		g, w := got.Items[i], want.Items[i]
		is.True(g.CreatedAt.Equal(w.CreatedAt))
		is.True(g.UpdatedAt.Equal(w.UpdatedAt))
		g.CreatedAt, g.UpdatedAt = w.CreatedAt, w.UpdatedAt
		is.Equal(g, w)
	}
	is.Equal(len(got.Borrowers), len(want.Borrowers))
	for i := range want.Borrowers {
		g, w := got.Borrowers[i], want.Borrowers[i]
		is.True(g.CreatedAt.Equal(w.CreatedAt))
		is.True(g.UpdatedAt.Equal(w.UpdatedAt))
		g.CreatedAt, g.UpdatedAt = w.CreatedAt, w.UpdatedAt
		is.Equal(g, w)
	}
	is.Equal(len(got.Loans), len(want.Loans))
	for i := range want.Loans {
		is.Equal(got.Loans[i], want.Loans[i])
	}
}

func teardownDB(t *testing.T) {
	is := is.New(t)

	_, err := sqlDB.Exec(`TRUNCATE TABLE loans, items, borrowers, ledger_state`)
	is.NoErr(err)
}
