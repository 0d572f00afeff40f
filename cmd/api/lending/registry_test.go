package lending_test

import (
	"errors"
	"testing"

	"github.com/lending-service/cmd/api/lending"
	"github.com/matryer/is"
)

func TestRegistryAdd(t *testing.T) {
	t.Run("uppercases the identifier so lookups ignore case", func(t *testing.T) {
		is := is.New(t)
		f := newFixture(t)

		b, err := f.registry.Add(ctx, lending.CreateBorrowerRequest{ID: " m100 ", Name: "Ada Lovelace", Email: "ada@example.com"})
		is.NoErr(err)
		is.Equal(b.ID, "M100")
		is.Equal(b.OpenLoans, 0)
		is.Equal(b.FineBalance, lending.Money(0))

		found, err := f.registry.Find(ctx, "m100")
		is.NoErr(err)
		is.Equal(found, b)
	})

	t.Run("generates an identifier when none is given", func(t *testing.T) {
		is := is.New(t)
		f := newFixture(t)

		a, err := f.registry.Add(ctx, lending.CreateBorrowerRequest{Name: "First"})
		is.NoErr(err)
		b, err := f.registry.Add(ctx, lending.CreateBorrowerRequest{Name: "Second"})
		is.NoErr(err)
		is.True(a.ID != "")
		is.True(a.ID != b.ID)
	})

	t.Run("rejects a duplicate identifier and a blank name", func(t *testing.T) {
		is := is.New(t)
		f := newFixture(t)
		f.addBorrower(is, "B1")

		_, err := f.registry.Add(ctx, lending.CreateBorrowerRequest{ID: "b1", Name: "Other"})
		is.True(errors.Is(err, lending.ErrResponseDuplicateBorrower))
		is.Equal(lending.KindOf(err), lending.KindDuplicateKey)

		_, err = f.registry.Add(ctx, lending.CreateBorrowerRequest{ID: "B2"})
		is.Equal(lending.KindOf(err), lending.KindInvalidArgument)
	})
}

func TestRegistrySearch(t *testing.T) {
	is := is.New(t)
	f := newFixture(t)
	for _, req := range []lending.CreateBorrowerRequest{
		{ID: "M1", Name: "Grace Hopper"},
		{ID: "M2", Name: "Alan Turing"},
		{ID: "X9", Name: "Margaret Hamilton"},
	} {
		_, err := f.registry.Add(ctx, req)
		is.NoErr(err)
	}

	is.Equal(ids(is, f.registry.Search(ctx, "m"), borrowerID), []string{"M1", "M2", "X9"})
	is.Equal(ids(is, f.registry.Search(ctx, "HOPPER"), borrowerID), []string{"M1"})
	is.Equal(ids(is, f.registry.Search(ctx, "x9"), borrowerID), []string{"X9"})
	is.Equal(ids(is, f.registry.List(ctx), borrowerID), []string{"M1", "M2", "X9"})
}

func TestRegistryUpdate(t *testing.T) {
	is := is.New(t)
	f := newFixture(t)
	f.addBorrower(is, "B1")

	b, err := f.registry.Update(ctx, "b1", lending.BorrowerUpdate{Phone: toPointer("555-0100")})
	is.NoErr(err)
	is.Equal(b.Phone, "555-0100")
	is.Equal(b.Name, "Borrower B1")

	_, err = f.registry.Update(ctx, "B1", lending.BorrowerUpdate{Name: toPointer("")})
	is.Equal(lending.KindOf(err), lending.KindInvalidArgument)
	_, err = f.registry.Update(ctx, "B9", lending.BorrowerUpdate{Name: toPointer("x")})
	is.True(errors.Is(err, lending.ErrResponseBorrowerNotFound))
}

func TestRegistryRemove(t *testing.T) {
	is := is.New(t)
	f := newFixture(t)
	f.addItem(is, "X1", 1)
	f.addBorrower(is, "B1")
	_, err := f.ledger.Issue(ctx, "B1", "X1")
	is.NoErr(err)

	err = f.registry.Remove(ctx, "B1")
	is.True(errors.Is(err, lending.ErrResponseBorrowerHasOpenLoans))
	is.Equal(lending.KindOf(err), lending.KindConflict)

	_, err = f.ledger.ReturnItem(ctx, "B1", "X1")
	is.NoErr(err)
	is.NoErr(f.registry.Remove(ctx, "B1"))
	_, err = f.registry.Find(ctx, "B1")
	is.True(errors.Is(err, lending.ErrResponseBorrowerNotFound))
}
