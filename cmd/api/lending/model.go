package lending

import (
	"database/sql"
	"time"
)

type Item struct {
	ID              string
	Title           string
	Creator         string
	Publisher       string
	Year            int
	Category        string
	TotalCopies     int
	AvailableCopies int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (i Item) OnLoan() int {
	return i.TotalCopies - i.AvailableCopies
}

type Borrower struct {
	ID          string
	Name        string
	Email       string
	Phone       string
	Address     string
	OpenLoans   int
	FineBalance Money
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type LoanStatus string

const (
	StatusIssued   LoanStatus = "ISSUED"
	StatusReturned LoanStatus = "RETURNED"
)

type LoanTransaction struct {
	ID         int64
	Reference  string
	ItemID     string
	BorrowerID string
	IssuedOn   time.Time
	DueOn      time.Time
	ReturnedOn sql.NullTime
	Fine       Money
	Status     LoanStatus
}

func (l LoanTransaction) IsOpen() bool {
	return !l.ReturnedOn.Valid
}

// OverdueOn reports whether the loan is still open after its due date as of today.
func (l LoanTransaction) OverdueOn(today time.Time) bool {
	return l.IsOpen() && DateOf(today).After(l.DueOn)
}

type CreateItemRequest struct {
	ID          string
	Title       string
	Creator     string
	Publisher   string
	Year        int
	Category    string
	TotalCopies int
}

// ItemUpdate carries the fields to change; nil keeps the current value.
type ItemUpdate struct {
	Title       *string
	Creator     *string
	Publisher   *string
	Year        *int
	Category    *string
	TotalCopies *int
}

type CreateBorrowerRequest struct {
	ID      string
	Name    string
	Email   string
	Phone   string
	Address string
}

// BorrowerUpdate carries the fields to change; nil keeps the current value.
type BorrowerUpdate struct {
	Name    *string
	Email   *string
	Phone   *string
	Address *string
}
