package lending

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Reports assembles read-only views over the catalog, registry and ledger.
type Reports struct {
	catalog  *Catalog
	registry *Registry
	ledger   *Ledger
}

func NewReports(catalog *Catalog, registry *Registry, ledger *Ledger) *Reports {
	return &Reports{catalog: catalog, registry: registry, ledger: ledger}
}

type CategoryTally struct {
	Category        string
	Items           int
	TotalCopies     int
	AvailableCopies int
}

type InventoryReport struct {
	Items           []Item
	TotalItems      int
	TotalCopies     int
	AvailableCopies int
	OnLoanCopies    int
	Categories      []CategoryTally
}

type BorrowerLine struct {
	Borrower     Borrower
	OverdueLoans []int64
}

type BorrowersReport struct {
	Borrowers        []BorrowerLine
	TotalBorrowers   int
	WithOpenLoans    int
	WithOverdueLoans int
	OutstandingFines Money
}

type TransactionLine struct {
	Loan         LoanTransaction
	ItemTitle    string
	BorrowerName string
	Status       string
}

type TransactionsReport struct {
	AsOf          time.Time
	Lines         []TransactionLine
	Open          int
	Returned      int
	Overdue       int
	FinesAssessed Money
}

type OverdueLine struct {
	Loan          LoanTransaction
	ItemTitle     string
	BorrowerName  string
	DaysOverdue   int
	PotentialFine Money
}

type OverdueReport struct {
	AsOf                time.Time
	Lines               []OverdueLine
	TotalPotentialFines Money
}

type TopBorrowedLine struct {
	ItemID string
	Title  string
	Loans  int
}

type Summary struct {
	Items        int
	Copies       int
	Borrowers    int
	Transactions int
	OpenLoans    int
	OverdueLoans int
}

// StatusLabel renders the state of a loan as of today.
func StatusLabel(loan LoanTransaction, today time.Time, rate Money) string {
	if !loan.IsOpen() {
		return "RETURNED on " + FormatDate(loan.ReturnedOn.Time)
	}
	if loan.OverdueOn(today) {
		return fmt.Sprintf("OVERDUE (fine: %s)", ComputeFine(loan.DueOn, today, rate))
	}
	return "ON LOAN"
}

func (r *Reports) Inventory(ctx context.Context) (InventoryReport, error) {
	items, err := collect(r.catalog.List(ctx))
	if err != nil {
		return InventoryReport{}, fmt.Errorf("inventory report: %w", err)
	}
	report := InventoryReport{Items: items, TotalItems: len(items)}
	tallies := map[string]*CategoryTally{}
	for _, item := range items {
		report.TotalCopies += item.TotalCopies
		report.AvailableCopies += item.AvailableCopies
		t, ok := tallies[item.Category]
		if !ok {
			t = &CategoryTally{Category: item.Category}
			tallies[item.Category] = t
		}
		t.Items++
		t.TotalCopies += item.TotalCopies
		t.AvailableCopies += item.AvailableCopies
	}
	report.OnLoanCopies = report.TotalCopies - report.AvailableCopies
	for _, t := range tallies {
		report.Categories = append(report.Categories, *t)
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		return report.Categories[i].Category < report.Categories[j].Category
	})
	return report, nil
}

func (r *Reports) Borrowers(ctx context.Context) (BorrowersReport, error) {
	today := r.ledger.Today()
	borrowers, err := collect(r.registry.List(ctx))
	if err != nil {
		return BorrowersReport{}, fmt.Errorf("borrowers report: %w", err)
	}
	overdue, err := r.ledger.overdueAsOf(ctx, today)
	if err != nil {
		return BorrowersReport{}, fmt.Errorf("borrowers report: %w", err)
	}
	overdueBy := map[string][]int64{}
	for _, loan := range overdue {
		overdueBy[loan.BorrowerID] = append(overdueBy[loan.BorrowerID], loan.ID)
	}

	report := BorrowersReport{TotalBorrowers: len(borrowers)}
	for _, b := range borrowers {
		line := BorrowerLine{Borrower: b, OverdueLoans: overdueBy[b.ID]}
		if b.OpenLoans > 0 {
			report.WithOpenLoans++
		}
		if len(line.OverdueLoans) > 0 {
			report.WithOverdueLoans++
		}
		report.OutstandingFines += b.FineBalance
		report.Borrowers = append(report.Borrowers, line)
	}
	return report, nil
}

// Transactions lists every loan with a status label and the names it refers
// to. Removed items and borrowers are reported by ID only.
func (r *Reports) Transactions(ctx context.Context) (TransactionsReport, error) {
	today := r.ledger.Today()
	rate := r.ledger.Policy().FinePerDay
	titles, names, err := r.lookups(ctx)
	if err != nil {
		return TransactionsReport{}, fmt.Errorf("transactions report: %w", err)
	}

	report := TransactionsReport{AsOf: today}
	for loan, err := range r.ledger.Loans(ctx) {
		if err != nil {
			return TransactionsReport{}, fmt.Errorf("transactions report: %w", err)
		}
		switch {
		case !loan.IsOpen():
			report.Returned++
			report.FinesAssessed += loan.Fine
		case loan.OverdueOn(today):
			report.Open++
			report.Overdue++
		default:
			report.Open++
		}
		report.Lines = append(report.Lines, TransactionLine{
			Loan:         loan,
			ItemTitle:    titles[loan.ItemID],
			BorrowerName: names[loan.BorrowerID],
			Status:       StatusLabel(loan, today, rate),
		})
	}
	return report, nil
}

func (r *Reports) Overdue(ctx context.Context) (OverdueReport, error) {
	today := r.ledger.Today()
	rate := r.ledger.Policy().FinePerDay
	titles, names, err := r.lookups(ctx)
	if err != nil {
		return OverdueReport{}, fmt.Errorf("overdue report: %w", err)
	}
	overdue, err := r.ledger.overdueAsOf(ctx, today)
	if err != nil {
		return OverdueReport{}, fmt.Errorf("overdue report: %w", err)
	}

	report := OverdueReport{AsOf: today}
	for _, loan := range overdue {
		fine := ComputeFine(loan.DueOn, today, rate)
		report.TotalPotentialFines += fine
		report.Lines = append(report.Lines, OverdueLine{
			Loan:          loan,
			ItemTitle:     titles[loan.ItemID],
			BorrowerName:  names[loan.BorrowerID],
			DaysOverdue:   DaysBetween(loan.DueOn, today),
			PotentialFine: fine,
		})
	}
	return report, nil
}

// TopBorrowed ranks items by how many times they were lent, most first.
// Ties keep catalog order. n <= 0 returns every item that was lent.
func (r *Reports) TopBorrowed(ctx context.Context, n int) ([]TopBorrowedLine, error) {
	counts := map[string]int{}
	for loan, err := range r.ledger.Loans(ctx) {
		if err != nil {
			return nil, fmt.Errorf("top borrowed report: %w", err)
		}
		counts[loan.ItemID]++
	}

	var lines []TopBorrowedLine
	seen := map[string]bool{}
	for item, err := range r.catalog.List(ctx) {
		if err != nil {
			return nil, fmt.Errorf("top borrowed report: %w", err)
		}
		seen[item.ID] = true
		if counts[item.ID] > 0 {
			lines = append(lines, TopBorrowedLine{ItemID: item.ID, Title: item.Title, Loans: counts[item.ID]})
		}
	}
	var removed []string
	for id := range counts {
		if !seen[id] {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		lines = append(lines, TopBorrowedLine{ItemID: id, Loans: counts[id]})
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Loans > lines[j].Loans })
	if n > 0 && len(lines) > n {
		lines = lines[:n]
	}
	return lines, nil
}

func (r *Reports) Summary(ctx context.Context) (Summary, error) {
	today := r.ledger.Today()
	var s Summary
	for item, err := range r.catalog.List(ctx) {
		if err != nil {
			return Summary{}, fmt.Errorf("summary: %w", err)
		}
		s.Items++
		s.Copies += item.TotalCopies
	}
	for _, err := range r.registry.List(ctx) {
		if err != nil {
			return Summary{}, fmt.Errorf("summary: %w", err)
		}
		s.Borrowers++
	}
	for loan, err := range r.ledger.Loans(ctx) {
		if err != nil {
			return Summary{}, fmt.Errorf("summary: %w", err)
		}
		s.Transactions++
		if loan.IsOpen() {
			s.OpenLoans++
		}
		if loan.OverdueOn(today) {
			s.OverdueLoans++
		}
	}
	return s, nil
}

func (r *Reports) lookups(ctx context.Context) (titles, names map[string]string, err error) {
	titles = map[string]string{}
	for item, err := range r.catalog.List(ctx) {
		if err != nil {
			return nil, nil, err
		}
		titles[item.ID] = item.Title
	}
	names = map[string]string{}
	for b, err := range r.registry.List(ctx) {
		if err != nil {
			return nil, nil, err
		}
		names[b.ID] = b.Name
	}
	return titles, names, nil
}
