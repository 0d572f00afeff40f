package lending

// Snapshot is the full lending state, as persisted between runs.
type Snapshot struct {
	Items      []Item
	Borrowers  []Borrower
	Loans      []LoanTransaction
	NextLoanID int64
}

type pair struct {
	borrowerID string
	itemID     string
}

// ValidateSnapshot checks the counters of s against its open loans.
// Returned loans may refer to items or borrowers that were removed since.
func ValidateSnapshot(s Snapshot) error {
	items := make(map[string]Item, len(s.Items))
	for _, item := range s.Items {
		if item.ID == "" {
			return ErrResponseInconsistentSnapshot.WithDetail("item with empty id")
		}
		if _, dup := items[item.ID]; dup {
			return ErrResponseInconsistentSnapshot.WithDetail("duplicate item %s", item.ID)
		}
		if item.TotalCopies < 1 || item.AvailableCopies < 0 || item.AvailableCopies > item.TotalCopies {
			return ErrResponseInconsistentSnapshot.WithDetail("item %s has %d of %d copies available", item.ID, item.AvailableCopies, item.TotalCopies)
		}
		items[item.ID] = item
	}
	borrowers := make(map[string]Borrower, len(s.Borrowers))
	for _, b := range s.Borrowers {
		if b.ID == "" {
			return ErrResponseInconsistentSnapshot.WithDetail("borrower with empty id")
		}
		if _, dup := borrowers[b.ID]; dup {
			return ErrResponseInconsistentSnapshot.WithDetail("duplicate borrower %s", b.ID)
		}
		if b.OpenLoans < 0 || b.FineBalance < 0 {
			return ErrResponseInconsistentSnapshot.WithDetail("borrower %s has negative counters", b.ID)
		}
		borrowers[b.ID] = b
	}

	loanIDs := make(map[int64]bool, len(s.Loans))
	refs := make(map[string]bool, len(s.Loans))
	openByItem := map[string]int{}
	openByBorrower := map[string]int{}
	openPairs := map[pair]bool{}
	for _, loan := range s.Loans {
		if loan.ID < 1 || loan.ID >= s.NextLoanID {
			return ErrResponseInconsistentSnapshot.WithDetail("loan id %d outside 1..%d", loan.ID, s.NextLoanID-1)
		}
		if loanIDs[loan.ID] {
			return ErrResponseInconsistentSnapshot.WithDetail("duplicate loan %d", loan.ID)
		}
		loanIDs[loan.ID] = true
		if loan.Reference != "" {
			if refs[loan.Reference] {
				return ErrResponseInconsistentSnapshot.WithDetail("duplicate loan reference %s", loan.Reference)
			}
			refs[loan.Reference] = true
		}
		if loan.Fine < 0 || loan.DueOn.Before(loan.IssuedOn) {
			return ErrResponseInconsistentSnapshot.WithDetail("loan %d has invalid dates or fine", loan.ID)
		}
		if loan.IsOpen() != (loan.Status == StatusIssued) {
			return ErrResponseInconsistentSnapshot.WithDetail("loan %d status %s disagrees with its return date", loan.ID, loan.Status)
		}
		if !loan.IsOpen() {
			continue
		}
		if _, ok := items[loan.ItemID]; !ok {
			return ErrResponseInconsistentSnapshot.WithDetail("open loan %d refers to unknown item %s", loan.ID, loan.ItemID)
		}
		if _, ok := borrowers[loan.BorrowerID]; !ok {
			return ErrResponseInconsistentSnapshot.WithDetail("open loan %d refers to unknown borrower %s", loan.ID, loan.BorrowerID)
		}
		p := pair{loan.BorrowerID, loan.ItemID}
		if openPairs[p] {
			return ErrResponseInconsistentSnapshot.WithDetail("several open loans of %s for %s", loan.ItemID, loan.BorrowerID)
		}
		openPairs[p] = true
		openByItem[loan.ItemID]++
		openByBorrower[loan.BorrowerID]++
	}

	for id, item := range items {
		if item.AvailableCopies != item.TotalCopies-openByItem[id] {
			return ErrResponseInconsistentSnapshot.WithDetail("item %s has %d available but %d open loans of %d copies", id, item.AvailableCopies, openByItem[id], item.TotalCopies)
		}
	}
	for id, b := range borrowers {
		if b.OpenLoans != openByBorrower[id] {
			return ErrResponseInconsistentSnapshot.WithDetail("borrower %s counts %d open loans but holds %d", id, b.OpenLoans, openByBorrower[id])
		}
	}
	return nil
}
