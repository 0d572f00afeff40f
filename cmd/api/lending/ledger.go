package lending

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Ledger records loans and is the only writer of available copies,
// open loan counts and fine balances.
type Ledger struct {
	repo   Repository
	clock  Clock
	policy Policy
	refs   ReferenceGenerator
	logger *zap.Logger
}

func NewLedger(repo Repository, opts ...Option) *Ledger {
	s := newSettings(opts)
	return &Ledger{
		repo:   repo,
		clock:  s.clock,
		policy: s.policy,
		refs:   s.refs,
		logger: s.logger,
	}
}

func (l *Ledger) Policy() Policy {
	return l.policy
}

// Today is the current calendar date according to the ledger's clock.
func (l *Ledger) Today() time.Time {
	return DateOf(l.clock.Now())
}

// Issue lends one copy of itemID to borrowerID, due after the loan period.
func (l *Ledger) Issue(ctx context.Context, borrowerID, itemID string) (loan LoanTransaction, err error) {
	borrowerID, itemID = normalizeBorrowerID(borrowerID), strings.TrimSpace(itemID)
	now := l.clock.Now()
	today := DateOf(now)

	txRepo, tx, err := l.repo.BeginTx(ctx, nil)
	if err != nil {
		return LoanTransaction{}, fmt.Errorf("issuing loan: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	borrower, err := txRepo.GetBorrower(ctx, borrowerID)
	if err != nil {
		return LoanTransaction{}, fmt.Errorf("issuing loan: %w", err)
	}
	item, err := txRepo.GetItem(ctx, itemID)
	if err != nil {
		return LoanTransaction{}, fmt.Errorf("issuing loan: %w", err)
	}
	if item.AvailableCopies <= 0 {
		return LoanTransaction{}, ErrResponseUnavailable.WithDetail("%s", item.ID)
	}
	if borrower.OpenLoans >= l.policy.MaxOpenLoans {
		return LoanTransaction{}, ErrResponseLimitExceeded.WithDetail("%s holds %d", borrower.ID, borrower.OpenLoans)
	}
	open, err := txRepo.OpenLoansFor(ctx, borrower.ID, item.ID)
	if err != nil {
		return LoanTransaction{}, fmt.Errorf("issuing loan: %w", err)
	}
	if len(open) > 0 {
		return LoanTransaction{}, ErrResponseAlreadyBorrowed.WithDetail("loan %d", open[0].ID)
	}

	id, err := txRepo.NextLoanID(ctx)
	if err != nil {
		return LoanTransaction{}, fmt.Errorf("issuing loan: %w", err)
	}
	ref, err := l.refs.NewReference(now)
	if err != nil {
		return LoanTransaction{}, fmt.Errorf("issuing loan: generating reference: %w", err)
	}
	loan = LoanTransaction{
		ID:         id,
		Reference:  ref,
		ItemID:     item.ID,
		BorrowerID: borrower.ID,
		IssuedOn:   today,
		DueOn:      today.AddDate(0, 0, l.policy.LoanPeriodDays),
		Status:     StatusIssued,
	}

	item.AvailableCopies--
	item.UpdatedAt = now
	borrower.OpenLoans++
	borrower.UpdatedAt = now

	if _, err = txRepo.UpdateItem(ctx, item); err != nil {
		return LoanTransaction{}, fmt.Errorf("issuing loan: %w", err)
	}
	if _, err = txRepo.UpdateBorrower(ctx, borrower); err != nil {
		return LoanTransaction{}, fmt.Errorf("issuing loan: %w", err)
	}
	if loan, err = txRepo.CreateLoan(ctx, loan); err != nil {
		return LoanTransaction{}, fmt.Errorf("issuing loan: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return LoanTransaction{}, fmt.Errorf("issuing loan: commit: %w", err)
	}

	l.logger.Info("loan issued",
		zap.Int64("loan_id", loan.ID),
		zap.String("reference", loan.Reference),
		zap.String("item_id", loan.ItemID),
		zap.String("borrower_id", loan.BorrowerID),
		zap.String("due_on", FormatDate(loan.DueOn)),
	)
	return loan, nil
}

// ReturnItem closes the open loan of itemID held by borrowerID and
// charges the fine for every day past the due date.
func (l *Ledger) ReturnItem(ctx context.Context, borrowerID, itemID string) (loan LoanTransaction, err error) {
	borrowerID, itemID = normalizeBorrowerID(borrowerID), strings.TrimSpace(itemID)
	now := l.clock.Now()
	today := DateOf(now)

	txRepo, tx, err := l.repo.BeginTx(ctx, nil)
	if err != nil {
		return LoanTransaction{}, fmt.Errorf("returning item: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	borrower, err := txRepo.GetBorrower(ctx, borrowerID)
	if err != nil {
		return LoanTransaction{}, fmt.Errorf("returning item: %w", err)
	}
	item, err := txRepo.GetItem(ctx, itemID)
	if err != nil {
		return LoanTransaction{}, fmt.Errorf("returning item: %w", err)
	}
	open, err := txRepo.OpenLoansFor(ctx, borrower.ID, item.ID)
	if err != nil {
		return LoanTransaction{}, fmt.Errorf("returning item: %w", err)
	}
	if len(open) == 0 {
		return LoanTransaction{}, ErrResponseLoanNotFound.WithDetail("no open loan of %s for %s", item.ID, borrower.ID)
	}
	if len(open) > 1 {
		l.logger.Error("several open loans for one borrower and item",
			zap.String("item_id", item.ID),
			zap.String("borrower_id", borrower.ID),
			zap.Int("open", len(open)),
		)
	}

	loan = open[len(open)-1]
	loan.ReturnedOn = sql.NullTime{Time: today, Valid: true}
	loan.Status = StatusReturned
	loan.Fine = ComputeFine(loan.DueOn, today, l.policy.FinePerDay)

	item.AvailableCopies++
	item.UpdatedAt = now
	borrower.OpenLoans--
	borrower.FineBalance += loan.Fine
	borrower.UpdatedAt = now

	if loan, err = txRepo.UpdateLoan(ctx, loan); err != nil {
		return LoanTransaction{}, fmt.Errorf("returning item: %w", err)
	}
	if _, err = txRepo.UpdateItem(ctx, item); err != nil {
		return LoanTransaction{}, fmt.Errorf("returning item: %w", err)
	}
	if _, err = txRepo.UpdateBorrower(ctx, borrower); err != nil {
		return LoanTransaction{}, fmt.Errorf("returning item: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return LoanTransaction{}, fmt.Errorf("returning item: commit: %w", err)
	}

	fields := []zap.Field{
		zap.Int64("loan_id", loan.ID),
		zap.String("item_id", loan.ItemID),
		zap.String("borrower_id", loan.BorrowerID),
	}
	if loan.Fine > 0 {
		l.logger.Info("item returned late", append(fields, zap.Stringer("fine", loan.Fine))...)
	} else {
		l.logger.Info("item returned", fields...)
	}
	return loan, nil
}

// PayFine reduces the borrower's outstanding balance by amount.
func (l *Ledger) PayFine(ctx context.Context, borrowerID string, amount Money) (borrower Borrower, err error) {
	if amount <= 0 {
		return Borrower{}, ErrResponseInvalidArgument.WithDetail("payment must be positive")
	}
	txRepo, tx, err := l.repo.BeginTx(ctx, nil)
	if err != nil {
		return Borrower{}, fmt.Errorf("paying fine: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	borrower, err = txRepo.GetBorrower(ctx, normalizeBorrowerID(borrowerID))
	if err != nil {
		return Borrower{}, fmt.Errorf("paying fine: %w", err)
	}
	if amount > borrower.FineBalance {
		return Borrower{}, ErrResponsePaymentExceedsBalance.WithDetail("balance is %s", borrower.FineBalance)
	}
	borrower.FineBalance -= amount
	borrower.UpdatedAt = l.clock.Now()
	if borrower, err = txRepo.UpdateBorrower(ctx, borrower); err != nil {
		return Borrower{}, fmt.Errorf("paying fine: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return Borrower{}, fmt.Errorf("paying fine: commit: %w", err)
	}
	l.logger.Info("fine paid", zap.String("borrower_id", borrower.ID), zap.Stringer("amount", amount))
	return borrower, nil
}

// IsOverdue reports whether loan is open and past its due date today.
func (l *Ledger) IsOverdue(loan LoanTransaction) bool {
	return loan.OverdueOn(l.Today())
}

// ListOverdue yields the open loans past their due date, earliest due first.
func (l *Ledger) ListOverdue(ctx context.Context) iter.Seq2[LoanTransaction, error] {
	return func(yield func(LoanTransaction, error) bool) {
		overdue, err := l.overdueAsOf(ctx, l.Today())
		if err != nil {
			yield(LoanTransaction{}, err)
			return
		}
		for _, loan := range overdue {
			if !yield(loan, nil) {
				return
			}
		}
	}
}

func (l *Ledger) overdueAsOf(ctx context.Context, today time.Time) ([]LoanTransaction, error) {
	var overdue []LoanTransaction
	for loan, err := range l.repo.ScanOpenLoans(ctx) {
		if err != nil {
			return nil, fmt.Errorf("listing overdue loans: %w", err)
		}
		if loan.OverdueOn(today) {
			overdue = append(overdue, loan)
		}
	}
	sort.SliceStable(overdue, func(i, j int) bool {
		if overdue[i].DueOn.Equal(overdue[j].DueOn) {
			return overdue[i].ID < overdue[j].ID
		}
		return overdue[i].DueOn.Before(overdue[j].DueOn)
	})
	return overdue, nil
}

// Loans yields every transaction, open and closed, in ID order.
func (l *Ledger) Loans(ctx context.Context) iter.Seq2[LoanTransaction, error] {
	return l.repo.ScanLoans(ctx)
}

// History yields the transactions of one borrower in ID order.
func (l *Ledger) History(ctx context.Context, borrowerID string) iter.Seq2[LoanTransaction, error] {
	borrowerID = normalizeBorrowerID(borrowerID)
	return func(yield func(LoanTransaction, error) bool) {
		for loan, err := range l.repo.ScanLoans(ctx) {
			if err != nil {
				yield(LoanTransaction{}, fmt.Errorf("loan history: %w", err))
				return
			}
			if loan.BorrowerID != borrowerID {
				continue
			}
			if !yield(loan, nil) {
				return
			}
		}
	}
}

// GetLoan looks a loan up by its numeric ID or by its reference.
func (l *Ledger) GetLoan(ctx context.Context, key string) (LoanTransaction, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return LoanTransaction{}, ErrResponseInvalidArgument.WithDetail("empty loan key")
	}
	var (
		loan LoanTransaction
		err  error
	)
	if id, convErr := strconv.ParseInt(key, 10, 64); convErr == nil {
		loan, err = l.repo.GetLoan(ctx, id)
	} else {
		loan, err = l.repo.GetLoanByReference(ctx, strings.ToUpper(key))
	}
	if err != nil {
		return LoanTransaction{}, fmt.Errorf("getting loan %s: %w", key, err)
	}
	return loan, nil
}

func (l *Ledger) OpenLoansForItem(ctx context.Context, repo Repository, itemID string) (int, error) {
	if repo == nil {
		repo = l.repo
	}
	return repo.CountOpenLoansByItem(ctx, itemID)
}

func (l *Ledger) OpenLoansForBorrower(ctx context.Context, repo Repository, borrowerID string) (int, error) {
	if repo == nil {
		repo = l.repo
	}
	return repo.CountOpenLoansByBorrower(ctx, borrowerID)
}

// AdjustTotalCopies returns item with its total set to total and its
// available copies recomputed from the open loans. The caller persists it.
func (l *Ledger) AdjustTotalCopies(ctx context.Context, repo Repository, item Item, total int) (Item, error) {
	if total < 1 {
		return Item{}, ErrResponseInvalidArgument.WithDetail("total copies must be at least 1")
	}
	open, err := l.OpenLoansForItem(ctx, repo, item.ID)
	if err != nil {
		return Item{}, fmt.Errorf("adjusting copies of %s: %w", item.ID, err)
	}
	if total < open {
		return Item{}, ErrResponseCopiesBelowOpenLoans.WithDetail("%s has %d open loans", item.ID, open)
	}
	item.TotalCopies = total
	item.AvailableCopies = total - open
	return item, nil
}
