package lending

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry keeps the borrowers. Open loan counts and fine balances are
// only changed by the Ledger.
type Registry struct {
	repo    Repository
	tracker LoanTracker
	clock   Clock
	logger  *zap.Logger
}

func NewRegistry(repo Repository, tracker LoanTracker, opts ...Option) *Registry {
	s := newSettings(opts)
	return &Registry{
		repo:    repo,
		tracker: tracker,
		clock:   s.clock,
		logger:  s.logger,
	}
}

// normalizeBorrowerID trims and uppercases id so lookups are case insensitive.
func normalizeBorrowerID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Add registers a borrower. An empty ID is replaced by a generated one.
func (r *Registry) Add(ctx context.Context, req CreateBorrowerRequest) (Borrower, error) {
	id := normalizeBorrowerID(req.ID)
	if id == "" {
		id = strings.ToUpper(uuid.NewString())
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Borrower{}, ErrResponseInvalidArgument.WithDetail("borrower name must be filled")
	}

	now := r.clock.Now()
	borrower := Borrower{
		ID:        id,
		Name:      name,
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		CreatedAt: now,
		UpdatedAt: now,
	}
	borrower, err := r.repo.CreateBorrower(ctx, borrower)
	if err != nil {
		return Borrower{}, fmt.Errorf("adding borrower: %w", err)
	}
	r.logger.Info("borrower added", zap.String("borrower_id", borrower.ID))
	return borrower, nil
}

func (r *Registry) Find(ctx context.Context, id string) (Borrower, error) {
	borrower, err := r.repo.GetBorrower(ctx, normalizeBorrowerID(id))
	if err != nil {
		return Borrower{}, fmt.Errorf("finding borrower: %w", err)
	}
	return borrower, nil
}

// List yields every borrower in the order they were registered.
func (r *Registry) List(ctx context.Context) iter.Seq2[Borrower, error] {
	return r.repo.ScanBorrowers(ctx)
}

// Search yields the borrowers whose id, name or email contains query, ignoring case.
func (r *Registry) Search(ctx context.Context, query string) iter.Seq2[Borrower, error] {
	needle := strings.ToLower(strings.TrimSpace(query))
	return func(yield func(Borrower, error) bool) {
		for borrower, err := range r.repo.ScanBorrowers(ctx) {
			if err != nil {
				yield(Borrower{}, fmt.Errorf("searching borrowers: %w", err))
				return
			}
			if !strings.Contains(strings.ToLower(borrower.ID), needle) &&
				!strings.Contains(strings.ToLower(borrower.Name), needle) &&
				!strings.Contains(strings.ToLower(borrower.Email), needle) {
				continue
			}
			if !yield(borrower, nil) {
				return
			}
		}
	}
}

// Update applies the non-nil contact fields of upd.
func (r *Registry) Update(ctx context.Context, id string, upd BorrowerUpdate) (borrower Borrower, err error) {
	txRepo, tx, err := r.repo.BeginTx(ctx, nil)
	if err != nil {
		return Borrower{}, fmt.Errorf("updating borrower: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	borrower, err = txRepo.GetBorrower(ctx, normalizeBorrowerID(id))
	if err != nil {
		return Borrower{}, fmt.Errorf("updating borrower: %w", err)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Borrower{}, ErrResponseInvalidArgument.WithDetail("borrower name must be filled")
		}
		borrower.Name = name
	}
	if upd.Email != nil {
		borrower.Email = strings.TrimSpace(*upd.Email)
	}
	if upd.Phone != nil {
		borrower.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.Address != nil {
		borrower.Address = strings.TrimSpace(*upd.Address)
	}
	borrower.UpdatedAt = r.clock.Now()

	if borrower, err = txRepo.UpdateBorrower(ctx, borrower); err != nil {
		return Borrower{}, fmt.Errorf("updating borrower: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return Borrower{}, fmt.Errorf("updating borrower: commit: %w", err)
	}
	r.logger.Info("borrower updated", zap.String("borrower_id", borrower.ID))
	return borrower, nil
}

// Remove deletes a borrower that has no open loans.
func (r *Registry) Remove(ctx context.Context, id string) (err error) {
	txRepo, tx, err := r.repo.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("removing borrower: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	borrower, err := txRepo.GetBorrower(ctx, normalizeBorrowerID(id))
	if err != nil {
		return fmt.Errorf("removing borrower: %w", err)
	}
	open, err := r.tracker.OpenLoansForBorrower(ctx, txRepo, borrower.ID)
	if err != nil {
		return fmt.Errorf("removing borrower: %w", err)
	}
	if open > 0 {
		return ErrResponseBorrowerHasOpenLoans.WithDetail("%s has %d", borrower.ID, open)
	}
	if err = txRepo.DeleteBorrower(ctx, borrower.ID); err != nil {
		return fmt.Errorf("removing borrower: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("removing borrower: commit: %w", err)
	}
	r.logger.Info("borrower removed", zap.String("borrower_id", borrower.ID))
	return nil
}
