package lending

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"
)

// Catalog keeps the lendable items. Copy counts are delegated to the LoanTracker.
type Catalog struct {
	repo    Repository
	tracker LoanTracker
	clock   Clock
	logger  *zap.Logger
}

func NewCatalog(repo Repository, tracker LoanTracker, opts ...Option) *Catalog {
	s := newSettings(opts)
	return &Catalog{
		repo:    repo,
		tracker: tracker,
		clock:   s.clock,
		logger:  s.logger,
	}
}

/* Verifies the mandatory fields of a new item. */
func validItemEntry(req CreateItemRequest) error {
	if req.ID == "" {
		return ErrResponseInvalidArgument.WithDetail("item id must be filled")
	}
	if req.Title == "" {
		return ErrResponseInvalidArgument.WithDetail("item title must be filled")
	}
	if req.TotalCopies < 1 {
		return ErrResponseInvalidArgument.WithDetail("total copies must be at least 1")
	}
	if req.Year < 0 {
		return ErrResponseInvalidArgument.WithDetail("year must not be negative")
	}
	return nil
}

func (c *Catalog) Add(ctx context.Context, req CreateItemRequest) (Item, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.Title = strings.TrimSpace(req.Title)
	if err := validItemEntry(req); err != nil {
		return Item{}, err
	}

	now := c.clock.Now()
	item := Item{
		ID:              req.ID,
		Title:           req.Title,
		Creator:         strings.TrimSpace(req.Creator),
		Publisher:       strings.TrimSpace(req.Publisher),
		Year:            req.Year,
		Category:        strings.TrimSpace(req.Category),
		TotalCopies:     req.TotalCopies,
		AvailableCopies: req.TotalCopies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	item, err := c.repo.CreateItem(ctx, item)
	if err != nil {
		return Item{}, fmt.Errorf("adding item: %w", err)
	}
	c.logger.Info("item added", zap.String("item_id", item.ID), zap.Int("copies", item.TotalCopies))
	return item, nil
}

func (c *Catalog) Find(ctx context.Context, id string) (Item, error) {
	item, err := c.repo.GetItem(ctx, strings.TrimSpace(id))
	if err != nil {
		return Item{}, fmt.Errorf("finding item: %w", err)
	}
	return item, nil
}

// List yields every item in the order it was added.
func (c *Catalog) List(ctx context.Context) iter.Seq2[Item, error] {
	return c.repo.ScanItems(ctx)
}

// Search yields the items whose id, title, creator or category contains
// query, ignoring case.
func (c *Catalog) Search(ctx context.Context, query string) iter.Seq2[Item, error] {
	needle := strings.ToLower(strings.TrimSpace(query))
	return func(yield func(Item, error) bool) {
		for item, err := range c.repo.ScanItems(ctx) {
			if err != nil {
				yield(Item{}, fmt.Errorf("searching items: %w", err))
				return
			}
			if !itemMatches(item, needle) {
				continue
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

func itemMatches(item Item, needle string) bool {
	for _, field := range []string{item.ID, item.Title, item.Creator, item.Category} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// Update applies the non-nil fields of upd. A new total is checked
// against the open loans of the item.
func (c *Catalog) Update(ctx context.Context, id string, upd ItemUpdate) (item Item, err error) {
	txRepo, tx, err := c.repo.BeginTx(ctx, nil)
	if err != nil {
		return Item{}, fmt.Errorf("updating item: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	item, err = txRepo.GetItem(ctx, strings.TrimSpace(id))
	if err != nil {
		return Item{}, fmt.Errorf("updating item: %w", err)
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return Item{}, ErrResponseInvalidArgument.WithDetail("item title must be filled")
		}
		item.Title = title
	}
	if upd.Creator != nil {
		item.Creator = strings.TrimSpace(*upd.Creator)
	}
	if upd.Publisher != nil {
		item.Publisher = strings.TrimSpace(*upd.Publisher)
	}
	if upd.Year != nil {
		if *upd.Year < 0 {
			return Item{}, ErrResponseInvalidArgument.WithDetail("year must not be negative")
		}
		item.Year = *upd.Year
	}
	if upd.Category != nil {
		item.Category = strings.TrimSpace(*upd.Category)
	}
	if upd.TotalCopies != nil && *upd.TotalCopies != item.TotalCopies {
		if item, err = c.tracker.AdjustTotalCopies(ctx, txRepo, item, *upd.TotalCopies); err != nil {
			return Item{}, fmt.Errorf("updating item: %w", err)
		}
	}
	item.UpdatedAt = c.clock.Now()

	if item, err = txRepo.UpdateItem(ctx, item); err != nil {
		return Item{}, fmt.Errorf("updating item: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return Item{}, fmt.Errorf("updating item: commit: %w", err)
	}
	c.logger.Info("item updated", zap.String("item_id", item.ID))
	return item, nil
}

// Remove deletes an item that has no open loans.
func (c *Catalog) Remove(ctx context.Context, id string) (err error) {
	txRepo, tx, err := c.repo.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("removing item: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	item, err := txRepo.GetItem(ctx, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("removing item: %w", err)
	}
	open, err := c.tracker.OpenLoansForItem(ctx, txRepo, item.ID)
	if err != nil {
		return fmt.Errorf("removing item: %w", err)
	}
	if open > 0 {
		return ErrResponseItemHasOpenLoans.WithDetail("%s has %d", item.ID, open)
	}
	if err = txRepo.DeleteItem(ctx, item.ID); err != nil {
		return fmt.Errorf("removing item: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("removing item: commit: %w", err)
	}
	c.logger.Info("item removed", zap.String("item_id", item.ID))
	return nil
}
