package http

import (
	"net/http"
	"time"

	"github.com/lending-service/cmd/api/lending"
	"go.uber.org/zap"
)

/* Addresses a call to "/items" according to the requested action.  */
func (h *LendingHandler) items(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listItems(w, r)
	case http.MethodPost:
		h.createItem(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

/* Addresses a call to "/items/{id}" according to the requested action.  */
func (h *LendingHandler) itemByID(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getItem(w, r)
	case http.MethodPut, http.MethodPatch:
		h.updateItem(w, r)
	case http.MethodDelete:
		h.removeItem(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type ItemEntry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Creator     string `json:"creator"`
	Publisher   string `json:"publisher"`
	Year        int    `json:"year"`
	Category    string `json:"category"`
	TotalCopies int    `json:"total_copies"`
}

// ItemUpdateEntry leaves out the fields that keep their current value.
type ItemUpdateEntry struct {
	Title       *string `json:"title"`
	Creator     *string `json:"creator"`
	Publisher   *string `json:"publisher"`
	Year        *int    `json:"year"`
	Category    *string `json:"category"`
	TotalCopies *int    `json:"total_copies"`
}

type ItemResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Creator         string    `json:"creator"`
	Publisher       string    `json:"publisher"`
	Year            int       `json:"year"`
	Category        string    `json:"category"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func itemToResponse(i lending.Item) ItemResponse {
	return ItemResponse{
		ID:              i.ID,
		Title:           i.Title,
		Creator:         i.Creator,
		Publisher:       i.Publisher,
		Year:            i.Year,
		Category:        i.Category,
		TotalCopies:     i.TotalCopies,
		AvailableCopies: i.AvailableCopies,
		CreatedAt:       i.CreatedAt,
		UpdatedAt:       i.UpdatedAt,
	}
}

func (h *LendingHandler) createItem(w http.ResponseWriter, r *http.Request) {
	var entry ItemEntry
	if !h.decodeEntry(w, r, &entry) {
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	item, err := h.catalog.Add(ctx, lending.CreateItemRequest{
		ID:          entry.ID,
		Title:       entry.Title,
		Creator:     entry.Creator,
		Publisher:   entry.Publisher,
		Year:        entry.Year,
		Category:    entry.Category,
		TotalCopies: entry.TotalCopies,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusCreated, itemToResponse(item))
}

func (h *LendingHandler) getItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	item, err := h.catalog.Find(ctx, r.PathValue("id"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, itemToResponse(item))
}

/* Lists every item, or the ones matching the "q" query parameter. */
func (h *LendingHandler) listItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	seq := h.catalog.List(ctx)
	if q := r.URL.Query().Get("q"); q != "" {
		seq = h.catalog.Search(ctx, q)
	}
	items, err := collectResponses(seq, itemToResponse)
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, items)
}

func (h *LendingHandler) searchItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	items, err := collectResponses(h.catalog.Search(ctx, r.URL.Query().Get("q")), itemToResponse)
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, items)
}

func (h *LendingHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	var entry ItemUpdateEntry
	if !h.decodeEntry(w, r, &entry) {
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	item, err := h.catalog.Update(ctx, r.PathValue("id"), lending.ItemUpdate{
		Title:       entry.Title,
		Creator:     entry.Creator,
		Publisher:   entry.Publisher,
		Year:        entry.Year,
		Category:    entry.Category,
		TotalCopies: entry.TotalCopies,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, itemToResponse(item))
}

func (h *LendingHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.catalog.Remove(ctx, r.PathValue("id")); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/* Addresses a call to "/borrowers" according to the requested action.  */
func (h *LendingHandler) borrowers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listBorrowers(w, r)
	case http.MethodPost:
		h.createBorrower(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

/* Addresses a call to "/borrowers/{id}" according to the requested action.  */
func (h *LendingHandler) borrowerByID(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getBorrower(w, r)
	case http.MethodPut, http.MethodPatch:
		h.updateBorrower(w, r)
	case http.MethodDelete:
		h.removeBorrower(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type BorrowerEntry struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type BorrowerUpdateEntry struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

type BorrowerResponse struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Email       string        `json:"email"`
	Phone       string        `json:"phone"`
	Address     string        `json:"address"`
	OpenLoans   int           `json:"open_loans"`
	FineBalance lending.Money `json:"fine_balance"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func borrowerToResponse(b lending.Borrower) BorrowerResponse {
	return BorrowerResponse{
		ID:          b.ID,
		Name:        b.Name,
		Email:       b.Email,
		Phone:       b.Phone,
		Address:     b.Address,
		OpenLoans:   b.OpenLoans,
		FineBalance: b.FineBalance,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func (h *LendingHandler) createBorrower(w http.ResponseWriter, r *http.Request) {
	var entry BorrowerEntry
	if !h.decodeEntry(w, r, &entry) {
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	b, err := h.registry.Add(ctx, lending.CreateBorrowerRequest{
		ID:      entry.ID,
		Name:    entry.Name,
		Email:   entry.Email,
		Phone:   entry.Phone,
		Address: entry.Address,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.logger.Debug("borrower created over http", zap.String("borrower_id", b.ID))
	responseJSON(w, http.StatusCreated, borrowerToResponse(b))
}

func (h *LendingHandler) getBorrower(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	b, err := h.registry.Find(ctx, r.PathValue("id"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, borrowerToResponse(b))
}

func (h *LendingHandler) listBorrowers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	seq := h.registry.List(ctx)
	if q := r.URL.Query().Get("q"); q != "" {
		seq = h.registry.Search(ctx, q)
	}
	borrowers, err := collectResponses(seq, borrowerToResponse)
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, borrowers)
}

func (h *LendingHandler) searchBorrowers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	borrowers, err := collectResponses(h.registry.Search(ctx, r.URL.Query().Get("q")), borrowerToResponse)
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, borrowers)
}

func (h *LendingHandler) updateBorrower(w http.ResponseWriter, r *http.Request) {
	var entry BorrowerUpdateEntry
	if !h.decodeEntry(w, r, &entry) {
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	b, err := h.registry.Update(ctx, r.PathValue("id"), lending.BorrowerUpdate{
		Name:    entry.Name,
		Email:   entry.Email,
		Phone:   entry.Phone,
		Address: entry.Address,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, borrowerToResponse(b))
}

func (h *LendingHandler) removeBorrower(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.registry.Remove(ctx, r.PathValue("id")); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
