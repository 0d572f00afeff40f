package http

import (
	"net/http"

	"github.com/lending-service/cmd/api/lending"
)

/* Addresses a call to "/loans" according to the requested action.  */
func (h *LendingHandler) loans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listLoans(w, r)
	case http.MethodPost:
		h.issueLoan(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type LoanEntry struct {
	BorrowerID string `json:"borrower_id"`
	ItemID     string `json:"item_id"`
}

type PaymentEntry struct {
	Amount lending.Money `json:"amount"`
}

type LoanResponse struct {
	ID         int64         `json:"id"`
	Reference  string        `json:"reference"`
	ItemID     string        `json:"item_id"`
	BorrowerID string        `json:"borrower_id"`
	IssuedOn   string        `json:"issued_on"`
	DueOn      string        `json:"due_on"`
	ReturnedOn *string       `json:"returned_on"`
	Fine       lending.Money `json:"fine"`
	Status     string        `json:"status"`
	Overdue    bool          `json:"overdue"`
}

/*Copy the fields of a loan to an http layer struct with json tags*/
func (h *LendingHandler) loanToResponse(l lending.LoanTransaction) LoanResponse {
	resp := LoanResponse{
		ID:         l.ID,
		Reference:  l.Reference,
		ItemID:     l.ItemID,
		BorrowerID: l.BorrowerID,
		IssuedOn:   lending.FormatDate(l.IssuedOn),
		DueOn:      lending.FormatDate(l.DueOn),
		Fine:       l.Fine,
		Status:     string(l.Status),
		Overdue:    h.ledger.IsOverdue(l),
	}
	if l.ReturnedOn.Valid {
		on := lending.FormatDate(l.ReturnedOn.Time)
		resp.ReturnedOn = &on
	}
	return resp
}

func (h *LendingHandler) issueLoan(w http.ResponseWriter, r *http.Request) {
	var entry LoanEntry
	if !h.decodeEntry(w, r, &entry) {
		return
	}
	if entry.BorrowerID == "" || entry.ItemID == "" {
		responseJSON(w, http.StatusBadRequest, lending.ErrResponseInvalidArgument.WithDetail("borrower_id and item_id must be filled"))
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	loan, err := h.ledger.Issue(ctx, entry.BorrowerID, entry.ItemID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusCreated, h.loanToResponse(loan))
}

/* Closes the open loan of the item held by the borrower. A fine, if any, is announced to the notifier. */
func (h *LendingHandler) returnLoan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var entry LoanEntry
	if !h.decodeEntry(w, r, &entry) {
		return
	}
	if entry.BorrowerID == "" || entry.ItemID == "" {
		responseJSON(w, http.StatusBadRequest, lending.ErrResponseInvalidArgument.WithDetail("borrower_id and item_id must be filled"))
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	loan, err := h.ledger.ReturnItem(ctx, entry.BorrowerID, entry.ItemID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, h.loanToResponse(loan))
	h.notifyFine(loan)
}

func (h *LendingHandler) listLoans(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	loans, err := collectResponses(h.ledger.Loans(ctx), h.loanToResponse)
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, loans)
}

func (h *LendingHandler) overdueLoans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	loans, err := collectResponses(h.ledger.ListOverdue(ctx), h.loanToResponse)
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, loans)
}

/* Returns the loan with that numeric ID or reference. */
func (h *LendingHandler) loanByKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	loan, err := h.ledger.GetLoan(ctx, r.PathValue("key"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, h.loanToResponse(loan))
}

func (h *LendingHandler) borrowerLoans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	b, err := h.registry.Find(ctx, r.PathValue("id"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	loans, err := collectResponses(h.ledger.History(ctx, b.ID), h.loanToResponse)
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, loans)
}

/* Takes a fine payment from the borrower. */
func (h *LendingHandler) payFine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var entry PaymentEntry
	if !h.decodeEntry(w, r, &entry) {
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	b, err := h.ledger.PayFine(ctx, r.PathValue("id"), entry.Amount)
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, borrowerToResponse(b))
}
