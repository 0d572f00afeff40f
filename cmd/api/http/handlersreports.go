package http

import (
	"net/http"
	"strconv"

	"github.com/lending-service/cmd/api/lending"
)

const defaultTopBorrowed = 10

type CategoryTallyResponse struct {
	Category        string `json:"category"`
	Items           int    `json:"items"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
}

type InventoryResponse struct {
	Items           []ItemResponse          `json:"items"`
	TotalItems      int                     `json:"total_items"`
	TotalCopies     int                     `json:"total_copies"`
	AvailableCopies int                     `json:"available_copies"`
	OnLoanCopies    int                     `json:"on_loan_copies"`
	Categories      []CategoryTallyResponse `json:"categories"`
}

type BorrowerLineResponse struct {
	Borrower     BorrowerResponse `json:"borrower"`
	OverdueLoans []int64          `json:"overdue_loans"`
}

type BorrowersReportResponse struct {
	Borrowers        []BorrowerLineResponse `json:"borrowers"`
	TotalBorrowers   int                    `json:"total_borrowers"`
	WithOpenLoans    int                    `json:"with_open_loans"`
	WithOverdueLoans int                    `json:"with_overdue_loans"`
	OutstandingFines lending.Money          `json:"outstanding_fines"`
}

type TransactionLineResponse struct {
	Loan         LoanResponse `json:"loan"`
	ItemTitle    string       `json:"item_title"`
	BorrowerName string       `json:"borrower_name"`
	Status       string       `json:"status"`
}

type TransactionsReportResponse struct {
	AsOf          string                    `json:"as_of"`
	Lines         []TransactionLineResponse `json:"lines"`
	Open          int                       `json:"open"`
	Returned      int                       `json:"returned"`
	Overdue       int                       `json:"overdue"`
	FinesAssessed lending.Money             `json:"fines_assessed"`
}

type OverdueLineResponse struct {
	Loan          LoanResponse  `json:"loan"`
	ItemTitle     string        `json:"item_title"`
	BorrowerName  string        `json:"borrower_name"`
	DaysOverdue   int           `json:"days_overdue"`
	PotentialFine lending.Money `json:"potential_fine"`
}

type OverdueReportResponse struct {
	AsOf                string                `json:"as_of"`
	Lines               []OverdueLineResponse `json:"lines"`
	TotalPotentialFines lending.Money         `json:"total_potential_fines"`
}

type TopBorrowedResponse struct {
	ItemID string `json:"item_id"`
	Title  string `json:"title"`
	Loans  int    `json:"loans"`
}

type SummaryResponse struct {
	Items        int `json:"items"`
	Copies       int `json:"copies"`
	Borrowers    int `json:"borrowers"`
	Transactions int `json:"transactions"`
	OpenLoans    int `json:"open_loans"`
	OverdueLoans int `json:"overdue_loans"`
}

/* Addresses a call to "/reports/{name}". */
func (h *LendingHandler) report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	var (
		body any
		err  error
	)
	switch r.PathValue("name") {
	case "inventory":
		var rep lending.InventoryReport
		rep, err = h.reports.Inventory(ctx)
		body = inventoryToResponse(rep)
	case "borrowers":
		var rep lending.BorrowersReport
		rep, err = h.reports.Borrowers(ctx)
		body = borrowersReportToResponse(rep)
	case "transactions":
		var rep lending.TransactionsReport
		rep, err = h.reports.Transactions(ctx)
		body = h.transactionsToResponse(rep)
	case "overdue":
		var rep lending.OverdueReport
		rep, err = h.reports.Overdue(ctx)
		body = h.overdueToResponse(rep)
	case "summary":
		var s lending.Summary
		s, err = h.reports.Summary(ctx)
		body = SummaryResponse(s)
	case "top":
		n := defaultTopBorrowed
		if raw := r.URL.Query().Get("n"); raw != "" {
			n, err = strconv.Atoi(raw)
			if err != nil || n < 1 {
				responseJSON(w, http.StatusBadRequest, lending.ErrResponseInvalidArgument.WithDetail("n must be a positive integer"))
				return
			}
		}
		var lines []lending.TopBorrowedLine
		lines, err = h.reports.TopBorrowed(ctx, n)
		top := make([]TopBorrowedResponse, 0, len(lines))
		for _, l := range lines {
			top = append(top, TopBorrowedResponse(l))
		}
		body = top
	default:
		responseJSON(w, http.StatusNotFound, lending.ErrResponseInvalidArgument.WithDetail("unknown report %q", r.PathValue("name")))
		return
	}
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseJSON(w, http.StatusOK, body)
}

func inventoryToResponse(rep lending.InventoryReport) InventoryResponse {
	resp := InventoryResponse{
		Items:           make([]ItemResponse, 0, len(rep.Items)),
		TotalItems:      rep.TotalItems,
		TotalCopies:     rep.TotalCopies,
		AvailableCopies: rep.AvailableCopies,
		OnLoanCopies:    rep.OnLoanCopies,
		Categories:      make([]CategoryTallyResponse, 0, len(rep.Categories)),
	}
	for _, i := range rep.Items {
		resp.Items = append(resp.Items, itemToResponse(i))
	}
	for _, c := range rep.Categories {
		resp.Categories = append(resp.Categories, CategoryTallyResponse(c))
	}
	return resp
}

func borrowersReportToResponse(rep lending.BorrowersReport) BorrowersReportResponse {
	resp := BorrowersReportResponse{
		Borrowers:        make([]BorrowerLineResponse, 0, len(rep.Borrowers)),
		TotalBorrowers:   rep.TotalBorrowers,
		WithOpenLoans:    rep.WithOpenLoans,
		WithOverdueLoans: rep.WithOverdueLoans,
		OutstandingFines: rep.OutstandingFines,
	}
	for _, l := range rep.Borrowers {
		overdue := l.OverdueLoans
		if overdue == nil {
			overdue = []int64{}
		}
		resp.Borrowers = append(resp.Borrowers, BorrowerLineResponse{
			Borrower:     borrowerToResponse(l.Borrower),
			OverdueLoans: overdue,
		})
	}
	return resp
}

func (h *LendingHandler) transactionsToResponse(rep lending.TransactionsReport) TransactionsReportResponse {
	resp := TransactionsReportResponse{
		AsOf:          lending.FormatDate(rep.AsOf),
		Lines:         make([]TransactionLineResponse, 0, len(rep.Lines)),
		Open:          rep.Open,
		Returned:      rep.Returned,
		Overdue:       rep.Overdue,
		FinesAssessed: rep.FinesAssessed,
	}
	for _, l := range rep.Lines {
		resp.Lines = append(resp.Lines, TransactionLineResponse{
			Loan:         h.loanToResponse(l.Loan),
			ItemTitle:    l.ItemTitle,
			BorrowerName: l.BorrowerName,
			Status:       l.Status,
		})
	}
	return resp
}

func (h *LendingHandler) overdueToResponse(rep lending.OverdueReport) OverdueReportResponse {
	resp := OverdueReportResponse{
		AsOf:                lending.FormatDate(rep.AsOf),
		Lines:               make([]OverdueLineResponse, 0, len(rep.Lines)),
		TotalPotentialFines: rep.TotalPotentialFines,
	}
	for _, l := range rep.Lines {
		resp.Lines = append(resp.Lines, OverdueLineResponse{
			Loan:          h.loanToResponse(l.Loan),
			ItemTitle:     l.ItemTitle,
			BorrowerName:  l.BorrowerName,
			DaysOverdue:   l.DaysOverdue,
			PotentialFine: l.PotentialFine,
		})
	}
	return resp
}
