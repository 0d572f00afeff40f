package http

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"sync"
	"time"

	"github.com/lending-service/cmd/api/lending"
	"go.uber.org/zap"
)

type CatalogAPI interface {
	Add(ctx context.Context, req lending.CreateItemRequest) (lending.Item, error)
	Find(ctx context.Context, id string) (lending.Item, error)
	List(ctx context.Context) iter.Seq2[lending.Item, error]
	Search(ctx context.Context, query string) iter.Seq2[lending.Item, error]
	Update(ctx context.Context, id string, upd lending.ItemUpdate) (lending.Item, error)
	Remove(ctx context.Context, id string) error
}

type RegistryAPI interface {
	Add(ctx context.Context, req lending.CreateBorrowerRequest) (lending.Borrower, error)
	Find(ctx context.Context, id string) (lending.Borrower, error)
	List(ctx context.Context) iter.Seq2[lending.Borrower, error]
	Search(ctx context.Context, query string) iter.Seq2[lending.Borrower, error]
	Update(ctx context.Context, id string, upd lending.BorrowerUpdate) (lending.Borrower, error)
	Remove(ctx context.Context, id string) error
}

type LedgerAPI interface {
	Issue(ctx context.Context, borrowerID, itemID string) (lending.LoanTransaction, error)
	ReturnItem(ctx context.Context, borrowerID, itemID string) (lending.LoanTransaction, error)
	PayFine(ctx context.Context, borrowerID string, amount lending.Money) (lending.Borrower, error)
	GetLoan(ctx context.Context, key string) (lending.LoanTransaction, error)
	Loans(ctx context.Context) iter.Seq2[lending.LoanTransaction, error]
	History(ctx context.Context, borrowerID string) iter.Seq2[lending.LoanTransaction, error]
	ListOverdue(ctx context.Context) iter.Seq2[lending.LoanTransaction, error]
	IsOverdue(loan lending.LoanTransaction) bool
}

type ReportsAPI interface {
	Inventory(ctx context.Context) (lending.InventoryReport, error)
	Borrowers(ctx context.Context) (lending.BorrowersReport, error)
	Transactions(ctx context.Context) (lending.TransactionsReport, error)
	Overdue(ctx context.Context) (lending.OverdueReport, error)
	TopBorrowed(ctx context.Context, n int) ([]lending.TopBorrowedLine, error)
	Summary(ctx context.Context) (lending.Summary, error)
}

//go:generate mockgen -destination=mocks/mock_notifier.go -package=mocks github.com/lending-service/cmd/api/http Notifier
type Notifier interface {
	FineAssessed(ctx context.Context, loan lending.LoanTransaction) error
}

type Services struct {
	Catalog  CatalogAPI
	Registry RegistryAPI
	Ledger   LedgerAPI
	Reports  ReportsAPI
	Notifier Notifier
}

type LendingHandler struct {
	catalog        CatalogAPI
	registry       RegistryAPI
	ledger         LedgerAPI
	reports        ReportsAPI
	notifier       Notifier
	logger         *zap.Logger
	requestTimeout time.Duration
	notifications  sync.WaitGroup
}

func NewLendingHandler(s Services, logger *zap.Logger, requestTimeout time.Duration) *LendingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LendingHandler{
		catalog:        s.Catalog,
		registry:       s.Registry,
		ledger:         s.Ledger,
		reports:        s.Reports,
		notifier:       s.Notifier,
		logger:         logger,
		requestTimeout: requestTimeout,
	}
}

// Wait blocks until every notification already started has finished.
func (h *LendingHandler) Wait() {
	h.notifications.Wait()
}

func (h *LendingHandler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.requestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.requestTimeout)
}

/* Sends the fine notice in the background, out of the request's lifetime. */
func (h *LendingHandler) notifyFine(loan lending.LoanTransaction) {
	if h.notifier == nil || loan.Fine <= 0 {
		return
	}
	h.notifications.Add(1)
	go func() {
		defer h.notifications.Done()
		if err := h.notifier.FineAssessed(context.Background(), loan); err != nil {
			h.logger.Warn("fine notification failed", zap.Int64("loan_id", loan.ID), zap.Error(err))
		}
	}()
}

/* Maps an error kind to the HTTP status sent back. */
func statusFor(kind lending.Kind) int {
	switch kind {
	case lending.KindNotFound:
		return http.StatusNotFound
	case lending.KindDuplicateKey, lending.KindUnavailable, lending.KindConflict:
		return http.StatusConflict
	case lending.KindLimitExceeded, lending.KindInvalidState:
		return http.StatusUnprocessableEntity
	case lending.KindInvalidArgument:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

/* Writes err back to the client. Domain rejections carry their ErrResponse, anything else is a 500. */
func (h *LendingHandler) handleError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.Warn("request timed out", zap.Error(err))
		responseJSON(w, http.StatusGatewayTimeout, lending.ErrResponseRequestTimeout)
		return
	}
	var resp lending.ErrResponse
	if !errors.As(err, &resp) || resp.Kind() == lending.KindInternal {
		h.logger.Error("request failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.logger.Debug("request rejected", zap.Error(err), zap.Stringer("kind", resp.Kind()))
	responseJSON(w, statusFor(resp.Kind()), resp)
}

/* Reads the JSON body into entry, answering 400 itself when it cannot. */
func (h *LendingHandler) decodeEntry(w http.ResponseWriter, r *http.Request, entry any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(entry); err != nil {
		h.logger.Debug("invalid json entry", zap.Error(err))
		responseJSON(w, http.StatusBadRequest, lending.ErrResponseEntryInvalidJSON.WithDetail("%s", err.Error()))
		return false
	}
	return true
}

/*Writes a JSON response into a http.ResponseWriter. */
func responseJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("encoding response", zap.Error(err))
	}
}

// collectResponses drains seq, converting every element with toResponse.
func collectResponses[T, R any](seq iter.Seq2[T, error], toResponse func(T) R) ([]R, error) {
	out := []R{}
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, toResponse(v))
	}
	return out, nil
}
