package http

import (
	"fmt"
	"net/http"
)

type ServerConfig struct {
	Port int
}

func NewServer(config ServerConfig, h *LendingHandler) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", ping)

	mux.HandleFunc("/items", h.items)
	mux.HandleFunc("/items/search", h.searchItems)
	mux.HandleFunc("/items/{id}", h.itemByID)

	mux.HandleFunc("/borrowers", h.borrowers)
	mux.HandleFunc("/borrowers/search", h.searchBorrowers)
	mux.HandleFunc("/borrowers/{id}", h.borrowerByID)
	mux.HandleFunc("/borrowers/{id}/fines", h.payFine)
	mux.HandleFunc("/borrowers/{id}/loans", h.borrowerLoans)

	mux.HandleFunc("/loans", h.loans)
	mux.HandleFunc("/loans/return", h.returnLoan)
	mux.HandleFunc("/loans/overdue", h.overdueLoans)
	mux.HandleFunc("/loans/{key}", h.loanByKey)

	mux.HandleFunc("/reports/{name}", h.report)

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: mux,
	}
	return &server
}

/* Tests the http server connection.  */
func ping(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
