package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lending-service/cmd/api/lending"
	"github.com/matryer/is"
)

var loan = lending.LoanTransaction{ID: 7, ItemID: "X1", BorrowerID: "B1", Fine: 150}

func TestFineAssessed(t *testing.T) {
	t.Run("posts the fine to the topic", func(t *testing.T) {
		is := is.New(t)

		var gotPath, gotBody, gotTitle string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			gotPath, gotBody, gotTitle = r.URL.Path, string(body), r.Header.Get("Title")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		ntfy := NewNtfy(true, time.Second, srv.URL+"/lending_test/", srv.Client(), nil)
		is.NoErr(ntfy.FineAssessed(context.Background(), loan))

		is.Equal(gotPath, "/lending_test/Fine_assessed")
		is.Equal(gotBody, "Fine assessed:\nBorrower: B1\nItem: X1\nAmount: 1.50")
		is.Equal(gotTitle, "Fine assessed")
	})

	t.Run("reports a non 200 answer", func(t *testing.T) {
		is := is.New(t)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		ntfy := NewNtfy(true, time.Second, srv.URL, srv.Client(), nil)
		err := ntfy.FineAssessed(context.Background(), loan)

		var failed lending.ErrNotificationFailed
		is.True(errors.As(err, &failed))
		is.Equal(failed, lending.NewErrNotificationFailed(http.StatusTooManyRequests))
	})

	t.Run("expected context timeout error", func(t *testing.T) {
		is := is.New(t)

		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		ntfy := NewNtfy(true, 5*time.Millisecond, srv.URL, srv.Client(), nil)
		err := ntfy.FineAssessed(context.Background(), loan)
		is.True(errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("does nothing when disabled", func(t *testing.T) {
		is := is.New(t)

		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer srv.Close()

		ntfy := NewNtfy(false, time.Second, srv.URL, srv.Client(), nil)
		is.NoErr(ntfy.FineAssessed(context.Background(), loan))
		is.True(!called)
	})
}
