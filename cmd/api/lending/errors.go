package lending

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so outer layers can map it without string matching.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindDuplicateKey
	KindUnavailable
	KindLimitExceeded
	KindConflict
	KindInvalidState
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindDuplicateKey:
		return "DuplicateKey"
	case KindUnavailable:
		return "Unavailable"
	case KindLimitExceeded:
		return "LimitExceeded"
	case KindConflict:
		return "Conflict"
	case KindInvalidState:
		return "InvalidState"
	case KindInvalidArgument:
		return "InvalidArgument"
	}
	return "Internal"
}

type ErrResponse struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
	kind    Kind
}

func (e ErrResponse) Error() string {
	return e.Message
}

// Is matches on Code so a response carrying extra detail still matches its sentinel.
func (e ErrResponse) Is(target error) bool {
	t, ok := target.(ErrResponse)
	return ok && t.Code == e.Code
}

func (e ErrResponse) Kind() Kind {
	return e.kind
}

// WithDetail returns a copy of e whose message ends with detail.
func (e ErrResponse) WithDetail(format string, args ...any) ErrResponse {
	e.Message = e.Message + ": " + fmt.Sprintf(format, args...)
	return e
}

var ErrResponseInvalidArgument = ErrResponse{100, "invalid argument", KindInvalidArgument}
var ErrResponseItemNotFound = ErrResponse{101, "item not found", KindNotFound}
var ErrResponseBorrowerNotFound = ErrResponse{102, "borrower not found", KindNotFound}
var ErrResponseLoanNotFound = ErrResponse{103, "loan not found", KindNotFound}
var ErrResponseDuplicateItem = ErrResponse{104, "an item with this id already exists", KindDuplicateKey}
var ErrResponseDuplicateBorrower = ErrResponse{105, "a borrower with this id already exists", KindDuplicateKey}
var ErrResponseUnavailable = ErrResponse{106, "no copies of this item are available", KindUnavailable}
var ErrResponseLimitExceeded = ErrResponse{107, "borrower has reached the open loan limit", KindLimitExceeded}
var ErrResponseItemHasOpenLoans = ErrResponse{108, "item has open loans", KindConflict}
var ErrResponseBorrowerHasOpenLoans = ErrResponse{109, "borrower has open loans", KindConflict}
var ErrResponseAlreadyBorrowed = ErrResponse{110, "borrower already holds an open loan for this item", KindConflict}
var ErrResponseCopiesBelowOpenLoans = ErrResponse{111, "total copies cannot drop below the number of open loans", KindInvalidState}
var ErrResponsePaymentExceedsBalance = ErrResponse{112, "payment exceeds the outstanding fine balance", KindInvalidState}
var ErrResponseInconsistentSnapshot = ErrResponse{113, "inconsistent snapshot", KindInvalidState}
var ErrResponseEntryInvalidJSON = ErrResponse{114, "invalid json request.", KindInvalidArgument}
var ErrResponseRequestTimeout = ErrResponse{115, "context deadline exceeded", KindInternal}

// KindOf reports the Kind carried by err, KindInternal when err is not an ErrResponse.
func KindOf(err error) Kind {
	var resp ErrResponse
	if errors.As(err, &resp) {
		return resp.kind
	}
	return KindInternal
}

type ErrNotificationFailed struct {
	statusCode int
}

func (e ErrNotificationFailed) Error() string {
	return fmt.Sprintf("ntfy wrong response - want: 200 OK, got: %d", e.statusCode)
}

func NewErrNotificationFailed(statusCode int) ErrNotificationFailed {
	return ErrNotificationFailed{statusCode: statusCode}
}
