package httpapi

import (
	"errors"
	"net/http"

	"github.com/hashdriveorg/hashdrive-go/auth"
	"github.com/hashdriveorg/hashdrive-go/drive"
	"github.com/hashdriveorg/hashdrive-go/ledger"
	"github.com/hashdriveorg/hashdrive-go/storage"
)

// Error codes of the error body.
const (
	CodeValidation    = "validation"
	CodeAuth          = "auth"
	CodeAuthorization = "authorization"
	CodeNotFound      = "not_found"
	CodeConflict      = "conflict"
	CodeTooLarge      = "too_large"
	CodeRateLimited   = "rate_limited"
	CodeIntegrity     = "integrity"
	CodeLedger        = "ledger"
	CodeStorage       = "storage"
	CodeInternal      = "internal"
)

var (
	errBadIndex    = errors.New("httpapi: index must be a non-negative integer")
	errBadBody     = errors.New("httpapi: malformed request body")
	errNoFile      = errors.New("httpapi: multipart field \"file\" is required")
	errNoFilename  = errors.New("httpapi: filename is required")
	errNotGranting = errors.New("httpapi: wallet may not grant access to this file")
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps err to a status, code and client-safe message. Messages of
// server-side failures are fixed strings so ledger and storage internals
// never reach the caller.
func classify(err error) (int, string, string) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig), errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, CodeTooLarge, "upload exceeds the size limit"

	case errors.Is(err, drive.ErrMissingIdentity),
		errors.Is(err, auth.ErrInvalidWallet),
		errors.Is(err, auth.ErrMalformedSignature),
		errors.Is(err, storage.ErrInvalidName),
		errors.Is(err, errBadIndex),
		errors.Is(err, errBadBody),
		errors.Is(err, errNoFile),
		errors.Is(err, errNoFilename):
		return http.StatusBadRequest, CodeValidation, err.Error()

	case errors.Is(err, storage.ErrAborted):
		return http.StatusBadRequest, CodeValidation, "upload body could not be read"

	case errors.Is(err, auth.ErrUnknownChallenge),
		errors.Is(err, auth.ErrChallengeExpired),
		errors.Is(err, auth.ErrInvalidSignature):
		return http.StatusUnauthorized, CodeAuth, err.Error()

	case errors.Is(err, drive.ErrUnauthorized), errors.Is(err, errNotGranting):
		return http.StatusForbidden, CodeAuthorization, err.Error()

	case errors.Is(err, drive.ErrNotFound),
		errors.Is(err, ledger.ErrIndexOutOfRange),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, "file not found"

	case errors.Is(err, storage.ErrExists):
		return http.StatusConflict, CodeConflict, "a file with this name already exists"

	case errors.Is(err, drive.ErrIntegrityViolation):
		return http.StatusInternalServerError, CodeIntegrity, "stored file failed its integrity check"

	case errors.Is(err, ledger.ErrUnconfirmed):
		return http.StatusGatewayTimeout, CodeLedger, "ledger write was not confirmed in time"

	case errors.Is(err, ledger.ErrConnectionFailed),
		errors.Is(err, ledger.ErrRPC),
		errors.Is(err, ledger.ErrInvalidResponse),
		errors.Is(err, ledger.ErrReverted),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrGasCapExceeded),
		errors.Is(err, ledger.ErrNonceRejected),
		errors.Is(err, ledger.ErrReadOnly):
		return http.StatusBadGateway, CodeLedger, "ledger request failed"

	case errors.Is(err, storage.ErrIOFailure):
		return http.StatusInternalServerError, CodeStorage, "storage failure"

	default:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
}
