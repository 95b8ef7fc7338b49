package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"membership-access/internal/domain"
	"membership-access/internal/infra/logging"
)

// Error codes returned in the "code" field of JSON error bodies.
const (
	codeValidation     = "VALIDATION_ERROR"
	codeUnauthorized   = "UNAUTHORIZED"
	codeIneligible     = "INELIGIBLE"
	codeNotFound       = "NOT_FOUND"
	codeNotActive      = "NOT_ACTIVE"
	codeDeadlinePassed = "DEADLINE_PASSED"
	codeDuplicateVote  = "DUPLICATE_VOTE"
	codeAlreadyUsed    = "ALREADY_USED"
	codeExpired        = "EXPIRED"
	codeConflict       = "CONFLICT"
	codeRateLimited    = "RATE_LIMITED"
	codeInternal       = "INTERNAL"
)

// statusFor maps a use case error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, domain.ErrIneligibleVoter):
		return http.StatusForbidden, codeIneligible
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, domain.ErrProposalNotActive):
		return http.StatusBadRequest, codeNotActive
	case errors.Is(err, domain.ErrDeadlinePassed):
		return http.StatusBadRequest, codeDeadlinePassed
	case errors.Is(err, domain.ErrDuplicateVote):
		return http.StatusBadRequest, codeDuplicateVote
	case errors.Is(err, domain.ErrTokenAlreadyUsed):
		return http.StatusConflict, codeAlreadyUsed
	case errors.Is(err, domain.ErrTokenExpired):
		return http.StatusGone, codeExpired
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, codeConflict
	}
	return http.StatusInternalServerError, codeInternal
}

type errorBody struct {
	Error  string   `json:"error"`
	Code   string   `json:"code"`
	Fields []string `json:"fields,omitempty"`
}

// errorMessage never exposes internal error text.
func errorMessage(err error, status int) string {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr) && len(verr.Fields) > 0:
		return "Missing or invalid fields: " + strings.Join(verr.Fields, ", ")
	case status == http.StatusInternalServerError:
		return "internal error"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as JSON and logs 5xx with the request's trace id.
func writeError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.With(r.Context(), logger).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	body := errorBody{Error: errorMessage(err, status), Code: code}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	writeJSON(w, status, body)
}

const maxBodyBytes = 1 << 20

// decodeJSON reads one JSON object into dst. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("body")
		}
		var unknown string
		if msg := err.Error(); strings.HasPrefix(msg, "json: unknown field ") {
			unknown = strings.Trim(strings.TrimPrefix(msg, "json: unknown field "), `"`)
			return domain.NewValidationError(unknown)
		}
		return domain.NewValidationError("body")
	}
	return nil
}
