package api

import (
	"errors"
	"net/http"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/spec"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error    string   `json:"error"`
	Code     string   `json:"code,omitempty"`
	Category string   `json:"category,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	if domErr.Code == core.CodeRunLimitReached {
		return http.StatusTooManyRequests, true
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusUnprocessableEntity, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatConflict, core.ErrCatState:
		return http.StatusConflict, true
	case core.ErrCatRateLimit:
		return http.StatusTooManyRequests, true
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout, true
	default:
		return http.StatusInternalServerError, true
	}
}

// respondDomainError maps err to a status code and a structured body.
// Validation problems are listed one per entry.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	status, ok := httpStatusForDomainError(err)
	if !ok {
		s.logger.Error("unexpected API error", "error", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	body := ErrorResponse{Error: err.Error()}
	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		body.Code = domErr.Code
		body.Category = string(domErr.Category)
	}
	var problems spec.Problems
	if errors.As(err, &problems) {
		for _, p := range problems {
			body.Problems = append(body.Problems, p.Message)
		}
	}
	s.respondJSON(w, status, body)
}
