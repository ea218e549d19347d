package server

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/easygithub/easygithub/pkg/errors"
)

var (
	errNotFoundRoute   = errors.New(errors.ErrCodeNotFound, "route not found")
	errStoreDisabled   = errors.New(errors.ErrCodeUnsupported, "diagram storage is not configured")
	errMissingRepoURL  = errors.New(errors.ErrCodeInvalidInput, "repo_url is required")
	errInvalidJSONBody = errors.New(errors.ErrCodeInvalidInput, "request body must be a JSON object")
)

type errorBody struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

func toAPIError(err error) (apiError, int) {
	code := errors.GetCode(err)
	if code == "" {
		return apiError{Code: errors.ErrCodeInternal, Message: "internal error"}, http.StatusInternalServerError
	}
	return apiError{Code: code, Message: errors.UserMessage(err)}, errors.HTTPStatus(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, logger *log.Logger, err error) {
	body, status := toAPIError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", r.URL.Path, "err", err, "request_id", middleware.GetReqID(r.Context()))
	} else {
		logger.Debug("request rejected", "path", r.URL.Path, "code", body.Code, "err", err)
	}
	writeJSON(w, status, errorBody{Error: body})
}
