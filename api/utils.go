package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"hermannm.dev/devlog/log"
	"hermannm.dev/gridbase/attachments"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/wrap"
)

func sendJSON(res http.ResponseWriter, value any) {
	sendJSONWithStatus(res, http.StatusOK, value)
}

func sendJSONWithStatus(res http.ResponseWriter, statusCode int, value any) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(statusCode)

	if err := json.NewEncoder(res).Encode(value); err != nil {
		log.ErrorCause(err, "failed to serialize response")
	}
}

func sendClientError(res http.ResponseWriter, err error, message string) {
	sendErrorWithStatus(res, http.StatusBadRequest, err, message)
}

func sendServerError(res http.ResponseWriter, err error, message string) {
	if err != nil {
		log.ErrorCause(err, message)
	}
	sendErrorWithStatus(res, http.StatusInternalServerError, err, message)
}

// Picks the response status from the error: 400 for invalid input, 404 for missing entities and
// 500 otherwise.
func sendError(res http.ResponseWriter, err error, message string) {
	switch {
	case db.IsClientError(err), attachments.IsClientError(err):
		sendClientError(res, err, message)
	case db.IsNotFoundError(err), errors.Is(err, attachments.ErrFileNotFound):
		sendErrorWithStatus(res, http.StatusNotFound, err, message)
	default:
		sendServerError(res, err, message)
	}
}

func sendErrorWithStatus(res http.ResponseWriter, statusCode int, err error, message string) {
	if err != nil {
		if message == "" {
			message = err.Error()
		} else {
			message = wrap.Error(err, message).Error()
		}
	}

	if statusCode < http.StatusInternalServerError {
		log.Debug("sending client error", slog.Int("status", statusCode), slog.String("error", message))
	}
	http.Error(res, message, statusCode)
}

func decodeBody(req *http.Request, target any) error {
	if err := json.NewDecoder(req.Body).Decode(target); err != nil {
		return wrap.Error(err, "failed to parse request body")
	}
	return nil
}
