package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/me/jobtracker/pkg/model"
)

// handleCommand decodes a command body and writes the bare command response.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, reqID, http.StatusRequestEntityTooLarge, &model.APIError{
				Code:    model.ErrValidation,
				Message: "request body too large",
			})
			return
		}
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "read body: " + err.Error(),
		})
		return
	}

	resp, err := s.dispatcher.HandleRequest(body)
	if err != nil {
		var perr *model.ProtocolError
		if errors.As(err, &perr) {
			s.logger.Info("rejected command", "reason", perr.Reason, "request_id", reqID)
			writeBare(w, http.StatusBadRequest, model.StatusResponse{
				Status: model.StatusInvalidRequest,
				Error:  perr.Reason,
			})
			return
		}
		s.logger.Error("handle command", "error", err, "request_id", reqID)
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code:    model.ErrInternal,
			Message: err.Error(),
		})
		return
	}

	writeBare(w, http.StatusOK, resp)
}
