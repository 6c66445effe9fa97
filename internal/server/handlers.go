package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jonathan/feed-copilot/internal/llm"
	"github.com/jonathan/feed-copilot/internal/outreach"
	"go.uber.org/zap"
)

// maxTitlesBytes bounds the profile text accepted by /messages.
const maxTitlesBytes = 4 << 10

// handleMessages generates a first message for the posted profile titles.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req outreach.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTitlesBytes*2)).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req.Profiles = strings.TrimSpace(req.Profiles)

	if err := s.validate.Struct(req); err != nil {
		verr := validationError(err)
		s.errorResponse(w, HTTPStatus(verr), verr.Error())
		return
	}
	if len(req.Profiles) > maxTitlesBytes {
		verr := &ErrValidation{Field: "Profiles", Message: "too long"}
		s.errorResponse(w, HTTPStatus(verr), verr.Error())
		return
	}

	message, err := s.generate(r.Context(), req.Profiles)
	if err != nil {
		s.logger.Error("message generation failed", zap.Error(err))
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, outreach.Response{Messages: message})
}

// generate returns the cleaned model output, possibly empty.
func (s *Server) generate(ctx context.Context, titles string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.generator.GenerateContent(ctx, llm.BuildOutreachPrompt(titles), llm.TierLite)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &ErrGeneration{Cause: err}
	}
	return llm.CleanText(text), nil
}
