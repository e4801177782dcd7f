package server

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"coachreach/internal/ack"
	"coachreach/internal/common/errors"
	"coachreach/internal/match"
	"coachreach/internal/models"
)

type initiateRequest struct {
	EventID      string                `json:"eventId"`
	RecipientIDs []string              `json:"recipientIds"`
	Config       models.CampaignConfig `json:"config"`
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errors.NewInvalidCampaignConfigError("malformed request body"))
		return
	}
	result, err := s.campaigns.Initiate(r.Context(), SessionFrom(r.Context()), req.EventID, req.RecipientIDs, req.Config)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

type responseRequest struct {
	RecipientID string `json:"recipientId"`
	Response    string `json:"response"`
	RawText     string `json:"rawText,omitempty"`
	Token       string `json:"token,omitempty"`
}

func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	var req responseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errors.NewWebhookValidationFailedError("malformed request body"))
		return
	}

	campaign, err := s.campaigns.CampaignForEvent(r.Context(), eventID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	reply := models.InboundReply{
		Response: models.ReplyResponse(req.Response),
		RawText:  req.RawText,
		Token:    req.Token,
	}
	result, err := s.replies.Correlate(r.Context(), campaign.ID, req.RecipientID, reply)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.campaigns.Status(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	recipientID := chi.URLParam(r, "recipientID")
	if err := s.campaigns.EscalateNow(r.Context(), SessionFrom(r.Context()), eventID, recipientID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inboundWebhook struct {
	Address       string `json:"address"`
	Channel       string `json:"channel"`
	RawText       string `json:"rawText"`
	ProviderToken string `json:"providerToken,omitempty"`
}

// handleInboundWebhook receives replies from the channel gateways. It always
// answers 202 for valid payloads so providers do not retry replies the
// engine deliberately dropped.
func (s *Server) handleInboundWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, errors.NewWebhookValidationFailedError("unreadable body"))
		return
	}
	if err := s.inboundSchema.Validate(body); err != nil {
		s.writeError(w, r, errors.NewWebhookValidationFailedError(err.Error()))
		return
	}
	var payload inboundWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, r, errors.NewWebhookValidationFailedError("malformed payload"))
		return
	}
	channel, err := models.ParseChannel(payload.Channel)
	if err != nil {
		s.writeError(w, r, errors.NewWebhookValidationFailedError(err.Error()))
		return
	}

	inv, err := s.replies.ResolveAddress(r.Context(), channel, payload.Address)
	if err != nil {
		// An unmatched reply is deliberately dropped; answering 202 keeps
		// the provider from retrying it.
		if code, ok := errors.CodeOf(err); ok && code == errors.ErrCodeReplyUnmatched {
			s.writeJSON(w, http.StatusAccepted, map[string]string{"result": "dropped"})
			return
		}
		s.writeError(w, r, err)
		return
	}

	reply := models.InboundReply{
		Response: ack.InterpretReply(payload.RawText),
		RawText:  payload.RawText,
		Token:    payload.ProviderToken,
	}
	if _, err := s.replies.Correlate(r.Context(), inv.CampaignID, inv.RecipientID, reply); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"result": "correlated"})
}

type deliveryWebhook struct {
	ProviderMessageID string `json:"providerMessageId"`
	Status            string `json:"status"`
	ErrorDetail       string `json:"errorDetail,omitempty"`
}

func (s *Server) handleDeliveryWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, errors.NewWebhookValidationFailedError("unreadable body"))
		return
	}
	if err := s.deliverySchema.Validate(body); err != nil {
		s.writeError(w, r, errors.NewWebhookValidationFailedError(err.Error()))
		return
	}
	var payload deliveryWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, r, errors.NewWebhookValidationFailedError("malformed payload"))
		return
	}

	record, err := s.deliveries.ConfirmDelivery(r.Context(), payload.ProviderMessageID,
		models.DeliveryStatus(payload.Status), payload.ErrorDetail)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, record)
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	event, err := s.directory.EventProfile(r.Context(), eventID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	candidates, err := s.directory.CandidatesForEvent(r.Context(), eventID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"eventId":    eventID,
		"candidates": match.Rank(candidates, *event),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.health))
	for name, check := range s.health {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	s.writeJSON(w, status, map[string]interface{}{
		"status": http.StatusText(status),
		"checks": checks,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("response encoding failed", nil)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	payload := map[string]interface{}{"error": "internal error"}

	var stdErr *errors.StandardError
	if stderrors.As(err, &stdErr) {
		status = httpStatusFor(stdErr.Code)
		payload = map[string]interface{}{"error": stdErr.Message, "code": string(stdErr.Code)}
		if stdErr.Details != "" {
			payload["details"] = stdErr.Details
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	}
	s.writeJSON(w, status, payload)
}

func httpStatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeInvalidCampaignConfig:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeCampaignActive, errors.ErrCodeInvitationTerminal:
		return http.StatusConflict
	case errors.ErrCodeCampaignNotFound, errors.ErrCodeEventNotFound,
		errors.ErrCodeInvitationNotFound, errors.ErrCodeRecipientNotFound,
		errors.ErrCodeDeliveryRecordNotFound:
		return http.StatusNotFound
	case errors.ErrCodeWebhookValidationFailed, errors.ErrCodeInvalidChannel:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
