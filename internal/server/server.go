// Package server exposes the outreach engine over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coachreach/internal/ack"
	"coachreach/internal/campaign"
	"coachreach/internal/common/logger"
	"coachreach/internal/common/validation"
	"coachreach/internal/models"
)

// CampaignService is the campaign manager surface the handlers call.
type CampaignService interface {
	Initiate(ctx context.Context, session models.Session, eventID string, recipientIDs []string, cfg models.CampaignConfig) (*campaign.InitiateResult, error)
	Status(ctx context.Context, eventID string) (*campaign.CampaignStatus, error)
	EscalateNow(ctx context.Context, session models.Session, eventID, recipientID string) error
	CampaignForEvent(ctx context.Context, eventID string) (*models.OutreachCampaign, error)
}

// ReplyService correlates inbound replies.
type ReplyService interface {
	Correlate(ctx context.Context, campaignID, recipientID string, reply models.InboundReply) (*ack.Result, error)
	ResolveAddress(ctx context.Context, channel models.Channel, address string) (*models.Invitation, error)
}

// DeliveryService applies gateway delivery callbacks.
type DeliveryService interface {
	ConfirmDelivery(ctx context.Context, providerMessageID string, status models.DeliveryStatus, errorDetail string) (*models.DeliveryRecord, error)
}

// CandidateDirectory serves the coach matching endpoint.
type CandidateDirectory interface {
	CandidatesForEvent(ctx context.Context, eventID string) ([]models.Candidate, error)
	EventProfile(ctx context.Context, eventID string) (*models.EventProfile, error)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(ctx context.Context) error

// Server wires the HTTP routes to the engine's services.
type Server struct {
	campaigns  CampaignService
	replies    ReplyService
	deliveries DeliveryService
	directory  CandidateDirectory
	health     map[string]HealthChecker
	logger     logger.Logger

	inboundSchema  *validation.Schema
	deliverySchema *validation.Schema
}

func New(campaigns CampaignService, replies ReplyService, deliveries DeliveryService, directory CandidateDirectory, health map[string]HealthChecker, log logger.Logger) *Server {
	return &Server{
		campaigns:      campaigns,
		replies:        replies,
		deliveries:     deliveries,
		directory:      directory,
		health:         health,
		logger:         log.WithFields(map[string]interface{}{"component": "http"}),
		inboundSchema:  validation.MustCompile(validation.InboundReplySchema),
		deliverySchema: validation.MustCompile(validation.DeliveryCallbackSchema),
	}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.requestLogger)
	r.Use(sessionFromHeaders)

	r.Route("/api", func(r chi.Router) {
		r.Post("/outreach", s.handleInitiate)
		r.Route("/outreach/{eventID}", func(r chi.Router) {
			r.Post("/responses", s.handleResponse)
			r.Get("/status", s.handleStatus)
			r.Post("/recipients/{recipientID}/escalate", s.handleEscalate)
		})
		r.Get("/events/{eventID}/candidates", s.handleCandidates)
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/inbound", s.handleInboundWebhook)
		r.Post("/delivery", s.handleDeliveryWebhook)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.handleHealth)
	return r
}

// requestLogger logs one line per request with status and latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request", map[string]interface{}{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"durationMs": time.Since(started).Milliseconds(),
			"requestId": middleware.GetReqID(r.Context()),
		})
	})
}
