package campaign

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"coachreach/internal/common/errors"
	"coachreach/internal/common/logger"
	"coachreach/internal/common/metrics"
	"coachreach/internal/ledger"
	"coachreach/internal/models"
	"coachreach/internal/template"
)

// Context keys every campaign template may reference. Initiate rejects
// templates that use anything else, so rendering at send time can only fail
// on missing per-recipient data.
var templateContextKeys = []string{"recipientName", "eventName", "eventDate", "eventLocation", "responseLink"}

const (
	templateIDInitial  = "initial"
	templateIDReminder = "reminder"
)

// WorkflowStore is the persistence surface the manager drives.
type WorkflowStore interface {
	CreateCampaign(ctx context.Context, campaign models.OutreachCampaign) error
	ActiveCampaignByEvent(ctx context.Context, eventID string) (*models.OutreachCampaign, error)
	LatestCampaignByEvent(ctx context.Context, eventID string) (*models.OutreachCampaign, error)
	OpenCampaigns(ctx context.Context) ([]models.OutreachCampaign, error)
	CreateInvitation(ctx context.Context, inv models.Invitation) error
	Invitation(ctx context.Context, campaignID, recipientID string) (*models.Invitation, error)
	InvitationsForCampaign(ctx context.Context, campaignID string) ([]models.Invitation, error)
	UpdateInvitation(ctx context.Context, inv *models.Invitation) error
}

// Directory resolves recipients and event attributes.
type Directory interface {
	Recipient(ctx context.Context, id string) (*models.Recipient, error)
	Recipients(ctx context.Context, ids []string) ([]models.Recipient, error)
	EventProfile(ctx context.Context, eventID string) (*models.EventProfile, error)
}

// Dispatcher sends a rendered message to a set of recipients.
type Dispatcher interface {
	SendBatch(ctx context.Context, eventID string, msg models.Message, recipients []models.Recipient) ([]models.DeliveryRecord, error)
}

// FailureCounter exposes the ledger's per-campaign failure count.
type FailureCounter interface {
	FailureCount(ctx context.Context, campaignID string) (int, error)
}

// EscalationAuditor receives audit documents when invitations escalate.
type EscalationAuditor interface {
	IndexEscalation(ctx context.Context, audit ledger.EscalationAudit)
}

// SkippedRecipient reports a recipient excluded from the initial dispatch.
type SkippedRecipient struct {
	RecipientID string `json:"recipientId"`
	Reason      string `json:"reason"`
}

// InitiateResult is what Initiate hands back to the caller.
type InitiateResult struct {
	CampaignID string                  `json:"campaignId"`
	Dispatched []models.DeliveryRecord `json:"dispatched"`
	Skipped    []SkippedRecipient      `json:"skipped,omitempty"`
}

// CampaignStatus is the human-visible view of a campaign.
type CampaignStatus struct {
	CampaignID       string                    `json:"campaignId"`
	EventID          string                    `json:"eventId"`
	Invitations      []models.InvitationStatus `json:"invitations"`
	FailedDeliveries int                       `json:"failedDeliveries"`
}

// Manager runs outreach campaigns: initiation, reminder and handoff timing,
// and administrative escalation.
type Manager struct {
	store       WorkflowStore
	directory   Directory
	dispatcher  Dispatcher
	failures    FailureCounter
	auditor     EscalationAuditor
	responseURL string
	logger      logger.Logger
}

// NewManager wires the campaign workflow. responseBaseURL is the public
// address recipients use to answer; every dispatched message carries a
// response link built on it.
func NewManager(store WorkflowStore, dir Directory, dispatcher Dispatcher, failures FailureCounter, auditor EscalationAuditor, responseBaseURL string, log logger.Logger) *Manager {
	return &Manager{
		store:       store,
		directory:   dir,
		dispatcher:  dispatcher,
		failures:    failures,
		auditor:     auditor,
		responseURL: strings.TrimRight(responseBaseURL, "/"),
		logger:      log.WithFields(map[string]interface{}{"component": "campaign"}),
	}
}

// Initiate validates the config, creates the campaign with one pending
// invitation per recipient, and dispatches the initial template. A recipient
// whose message fails to render is skipped and reported; the rest proceed.
func (m *Manager) Initiate(ctx context.Context, session models.Session, eventID string, recipientIDs []string, cfg models.CampaignConfig) (*InitiateResult, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if len(recipientIDs) == 0 {
		return nil, errors.NewInvalidCampaignConfigError("no recipients")
	}

	if existing, err := m.store.ActiveCampaignByEvent(ctx, eventID); err == nil && existing != nil {
		return nil, errors.NewCampaignActiveError(eventID)
	} else if err != nil {
		if code, ok := errors.CodeOf(err); !ok || code != errors.ErrCodeCampaignNotFound {
			return nil, err
		}
	}

	event, err := m.directory.EventProfile(ctx, eventID)
	if err != nil {
		return nil, err
	}
	recipients, err := m.directory.Recipients(ctx, recipientIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	campaign := models.OutreachCampaign{
		ID:        uuid.New().String(),
		EventID:   eventID,
		Config:    cfg,
		CreatedAt: now,
	}
	if err := m.store.CreateCampaign(ctx, campaign); err != nil {
		return nil, err
	}

	result := &InitiateResult{CampaignID: campaign.ID}
	for _, recipient := range recipients {
		inv := models.Invitation{
			CampaignID:   campaign.ID,
			RecipientID:  recipient.ID,
			State:        models.InvitationPending,
			CreatedAt:    now,
			LastActionAt: now,
		}
		if err := m.store.CreateInvitation(ctx, inv); err != nil {
			return nil, err
		}

		records, err := m.dispatchTemplate(ctx, campaign, event, recipient, templateIDInitial, cfg.Templates.Initial)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRecipient{RecipientID: recipient.ID, Reason: skipReason(err)})
			continue
		}
		result.Dispatched = append(result.Dispatched, records...)
	}

	m.logger.Info("campaign initiated", map[string]interface{}{
		"campaignId": campaign.ID,
		"eventId":    eventID,
		"recipients": len(recipients),
		"skipped":    len(result.Skipped),
		"actorId":    session.ActorID,
	})
	return result, nil
}

// Tick evaluates every open campaign against now. Used directly in tests and
// by the scheduler loop, which wraps each campaign in a distributed lock.
func (m *Manager) Tick(ctx context.Context, now time.Time) error {
	campaigns, err := m.store.OpenCampaigns(ctx)
	if err != nil {
		return err
	}
	for _, campaign := range campaigns {
		if err := m.TickCampaign(ctx, campaign, now); err != nil {
			m.logger.WithError(err).Error("campaign tick failed", map[string]interface{}{
				"campaignId": campaign.ID,
			})
		}
	}
	return nil
}

// TickCampaign evaluates one campaign's invitations. Reminders fire when the
// days elapsed since the invitation was created reach the next offset mark;
// the handoff fires when they reach handoffAfterDays. At most one reminder
// per invitation per tick, so a catch-up after downtime spreads overdue
// reminders across consecutive ticks instead of bursting them.
func (m *Manager) TickCampaign(ctx context.Context, campaign models.OutreachCampaign, now time.Time) error {
	invitations, err := m.store.InvitationsForCampaign(ctx, campaign.ID)
	if err != nil {
		return err
	}

	allTerminal := true
	for i := range invitations {
		inv := invitations[i]
		if inv.State.Terminal() {
			continue
		}

		if err := m.evaluateInvitation(ctx, campaign, &inv, now); err != nil {
			if stderrors.Is(err, ErrVersionConflict) {
				// Another writer got there first; their transition stands.
				continue
			}
			m.logger.WithError(err).Error("invitation evaluation failed", map[string]interface{}{
				"campaignId":  campaign.ID,
				"recipientId": inv.RecipientID,
			})
		}
		if !inv.State.Terminal() {
			allTerminal = false
		}
	}

	// Closure is derived from invitation states, so there is nothing to
	// write: a fully terminal campaign stops appearing in OpenCampaigns.
	if allTerminal && len(invitations) > 0 {
		m.logger.Info("campaign completed", map[string]interface{}{"campaignId": campaign.ID})
	}
	return nil
}

func (m *Manager) evaluateInvitation(ctx context.Context, campaign models.OutreachCampaign, inv *models.Invitation, now time.Time) error {
	elapsed := now.Sub(inv.CreatedAt)
	cfg := campaign.Config

	if elapsed >= days(cfg.HandoffAfterDays) {
		return m.escalate(ctx, campaign, inv, "timeout", "", now)
	}

	if inv.RemindersSent < len(cfg.ReminderOffsetsDays) &&
		elapsed >= days(cfg.ReminderOffsetsDays[inv.RemindersSent]) {
		return m.sendReminder(ctx, campaign, inv, now)
	}
	return nil
}

func (m *Manager) sendReminder(ctx context.Context, campaign models.OutreachCampaign, inv *models.Invitation, now time.Time) error {
	recipient, err := m.directory.Recipient(ctx, inv.RecipientID)
	if err != nil {
		return err
	}
	event, err := m.directory.EventProfile(ctx, campaign.EventID)
	if err != nil {
		return err
	}

	inv.State = models.InvitationReminded
	inv.RemindersSent++
	inv.LastActionAt = now
	if err := m.store.UpdateInvitation(ctx, inv); err != nil {
		return err
	}

	if _, err := m.dispatchTemplate(ctx, campaign, event, *recipient, templateIDReminder, campaign.Config.Templates.Reminder); err != nil {
		return err
	}
	metrics.RemindersSent.Inc()
	return nil
}

func (m *Manager) escalate(ctx context.Context, campaign models.OutreachCampaign, inv *models.Invitation, trigger, detail string, now time.Time) error {
	inv.State = models.InvitationEscalated
	inv.LastActionAt = now
	if detail != "" {
		inv.ResponseDetail = detail
	}
	if err := m.store.UpdateInvitation(ctx, inv); err != nil {
		return err
	}

	metrics.Escalations.WithLabelValues(trigger).Inc()
	if m.auditor != nil {
		m.auditor.IndexEscalation(ctx, ledger.EscalationAudit{
			CampaignID:  campaign.ID,
			EventID:     campaign.EventID,
			RecipientID: inv.RecipientID,
			Trigger:     trigger,
			Detail:      detail,
			EscalatedAt: now,
		})
	}
	m.logger.Info("invitation escalated", map[string]interface{}{
		"campaignId":  campaign.ID,
		"recipientId": inv.RecipientID,
		"trigger":     trigger,
	})
	return nil
}

// EscalateNow is the administrative override: a coordinator hands an
// invitation off immediately, skipping remaining reminders.
func (m *Manager) EscalateNow(ctx context.Context, session models.Session, eventID, recipientID string) error {
	// Latest, not active: escalating the last open invitation closes the
	// campaign, and a retry should still report INVITATION_TERMINAL.
	campaign, err := m.store.LatestCampaignByEvent(ctx, eventID)
	if err != nil {
		return err
	}
	inv, err := m.store.Invitation(ctx, campaign.ID, recipientID)
	if err != nil {
		return err
	}
	if inv.State.Terminal() {
		return errors.NewInvitationTerminalError(campaign.ID, recipientID)
	}
	detail := fmt.Sprintf("escalated by %s", session.ActorID)
	return m.escalate(ctx, *campaign, inv, "override", detail, time.Now().UTC())
}

// CampaignForEvent resolves the campaign a reply for an event belongs to:
// the most recent one, whether it still has open invitations or not. Late
// replies to a completed campaign are still acknowledged.
func (m *Manager) CampaignForEvent(ctx context.Context, eventID string) (*models.OutreachCampaign, error) {
	return m.store.LatestCampaignByEvent(ctx, eventID)
}

// Status reports every invitation's state plus the delivery failure count.
func (m *Manager) Status(ctx context.Context, eventID string) (*CampaignStatus, error) {
	campaign, err := m.store.LatestCampaignByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	invitations, err := m.store.InvitationsForCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}

	status := &CampaignStatus{
		CampaignID:  campaign.ID,
		EventID:     campaign.EventID,
		Invitations: make([]models.InvitationStatus, 0, len(invitations)),
	}
	for _, inv := range invitations {
		status.Invitations = append(status.Invitations, models.InvitationStatus{
			RecipientID:   inv.RecipientID,
			State:         inv.State,
			RemindersSent: inv.RemindersSent,
			LastActionAt:  inv.LastActionAt,
		})
	}

	if m.failures != nil {
		count, err := m.failures.FailureCount(ctx, campaign.ID)
		if err != nil {
			return nil, err
		}
		status.FailedDeliveries = count
	}
	return status, nil
}

func (m *Manager) dispatchTemplate(ctx context.Context, campaign models.OutreachCampaign, event *models.EventProfile, recipient models.Recipient, templateID, tmpl string) ([]models.DeliveryRecord, error) {
	link := m.responseLink(campaign.EventID, recipient.ID)
	text, err := template.Render(tmpl, renderContext(recipient, event, link))
	if err != nil {
		return nil, err
	}
	msg := models.Message{
		ID:           uuid.New().String(),
		TemplateID:   templateID,
		RenderedText: text,
		CreatedAt:    time.Now().UTC(),
	}
	return m.dispatcher.SendBatch(ctx, campaign.EventID, msg, []models.Recipient{recipient})
}

// responseLink builds the URL a recipient follows to accept or decline.
func (m *Manager) responseLink(eventID, recipientID string) string {
	if m.responseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/outreach/%s/responses?recipient=%s",
		m.responseURL, url.PathEscape(eventID), url.QueryEscape(recipientID))
}

// renderContext omits keys whose value is missing, so a template that needs
// them fails to render and the recipient is skipped instead of receiving a
// message with a blank in it.
func renderContext(recipient models.Recipient, event *models.EventProfile, responseLink string) map[string]string {
	ctx := make(map[string]string, 5)
	set := func(key, value string) {
		if value != "" {
			ctx[key] = value
		}
	}
	set("recipientName", recipient.DisplayName)
	set("eventName", event.Name)
	set("eventLocation", event.Location)
	set("responseLink", responseLink)
	if !event.Start.IsZero() {
		ctx["eventDate"] = event.Start.Format("Monday, Jan 2 2006")
	}
	return ctx
}

// skipReason renders a skip cause with enough detail to act on, naming the
// placeholder or field that blocked the dispatch.
func skipReason(err error) string {
	var stdErr *errors.StandardError
	if stderrors.As(err, &stdErr) && stdErr.Details != "" {
		return fmt.Sprintf("%s (%s)", stdErr.Message, stdErr.Details)
	}
	return err.Error()
}

func validateConfig(cfg models.CampaignConfig) error {
	prev := 0
	for _, offset := range cfg.ReminderOffsetsDays {
		if offset <= prev {
			return errors.NewInvalidCampaignConfigError(
				fmt.Sprintf("reminder offsets must be strictly increasing and positive, got %v", cfg.ReminderOffsetsDays))
		}
		prev = offset
	}
	if cfg.HandoffAfterDays <= prev {
		return errors.NewInvalidCampaignConfigError(
			fmt.Sprintf("handoff day %d must come after the last reminder offset %d", cfg.HandoffAfterDays, prev))
	}
	if cfg.Templates.Initial == "" || cfg.Templates.Reminder == "" {
		return errors.NewInvalidCampaignConfigError("initial and reminder templates are required")
	}
	for name, tmpl := range map[string]string{"initial": cfg.Templates.Initial, "reminder": cfg.Templates.Reminder} {
		if err := template.Validate(tmpl, templateContextKeys); err != nil {
			return errors.NewInvalidCampaignConfigError(fmt.Sprintf("%s template: %v", name, err))
		}
	}
	return nil
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
