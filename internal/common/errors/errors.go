// Package errors provides standardized error handling for the outreach engine.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeMissingPlaceholder    ErrorCode = "MISSING_PLACEHOLDER"
	ErrCodeInvalidCampaignConfig ErrorCode = "INVALID_CAMPAIGN_CONFIG"
	ErrCodeCampaignNotFound      ErrorCode = "CAMPAIGN_NOT_FOUND"
	ErrCodeCampaignActive        ErrorCode = "CAMPAIGN_ALREADY_ACTIVE"
	ErrCodeInvitationNotFound    ErrorCode = "INVITATION_NOT_FOUND"
	ErrCodeInvitationTerminal    ErrorCode = "INVITATION_TERMINAL"
	ErrCodeRecipientNotFound     ErrorCode = "RECIPIENT_NOT_FOUND"
	ErrCodeEventNotFound         ErrorCode = "EVENT_NOT_FOUND"
	ErrCodeInvalidChannel        ErrorCode = "INVALID_CHANNEL"

	ErrCodeGatewaySubmitFailed     ErrorCode = "GATEWAY_SUBMIT_FAILED"
	ErrCodeDeliveryRecordNotFound  ErrorCode = "DELIVERY_RECORD_NOT_FOUND"
	ErrCodeReplyUnmatched          ErrorCode = "REPLY_UNMATCHED"
	ErrCodeWebhookValidationFailed ErrorCode = "WEBHOOK_VALIDATION_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeFanoutPublishFailed      ErrorCode = "FANOUT_PUBLISH_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// CodeOf extracts the ErrorCode from err if it wraps a StandardError.
func CodeOf(err error) (ErrorCode, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code, true
	}
	return "", false
}

// ==========================
// 2. Error Constructors
// ==========================

// NewMissingPlaceholderError creates a non-retryable template rendering error.
func NewMissingPlaceholderError(placeholder string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingPlaceholder,
		Message:   "Template placeholder has no context value",
		Details:   fmt.Sprintf("placeholder: %s", placeholder),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidCampaignConfigError creates a non-retryable config validation error.
func NewInvalidCampaignConfigError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidCampaignConfig,
		Message:   "Campaign configuration is invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCampaignNotFoundError creates a non-retryable lookup error.
func NewCampaignNotFoundError(eventID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCampaignNotFound,
		Message:   "No campaign found for event",
		Details:   fmt.Sprintf("eventId: %s", eventID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCampaignActiveError signals that an event already has an open campaign.
func NewCampaignActiveError(eventID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCampaignActive,
		Message:   "Event already has an active campaign",
		Details:   fmt.Sprintf("eventId: %s", eventID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEventNotFoundError creates a non-retryable lookup error.
func NewEventNotFoundError(eventID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEventNotFound,
		Message:   "No event found",
		Details:   fmt.Sprintf("eventId: %s", eventID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvitationNotFoundError creates a non-retryable lookup error.
func NewInvitationNotFoundError(campaignID, recipientID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvitationNotFound,
		Message:   "Invitation not found",
		Details:   fmt.Sprintf("campaignId: %s, recipientId: %s", campaignID, recipientID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvitationTerminalError signals a write against a closed invitation.
func NewInvitationTerminalError(campaignID, recipientID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvitationTerminal,
		Message:   "Invitation already reached a terminal state",
		Details:   fmt.Sprintf("campaignId: %s, recipientId: %s", campaignID, recipientID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecipientNotFoundError creates a non-retryable directory lookup error.
func NewRecipientNotFoundError(recipientID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecipientNotFound,
		Message:   "Recipient not found in directory",
		Details:   fmt.Sprintf("recipientId: %s", recipientID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidChannelError creates a non-retryable channel error.
func NewInvalidChannelError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidChannel,
		Message:   "Unsupported delivery channel",
		Details:   fmt.Sprintf("channel: %s", channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewGatewaySubmitFailedError creates a retryable gateway error. The engine
// itself never retries it; retry happens, if at all, inside the adapter's
// transport layer.
func NewGatewaySubmitFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeGatewaySubmitFailed,
		Message:   "Gateway rejected the message",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeliveryRecordNotFoundError creates a non-retryable callback error.
func NewDeliveryRecordNotFoundError(providerMessageID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeliveryRecordNotFound,
		Message:   "No delivery record matches provider message id",
		Details:   fmt.Sprintf("providerMessageId: %s", providerMessageID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewReplyUnmatchedError signals an inbound reply with no open invitation.
// Callers log and drop; this is never surfaced to the sender.
func NewReplyUnmatchedError(channel, address string) *StandardError {
	return &StandardError{
		Code:      ErrCodeReplyUnmatched,
		Message:   "Inbound reply matches no non-terminal invitation",
		Details:   fmt.Sprintf("channel: %s, address: %s", channel, address),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWebhookValidationFailedError creates a non-retryable payload error.
func NewWebhookValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWebhookValidationFailed,
		Message:   "Webhook payload failed schema validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseInsertFailedError creates a retryable database insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewFanoutPublishFailedError creates a retryable fan-out error. Fan-out is
// at-least-once; a failed publish is retried once and then dropped.
func NewFanoutPublishFailedError(topic string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeFanoutPublishFailed,
		Message:   "Fan-out publish failed",
		Details:   fmt.Sprintf("topic: %s, error: %s", topic, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsRetryable reports whether err carries a retryable StandardError.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}
