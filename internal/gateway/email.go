// internal/gateway/email.go
package gateway

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"coachreach/internal/models"
)

// SESService is the slice of the SES client the adapter needs; defined here
// for mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailAdapter sends over AWS SES.
type EmailAdapter struct {
	client  SESService
	from    string
	subject string
}

func NewEmailAdapter(client SESService, fromEmail, subject string) *EmailAdapter {
	return &EmailAdapter{
		client:  client,
		from:    fromEmail,
		subject: subject,
	}
}

func (a *EmailAdapter) Channel() models.Channel {
	return models.ChannelEmail
}

func (a *EmailAdapter) Submit(ctx context.Context, text, address string) (string, error) {
	out, err := a.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{address},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(a.subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(text)},
			},
		},
		Source: aws.String(a.from),
	})
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
