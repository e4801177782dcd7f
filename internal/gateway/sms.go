// internal/gateway/sms.go
package gateway

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"coachreach/internal/models"
)

// SNSService is the slice of the SNS client the adapter needs; defined here
// for mocking.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSAdapter sends over AWS SNS direct-to-phone publish.
type SMSAdapter struct {
	client   SNSService
	senderID string
}

func NewSMSAdapter(client SNSService, senderID string) *SMSAdapter {
	return &SMSAdapter{
		client:   client,
		senderID: senderID,
	}
}

func (a *SMSAdapter) Channel() models.Channel {
	return models.ChannelSMS
}

func (a *SMSAdapter) Submit(ctx context.Context, text, address string) (string, error) {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(address),
		Message:     aws.String(text),
	}
	if a.senderID != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(a.senderID),
			},
		}
	}

	out, err := a.client.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("sns publish: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
