package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "coachreach/internal/common/errors"
	"coachreach/internal/models"
)

type mockSES struct {
	lastInput *ses.SendEmailInput
	err       error
}

func (m *mockSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.lastInput = params
	if m.err != nil {
		return nil, m.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("ses-msg-1")}, nil
}

type mockSNS struct {
	lastInput *sns.PublishInput
	err       error
}

func (m *mockSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.lastInput = params
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{MessageId: aws.String("sns-msg-1")}, nil
}

func TestEmailAdapter_Submit(t *testing.T) {
	mock := &mockSES{}
	adapter := NewEmailAdapter(mock, "noreply@coachreach.example", "Coaching invitation")

	providerID, err := adapter.Submit(context.Background(), "Hi Jordan", "jordan@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", providerID)
	assert.Equal(t, []string{"jordan@example.com"}, mock.lastInput.Destination.ToAddresses)
	assert.Equal(t, "noreply@coachreach.example", aws.ToString(mock.lastInput.Source))
	assert.Equal(t, "Hi Jordan", aws.ToString(mock.lastInput.Message.Body.Text.Data))
}

func TestEmailAdapter_SubmitError(t *testing.T) {
	adapter := NewEmailAdapter(&mockSES{err: errors.New("throttled")}, "noreply@x", "s")

	_, err := adapter.Submit(context.Background(), "text", "a@b.c")
	assert.ErrorContains(t, err, "throttled")
}

func TestSMSAdapter_Submit(t *testing.T) {
	mock := &mockSNS{}
	adapter := NewSMSAdapter(mock, "COACHREACH")

	providerID, err := adapter.Submit(context.Background(), "Reply YES", "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, "sns-msg-1", providerID)
	assert.Equal(t, "+15550001111", aws.ToString(mock.lastInput.PhoneNumber))
	assert.Contains(t, mock.lastInput.MessageAttributes, "AWS.SNS.SMS.SenderID")
}

func TestChatAdapter_Submit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	adapter := NewChatAdapter(rdb)

	providerID, err := adapter.Submit(context.Background(), "Hi there", "user-42")
	require.NoError(t, err)
	assert.NotEmpty(t, providerID)

	items, err := rdb.LRange(context.Background(), "chat:inbox:user-42", 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, items, 1)

	var payload struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal([]byte(items[0]), &payload))
	assert.Equal(t, providerID, payload.ID)
	assert.Equal(t, "Hi there", payload.Text)
}

func TestRegistry_ForChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	registry := NewRegistry(
		NewEmailAdapter(&mockSES{}, "noreply@x", "s"),
		NewSMSAdapter(&mockSNS{}, ""),
		NewChatAdapter(rdb),
	)

	for _, channel := range []models.Channel{models.ChannelSMS, models.ChannelEmail, models.ChannelChat} {
		adapter, err := registry.ForChannel(channel)
		require.NoError(t, err)
		assert.Equal(t, channel, adapter.Channel())
	}

	_, err := registry.ForChannel(models.Channel("carrier-pigeon"))
	require.Error(t, err)
	code, _ := stderrors.CodeOf(err)
	assert.Equal(t, stderrors.ErrCodeInvalidChannel, code)
}
