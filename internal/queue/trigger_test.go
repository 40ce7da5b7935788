package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"pricewatch/internal/config"
	"pricewatch/internal/types"
)

// --- Mock SQS Client ---

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	// failOn makes SendMessage fail for the listed alert IDs.
	failOn map[string]bool
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if id := params.MessageAttributes["alert_id"].StringValue; id != nil && m.failOn[*id] {
		return nil, errors.New("sqs throttled")
	}
	return &sqs.SendMessageOutput{}, nil
}

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/alert-triggers"

func newTestPublisher(mock *mockSQSSender) *TriggerPublisher {
	return NewTriggerPublisher(mock, config.AWSConfig{AlertTriggerQueue: testQueueURL}, slog.Default())
}

func sampleTrigger(id string) types.AlertTrigger {
	return types.AlertTrigger{
		AlertID:             id,
		UserID:              "u-1",
		OfferJurisdictionID: "oj-1",
		ThresholdMinor:      1000,
		CurrentAmountMinor:  900,
		Op:                  types.OpBelow,
		TriggeredAt:         time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPublish_SendsOneMessagePerTrigger(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	if err := pub.Publish(context.Background(), []types.AlertTrigger{sampleTrigger("a1"), sampleTrigger("a2")}); err != nil {
		t.Fatalf("Publish returned unexpected error: %v", err)
	}

	if len(mock.calls) != 2 {
		t.Fatalf("expected 2 SendMessage calls, got %d", len(mock.calls))
	}

	input := mock.calls[0]
	if *input.QueueUrl != testQueueURL {
		t.Errorf("expected queue %s, got %s", testQueueURL, *input.QueueUrl)
	}

	var msg TriggerMessage
	if err := json.Unmarshal([]byte(*input.MessageBody), &msg); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}
	if msg.MessageID == "" {
		t.Error("expected a message id")
	}
	if msg.Trigger.AlertID != "a1" || msg.Trigger.CurrentAmountMinor != 900 {
		t.Errorf("unexpected trigger in body: %+v", msg.Trigger)
	}
	if got := *input.MessageAttributes["op"].StringValue; got != "below" {
		t.Errorf("expected op attribute 'below', got %q", got)
	}
}

func TestPublish_ContinuesAfterFailure(t *testing.T) {
	mock := &mockSQSSender{failOn: map[string]bool{"a1": true}}
	pub := newTestPublisher(mock)

	err := pub.Publish(context.Background(), []types.AlertTrigger{sampleTrigger("a1"), sampleTrigger("a2")})
	if err == nil {
		t.Fatal("expected error when a send fails")
	}
	if !strings.Contains(err.Error(), "a1") {
		t.Errorf("expected error to name the failed alert, got %v", err)
	}
	if len(mock.calls) != 2 {
		t.Errorf("expected both triggers attempted, got %d calls", len(mock.calls))
	}
}

func TestPublish_EmptyIsNoop(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	if err := pub.Publish(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.calls) != 0 {
		t.Errorf("expected no calls, got %d", len(mock.calls))
	}
}

func TestPublish_MissingQueueURL(t *testing.T) {
	pub := NewTriggerPublisher(&mockSQSSender{}, config.AWSConfig{}, nil)

	err := pub.Publish(context.Background(), []types.AlertTrigger{sampleTrigger("a1")})
	if code := types.CodeOf(err); code != types.ErrCodeConfigMissing {
		t.Errorf("expected %s, got %s", types.ErrCodeConfigMissing, code)
	}
}
