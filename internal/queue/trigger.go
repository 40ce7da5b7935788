// Package queue provides the SQS producer that hands alert triggers to the
// downstream notifier.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"pricewatch/internal/config"
	"pricewatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// TriggerMessage is the SQS body for one alert trigger. MessageID lets the
// notifier drop redeliveries; it is not stable across evaluations.
type TriggerMessage struct {
	MessageID string             `json:"message_id"`
	Trigger   types.AlertTrigger `json:"trigger"`
}

// TriggerPublisher sends alert triggers to the notification queue, one
// message per trigger.
type TriggerPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewTriggerPublisher creates a publisher for the queue named by
// awsCfg.AlertTriggerQueue.
func NewTriggerPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *TriggerPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &TriggerPublisher{
		client:   client,
		queueURL: awsCfg.AlertTriggerQueue,
		logger:   logger,
	}
}

// Publish sends every trigger. A failed send does not stop the remaining
// ones; all send errors are joined into the returned error.
func (p *TriggerPublisher) Publish(ctx context.Context, triggers []types.AlertTrigger) error {
	if p.queueURL == "" {
		return types.NewAppError(types.ErrCodeConfigMissing, "alert trigger queue url is not configured", nil)
	}

	var errs []error
	for _, tr := range triggers {
		if err := p.send(ctx, tr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *TriggerPublisher) send(ctx context.Context, tr types.AlertTrigger) error {
	msg := TriggerMessage{MessageID: uuid.New().String(), Trigger: tr}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal TriggerMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"alert_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(tr.AlertID),
			},
			"op": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(tr.Op)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send trigger %s to %s: %w", tr.AlertID, p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "alert trigger sent",
		"queue_url", p.queueURL,
		"message_id", msg.MessageID,
		"alert_id", tr.AlertID,
		"user_id", tr.UserID,
		"offer_jurisdiction_id", tr.OfferJurisdictionID,
	)
	return nil
}
