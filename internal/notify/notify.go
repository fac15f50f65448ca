// Package notify delivers booking notifications to patients and doctors.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/sirupsen/logrus"

	"github.com/parchi-health/parchi/internal/logger"
)

// Message is the body put on the notification queue.
type Message struct {
	Recipient string         `json:"recipient"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
	SentAt    time.Time      `json:"sentAt"`
}

type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSNotifier hands messages to a queue drained by a delivery worker.
type SQSNotifier struct {
	client   sqsAPI
	queueURL string
	now      func() time.Time
}

// NewSQSNotifier resolves the queue by name with the default AWS config chain.
func NewSQSNotifier(ctx context.Context, queueName string) (*SQSNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := sqs.New(sqs.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
	})

	resp, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
	if err != nil {
		return nil, fmt.Errorf("get queue url %s: %w", queueName, err)
	}

	return &SQSNotifier{client: client, queueURL: aws.ToString(resp.QueueUrl), now: time.Now}, nil
}

func (n *SQSNotifier) Notify(ctx context.Context, recipient, kind string, payload map[string]any) error {
	body, err := json.Marshal(Message{
		Recipient: recipient,
		Kind:      kind,
		Payload:   payload,
		SentAt:    n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String(kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// LogNotifier only records notifications. It is the default when no queue is
// configured. OTP codes are never written to the log.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, recipient, kind string, payload map[string]any) error {
	fields := logrus.Fields{
		"component": "notify",
		"recipient": recipient,
		"kind":      kind,
	}
	if id, ok := payload["appointment_id"]; ok {
		fields["appointment_id"] = id
	}
	n.log.WithFields(fields).Info("notification queued")
	return nil
}
