package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
)

// SQSConfig targets one SQS queue.
type SQSConfig struct {
	QueueURL string
	Region   string
	// Endpoint overrides the AWS endpoint, e.g. for LocalStack.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// SQS sends events to an SQS queue. FIFO queues receive the transaction ID as
// message group and the event ID as deduplication ID.
type SQS struct {
	client   sqsiface.SQSAPI
	queueURL string
	fifo     bool
}

// NewSQS opens an SQS session for cfg.
func NewSQS(cfg SQSConfig) (*SQS, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, unconfigured(KindSQS, "a queue url")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	awsConfig := &aws.Config{Region: aws.String(region)}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		awsConfig.Endpoint = aws.String(endpoint)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return newSQSWithClient(sqs.New(sess), cfg.QueueURL), nil
}

func newSQSWithClient(client sqsiface.SQSAPI, queueURL string) *SQS {
	queueURL = strings.TrimSpace(queueURL)
	return &SQS{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

func (s *SQS) Name() string { return KindSQS }

// Deliver sends msg and returns the SQS message ID.
func (s *SQS) Deliver(ctx context.Context, msg Message) (string, error) {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(msg.Body)),
		MessageAttributes: map[string]*sqs.MessageAttributeValue{
			"event_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.EventID),
			},
		},
	}
	if msg.EventType != "" {
		input.MessageAttributes["event_type"] = &sqs.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(msg.EventType),
		}
	}
	if s.fifo {
		input.MessageGroupId = aws.String(msg.Key)
		input.MessageDeduplicationId = aws.String(msg.EventID)
	}

	out, err := s.client.SendMessageWithContext(ctx, input)
	if err != nil {
		return "", deliveryFailed(KindSQS, msg, err)
	}
	return aws.StringValue(out.MessageId), nil
}

func (s *SQS) Close() error { return nil }
