package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/smallbiznis/payrecon/internal/config"
	"go.uber.org/zap"
)

const sqsRetryBackoff = 5 * time.Second

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue sends tasks to an SQS queue and long-polls it for delivery. A
// message is deleted before it is handled, so a crash mid-handling drops the
// task instead of repeating it.
type SQSQueue struct {
	client   sqsAPI
	queueURL string
	wait     int32
	log      *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewSQSQueue(ctx context.Context, cfg config.DispatchConfig, log *zap.Logger) (*SQSQueue, error) {
	if cfg.SQSQueueURL == "" {
		return nil, errors.New("DISPATCH_SQS_QUEUE_URL is required for the sqs transport")
	}

	opts := []func(*awsConfig.LoadOptions) error{awsConfig.WithRegion(cfg.SQSRegion)}
	if cfg.SQSAccessKey != "" && cfg.SQSSecretKey != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SQSAccessKey, cfg.SQSSecretKey, ""),
		))
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSQSQueue(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL, cfg.SQSWaitSeconds, log), nil
}

func newSQSQueue(client sqsAPI, queueURL string, wait int32, log *zap.Logger) *SQSQueue {
	if wait <= 0 || wait > 20 {
		wait = 20
	}
	return &SQSQueue{client: client, queueURL: queueURL, wait: wait, log: log}
}

func (q *SQSQueue) Enqueue(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}

func (q *SQSQueue) Start(handler Handler) error {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.done = make(chan struct{})
	go q.consume(ctx, handler)
	return nil
}

func (q *SQSQueue) consume(ctx context.Context, handler Handler) {
	defer close(q.done)
	for {
		if ctx.Err() != nil {
			return
		}
		output, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     q.wait,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Warn("sqs receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(sqsRetryBackoff):
			}
			continue
		}

		for _, message := range output.Messages {
			if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(q.queueURL),
				ReceiptHandle: message.ReceiptHandle,
			}); err != nil {
				// Not deleted means it will be redelivered; skip to keep at-most-once.
				q.log.Warn("sqs delete failed, task skipped", zap.Error(err))
				continue
			}

			var task Task
			if err := json.Unmarshal([]byte(aws.ToString(message.Body)), &task); err != nil {
				q.log.Error("sqs message is not a dispatch task",
					zap.String("message_id", aws.ToString(message.MessageId)),
					zap.Error(err),
				)
				continue
			}
			q.handle(handler, task)
		}
	}
}

func (q *SQSQueue) handle(handler Handler, task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("dispatch task panicked", zap.String("task_id", task.ID), zap.Any("panic", r))
		}
	}()
	_ = handler(context.Background(), task)
}

func (q *SQSQueue) Stop(ctx context.Context) error {
	if q.cancel == nil {
		return nil
	}
	q.once.Do(q.cancel)
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *SQSQueue) Depth() int {
	return -1
}
