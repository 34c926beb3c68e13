package queue

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	pkgerrors "github.com/pkg/errors"
)

const maxSQSWaitTime = 20 * time.Second

// SQSQueue is a Queue over an SQS queue. FIFO queues (url ending in .fifo) get group and
// dedup ids; they do not accept per-message delays, so the queue's own delay applies.
type SQSQueue struct {
	client     sqsiface.SQSAPI
	url        string
	name       string
	fifo       bool
	visibility time.Duration
}

func NewSQSQueue(client sqsiface.SQSAPI, url string, visibility time.Duration) *SQSQueue {
	name := url
	if i := strings.LastIndex(url, "/"); i >= 0 {
		name = url[i+1:]
	}

	return &SQSQueue{
		client:     client,
		url:        url,
		name:       name,
		fifo:       strings.HasSuffix(url, ".fifo"),
		visibility: visibility,
	}
}

func (q *SQSQueue) Name() string {
	return q.name
}

func (q *SQSQueue) Send(ctx context.Context, msg Message) error {
	if len(msg.Body) == 0 {
		return ErrEmptyBody
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(string(msg.Body)),
	}
	if q.fifo {
		if msg.GroupID != "" {
			input.MessageGroupId = aws.String(msg.GroupID)
		}
		if msg.DedupID != "" {
			input.MessageDeduplicationId = aws.String(msg.DedupID)
		}
	} else if msg.Delay > 0 {
		input.DelaySeconds = aws.Int64(int64(msg.Delay / time.Second))
	}

	_, err := q.client.SendMessageWithContext(ctx, input)
	return pkgerrors.Wrapf(err, "send to %s", q.name)
}

func (q *SQSQueue) Receive(ctx context.Context, wait time.Duration) (*Delivery, error) {
	if wait > maxSQSWaitTime {
		wait = maxSQSWaitTime
	}

	out, err := q.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: aws.Int64(1),
		WaitTimeSeconds:     aws.Int64(int64(wait / time.Second)),
		VisibilityTimeout:   aws.Int64(int64(q.visibility / time.Second)),
		AttributeNames: aws.StringSlice([]string{
			sqs.MessageSystemAttributeNameApproximateReceiveCount,
			sqs.MessageSystemAttributeNameMessageGroupId,
		}),
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "receive from %s", q.name)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	m := out.Messages[0]
	d := &Delivery{
		ID:      aws.StringValue(m.MessageId),
		Body:    []byte(aws.StringValue(m.Body)),
		receipt: aws.StringValue(m.ReceiptHandle),
	}
	if v, ok := m.Attributes[sqs.MessageSystemAttributeNameApproximateReceiveCount]; ok {
		d.Attempts, _ = strconv.Atoi(aws.StringValue(v))
	}
	if v, ok := m.Attributes[sqs.MessageSystemAttributeNameMessageGroupId]; ok {
		d.GroupID = aws.StringValue(v)
	}
	return d, nil
}

func (q *SQSQueue) Ack(ctx context.Context, d *Delivery) error {
	_, err := q.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(d.receipt),
	})
	return pkgerrors.Wrapf(err, "delete %s from %s", d.ID, q.name)
}

func (q *SQSQueue) Nack(ctx context.Context, d *Delivery, delay time.Duration) error {
	_, err := q.client.ChangeMessageVisibilityWithContext(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.url),
		ReceiptHandle:     aws.String(d.receipt),
		VisibilityTimeout: aws.Int64(int64(delay / time.Second)),
	})
	return pkgerrors.Wrapf(err, "change visibility of %s on %s", d.ID, q.name)
}
