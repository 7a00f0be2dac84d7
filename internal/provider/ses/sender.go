// Package ses adapts AWS SES v2 as the transactional mail provider for the
// dispatch pipeline. One SendEmail call per recipient; client-side batching
// happens in the pipeline.
package ses

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/mailflow/internal/config"
	"github.com/ignite/mailflow/internal/domain"
)

// API is the slice of the SES v2 client the sender uses; tests substitute a
// fake.
type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Sender implements dispatch.MailProvider over SES v2.
type Sender struct {
	client  API
	timeout time.Duration
}

// NewSender creates an SES sender from the mail config. Static credentials
// are used when configured; otherwise the default AWS credential chain.
func NewSender(ctx context.Context, cfg config.MailConfig) (*Sender, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Sender{
		client:  sesv2.NewFromConfig(awsCfg),
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, nil
}

// NewSenderWithClient creates a sender around an existing client (tests).
func NewSenderWithClient(client API, timeout time.Duration) *Sender {
	return &Sender{client: client, timeout: timeout}
}

// Send delivers one message. Provider errors come back wrapped; the
// pipeline records them per recipient and never shows them verbatim to
// users.
func (s *Sender) Send(ctx context.Context, msg domain.EmailMessage) (*domain.SendResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		ReplyToAddresses: []string{msg.ReplyTo},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("newsletter_id"), Value: aws.String(msg.NewsletterID)},
			{Name: aws.String("subscriber_id"), Value: aws.String(msg.SubscriberID)},
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("ses send to %s: %w", msg.To, err)
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	return &domain.SendResult{MessageID: messageID, SentAt: time.Now()}, nil
}
