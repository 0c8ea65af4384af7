package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// sesAPI is the part of the SES v2 client the sender uses.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESConfig struct {
	Region    string
	FromEmail string
	FromName  string
}

type SESSender struct {
	client    sesAPI
	fromEmail string
	fromName  string
	log       *slog.Logger
}

// NewSESClient loads the default AWS credential chain for region.
func NewSESClient(ctx context.Context, region string) (*sesv2.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("notify: load aws config: %w", err)
	}
	return sesv2.NewFromConfig(awsCfg), nil
}

func NewSESSender(client sesAPI, cfg SESConfig, log *slog.Logger) *SESSender {
	if log == nil {
		log = slog.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "CareBridge"
	}
	return &SESSender{client: client, fromEmail: cfg.FromEmail, fromName: cfg.FromName, log: log}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: ses client not configured")
	}

	body := &types.Body{}
	if msg.Body != "" {
		body.Text = &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")}
	}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: ses send: %w", err)
	}
	s.log.InfoContext(ctx, "email sent via ses", slog.String("to", msg.To), slog.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

var _ EmailSender = (*SESSender)(nil)
