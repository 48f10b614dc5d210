package notify

import (
	"alcyxob/group-coach/internal/config"
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// sesAPI is the subset of the SES client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESNotifier sends notifications as plain-text e-mail through AWS SES.
type SESNotifier struct {
	client sesAPI
	from   string
	logger *slog.Logger
}

// NewSESNotifier uses static credentials when configured and falls back to
// the default AWS credential chain otherwise.
func NewSESNotifier(ctx context.Context, cfg config.SESConfig, logger *slog.Logger) (*SESNotifier, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return newSESNotifier(sesv2.NewFromConfig(awsCfg), cfg.From, logger), nil
}

func newSESNotifier(client sesAPI, from string, logger *slog.Logger) *SESNotifier {
	return &SESNotifier{client: client, from: from, logger: logger}
}

func (n *SESNotifier) Notify(ctx context.Context, msg Message) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	if _, err := n.client.SendEmail(ctx, input); err != nil {
		n.logger.Error("Failed to send email via SES", "error", err, "to", msg.To)
		return err
	}
	n.logger.Info("Email sent via SES", "to", msg.To, "subject", msg.Subject)
	return nil
}
