package push

import (
	"context"
	"encoding/json"
	"fmt"

	"crm_reminders/internal/domain/push"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSPublisher is the subset of *sns.Client used here.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSGateway publishes notifications to an SNS topic; mobile push
// subscriptions filter on the user_id attribute.
type SNSGateway struct {
	client   SNSPublisher
	topicARN string
}

func NewSNSGateway(client SNSPublisher, topicARN string) *SNSGateway {
	return &SNSGateway{client: client, topicARN: topicARN}
}

// NewSNSClient loads the default AWS credential chain for region.
func NewSNSClient(ctx context.Context, region string) (*sns.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sns.NewFromConfig(cfg), nil
}

func (g *SNSGateway) Send(ctx context.Context, n push.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	_, err = g.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(g.topicARN),
		Subject:  aws.String(n.Title),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"user_id": {DataType: aws.String("String"), StringValue: aws.String(n.UserID)},
			"action":  {DataType: aws.String("String"), StringValue: aws.String(n.Data.Action)},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish for reminder %s: %w", n.ReminderID, err)
	}
	return nil
}
