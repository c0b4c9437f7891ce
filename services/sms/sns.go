package sms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
)

// SNSClient sends transactional text messages through AWS SNS
type SNSClient struct {
	api      snsiface.SNSAPI
	senderID string
}

// Config holds configuration for the SNS client. Credentials come from the
// default AWS chain (environment, shared config or instance role).
type Config struct {
	Region   string
	SenderID string
}

// NewSNSClient creates a new SNS client
func NewSNSClient(config Config) (*SNSClient, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SNS session: %w", err)
	}
	return NewSNSClientWithAPI(sns.New(sess), config.SenderID), nil
}

// NewSNSClientWithAPI wraps an existing SNS API, used by tests
func NewSNSClientWithAPI(api snsiface.SNSAPI, senderID string) *SNSClient {
	return &SNSClient{api: api, senderID: senderID}
}

// SendSMS publishes message directly to an E.164 phone number
func (c *SNSClient) SendSMS(ctx context.Context, phone, message string) error {
	attrs := map[string]*sns.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if c.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = &sns.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(c.senderID),
		}
	}

	_, err := c.api.PublishWithContext(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("failed to publish SMS: %w", err)
	}
	return nil
}
