package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyendpoints "github.com/aws/smithy-go/endpoints"
)

var (
	AWSDefaultConfigLoader  = awsconfig.LoadDefaultConfig
	SNSTopicResolverFactory = sns.NewGenerateArnTopicResolver
	SNSPublisherFactory     = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return sns.NewPublisher(cfg, logger)
	}
	SNSSubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return sns.NewSubscriber(cfg, sqsCfg, logger)
	}
)

const (
	localstackAccountID = "000000000000"
	awsAccountIDLength  = 12
	// awsSubscriberName suffixes the SQS queue subscribed to each SNS topic.
	awsSubscriberName = "cotflow"
)

// awsSetup is the resolved AWS context shared by publisher and subscriber.
type awsSetup struct {
	cfg       aws.Config
	accountID string
	region    string
	endpoint  *url.URL
	resolver  sns.TopicResolver
}

func awsTransport(ctx context.Context, conf Config, logger watermill.LoggerAdapter) (Transport, error) {
	setup, err := resolveAWS(ctx, conf, logger)
	if err != nil {
		return Transport{}, err
	}

	publisher, err := SNSPublisherFactory(setup.publisherConfig(), logger)
	if err != nil {
		return Transport{}, err
	}

	snsCfg, sqsCfg := setup.subscriberConfigs()
	subscriber, err := SNSSubscriberFactory(snsCfg, sqsCfg, logger)
	if err != nil {
		_ = publisher.Close()
		return Transport{}, err
	}

	return Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

func resolveAWS(ctx context.Context, conf Config, logger watermill.LoggerAdapter) (awsSetup, error) {
	endpoint, err := awsEndpointURL(conf.GetAWSEndpoint())
	if err != nil {
		return awsSetup{}, err
	}

	cfg, err := loadAWSConfig(ctx, conf, endpoint)
	if err != nil {
		logger.Error("Failed to load AWS config", err, watermill.LogFields{"region": conf.GetAWSRegion()})
		return awsSetup{}, err
	}

	accountID, region := resolveAccountAndRegion(conf, cfg.Region, logger)
	resolver, err := SNSTopicResolverFactory(accountID, region)
	if err != nil {
		return awsSetup{}, fmt.Errorf("create SNS topic resolver: %w", err)
	}

	logger.Info("Resolved AWS transport", watermill.LogFields{
		"account_id":      accountID,
		"region":          region,
		"custom_endpoint": endpoint != nil,
	})

	return awsSetup{cfg: cfg, accountID: accountID, region: region, endpoint: endpoint, resolver: resolver}, nil
}

func loadAWSConfig(ctx context.Context, conf Config, endpoint *url.URL) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region := conf.GetAWSRegion(); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if key, secret := conf.GetAWSAccessKeyID(), conf.GetAWSSecretAccessKey(); key != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentialsProvider(key, secret)))
	}
	if endpoint != nil {
		opts = append(opts, awsconfig.WithBaseEndpoint(endpoint.String()))
	}

	cfg, err := AWSDefaultConfigLoader(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	// Loaders replaced in tests may ignore the options.
	if region := conf.GetAWSRegion(); region != "" {
		cfg.Region = region
	}
	return cfg, nil
}

func (s awsSetup) publisherConfig() sns.PublisherConfig {
	pubCfg := sns.PublisherConfig{
		TopicResolver: s.resolver,
		AWSConfig:     s.cfg,
		Marshaler:     sns.DefaultMarshalerUnmarshaler{},
	}
	if s.endpoint != nil {
		pubCfg.OptFns = []func(*amazonsns.Options){
			amazonsns.WithEndpointResolverV2(sns.OverrideEndpointResolver{
				Endpoint: smithyendpoints.Endpoint{URI: *s.endpoint},
			}),
		}
	}
	return pubCfg
}

func (s awsSetup) subscriberConfigs() (sns.SubscriberConfig, sqs.SubscriberConfig) {
	snsCfg := sns.SubscriberConfig{
		AWSConfig:            s.cfg,
		TopicResolver:        s.resolver,
		GenerateSqsQueueName: sqsQueueNameGenerator(awsSubscriberName),
	}
	sqsCfg := sqs.SubscriberConfig{AWSConfig: s.cfg}

	if s.endpoint != nil {
		snsCfg.OptFns = []func(*amazonsns.Options){
			amazonsns.WithEndpointResolverV2(sns.OverrideEndpointResolver{
				Endpoint: smithyendpoints.Endpoint{URI: *s.endpoint},
			}),
		}
		sqsCfg.OptFns = []func(*amazonsqs.Options){
			amazonsqs.WithEndpointResolverV2(sqs.OverrideEndpointResolver{
				Endpoint: smithyendpoints.Endpoint{URI: *s.endpoint},
			}),
		}
	}
	return snsCfg, sqsCfg
}

// sqsQueueNameGenerator names the queue of topic T "T-<subscriber>".
func sqsQueueNameGenerator(subscriber string) func(context.Context, sns.TopicArn) (string, error) {
	return func(ctx context.Context, topic sns.TopicArn) (string, error) {
		name, err := sns.ExtractTopicNameFromTopicArn(topic)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s-%s", name, subscriber), nil
	}
}

// resolveAccountAndRegion falls back to the LocalStack account id when a
// custom endpoint is set and no valid account id is configured.
func resolveAccountAndRegion(conf Config, fallbackRegion string, logger watermill.LoggerAdapter) (string, string) {
	accountID := strings.Trim(conf.GetAWSAccountID(), "\"' ")
	region := conf.GetAWSRegion()
	if region == "" {
		region = fallbackRegion
	}

	if conf.GetAWSEndpoint() != "" && len(accountID) != awsAccountIDLength {
		logger.Info("Using LocalStack account id", watermill.LogFields{"configured": accountID})
		accountID = localstackAccountID
	}
	return accountID, region
}

func awsEndpointURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse AWS endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse AWS endpoint: %q needs a scheme and host", raw)
	}
	return parsed, nil
}

func staticCredentialsProvider(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
			Source:          "cotflow",
		}, nil
	})
}
