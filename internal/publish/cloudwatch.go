package publish

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/sirupsen/logrus"
)

// CloudWatchConfig configures the CloudWatch publisher.
type CloudWatchConfig struct {
	// Region overrides the region from the default AWS resolution chain.
	// When empty, the ambient chain (env vars, shared config, IMDS) applies.
	Region string `yaml:"region"`
}

// CloudWatchAPI is the subset of the CloudWatch client used by the publisher.
// Injectable so tests can substitute a fake without AWS credentials.
type CloudWatchAPI interface {
	PutMetricData(
		ctx context.Context,
		params *cloudwatch.PutMetricDataInput,
		optFns ...func(*cloudwatch.Options),
	) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatch publishes batches to AWS CloudWatch via PutMetricData.
//
// Each Publish call issues a single PutMetricData request. CloudWatch caps
// PutMetricData at 1000 datums and roughly 1 MB per request; oversized
// batches are not split here and will be rejected by the backend.
type CloudWatch struct {
	log    logrus.FieldLogger
	api    CloudWatchAPI
	region string
}

var _ Publisher = (*CloudWatch)(nil)

// NewCloudWatch creates a CloudWatch publisher around an existing client.
func NewCloudWatch(log logrus.FieldLogger, api CloudWatchAPI) *CloudWatch {
	return &CloudWatch{
		log: log.WithField("publisher", "cloudwatch"),
		api: api,
	}
}

// NewCloudWatchFromDefaults creates a CloudWatch publisher whose client is
// resolved through the default AWS credential and region provider chains
// (environment variables, shared credentials file, container or instance
// profile credentials).
func NewCloudWatchFromDefaults(
	ctx context.Context,
	log logrus.FieldLogger,
	cfg CloudWatchConfig,
) (*CloudWatch, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	p := NewCloudWatch(log, cloudwatch.NewFromConfig(awsCfg))
	p.region = awsCfg.Region

	return p, nil
}

// Name returns the publisher identifier.
func (p *CloudWatch) Name() string { return "cloudwatch" }

// Start initializes the publisher.
func (p *CloudWatch) Start(_ context.Context) error {
	if p.region != "" {
		p.log.WithField("region", p.region).Info("CloudWatch publisher ready")
	}

	return nil
}

// Publish writes one batch as a single PutMetricData request.
func (p *CloudWatch) Publish(ctx context.Context, batch Batch) error {
	data := make([]types.MetricDatum, 0, len(batch.Data))

	for _, d := range batch.Data {
		data = append(data, types.MetricDatum{
			MetricName: aws.String(d.Name),
			Dimensions: toDimensions(d.Tags),
			Timestamp:  aws.Time(d.Timestamp),
			Value:      aws.Float64(d.Value),
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(batch.Namespace),
		MetricData: data,
	}

	if _, err := p.api.PutMetricData(ctx, input); err != nil {
		return fmt.Errorf("putting metric data: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"namespace": batch.Namespace,
		"datums":    len(data),
	}).Debug("Published batch to CloudWatch")

	return nil
}

// Stop shuts down the publisher. The underlying SDK client holds no
// long-lived connection state beyond the shared HTTP transport.
func (p *CloudWatch) Stop() error { return nil }

func toDimensions(tags []Tag) []types.Dimension {
	if len(tags) == 0 {
		return nil
	}

	dims := make([]types.Dimension, 0, len(tags))
	for _, t := range tags {
		dims = append(dims, types.Dimension{
			Name:  aws.String(t.Name),
			Value: aws.String(t.Value),
		})
	}

	return dims
}
