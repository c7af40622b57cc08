package metrics

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/troykelly/playlistgen/internal/model"
)

const (
	namespace                = "PlaylistGen/Batch"
	cloudwatchTimeoutSeconds = 5
)

// Client wraps the CloudWatch client for batch/selection/cost metrics.
// Enabled only in production, matching the teacher's ENVIRONMENT gating.
type Client struct {
	client      *cloudwatch.Client
	enabled     bool
	environment string
}

func NewClient(ctx context.Context, environment string) (*Client, error) {
	if environment != "production" {
		log.Printf("📊 CloudWatch Metrics: DISABLED (environment: %s)", environment)
		return &Client{enabled: false, environment: environment}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Printf("⚠️  Failed to load AWS config for CloudWatch: %v", err)
		return &Client{enabled: false}, nil
	}

	client := cloudwatch.NewFromConfig(cfg)
	log.Printf("📊 CloudWatch Metrics: ✅ ENABLED (namespace: %s)", namespace)

	return &Client{client: client, enabled: true, environment: environment}, nil
}

// RecordPlaylistGenerated records one completed (or failed) daypart
// generation: cost, tool-call count, relaxation count, and validation
// compliance, per spec.md §4.8.
func (m *Client) RecordPlaylistGenerated(daypartID string, cost model.Money, toolCalls, relaxations int, compliancePercentage float64, duration time.Duration, status string) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		dimensions := []types.Dimension{
			{Name: aws.String("Daypart"), Value: aws.String(daypartID)},
			{Name: aws.String("Status"), Value: aws.String(status)},
			{Name: aws.String("Environment"), Value: aws.String(m.environment)},
		}

		if err := m.putMetric(ctx, "PlaylistCostUSD", moneyToFloat(cost), types.StandardUnitNone, dimensions); err != nil {
			log.Printf("Failed to record PlaylistCostUSD metric: %v", err)
		}
		if err := m.putMetric(ctx, "ToolCalls", float64(toolCalls), types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record ToolCalls metric: %v", err)
		}
		if err := m.putMetric(ctx, "Relaxations", float64(relaxations), types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record Relaxations metric: %v", err)
		}
		if err := m.putMetric(ctx, "CompliancePercentage", compliancePercentage*100, types.StandardUnitPercent, dimensions); err != nil {
			log.Printf("Failed to record CompliancePercentage metric: %v", err)
		}
		if err := m.putMetric(ctx, "GenerationDuration", float64(duration.Milliseconds()), types.StandardUnitMilliseconds, dimensions); err != nil {
			log.Printf("Failed to record GenerationDuration metric: %v", err)
		}
	}()
}

// RecordBatchCompleted records the aggregate outcome of one batch run across
// every daypart matching the generation date's weekday.
func (m *Client) RecordBatchCompleted(totalCost model.Money, playlistCount, failedCount int) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		dimensions := []types.Dimension{
			{Name: aws.String("Environment"), Value: aws.String(m.environment)},
		}

		if err := m.putMetric(ctx, "BatchTotalCostUSD", moneyToFloat(totalCost), types.StandardUnitNone, dimensions); err != nil {
			log.Printf("Failed to record BatchTotalCostUSD metric: %v", err)
		}
		if err := m.putMetric(ctx, "BatchPlaylistCount", float64(playlistCount), types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record BatchPlaylistCount metric: %v", err)
		}
		if err := m.putMetric(ctx, "BatchFailedPlaylists", float64(failedCount), types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record BatchFailedPlaylists metric: %v", err)
		}
	}()
}

func (m *Client) putMetric(_ context.Context, metricName string, value float64, unit types.StandardUnit, dimensions []types.Dimension) error {
	if !m.enabled || m.client == nil {
		return nil
	}

	timeout := time.Duration(cloudwatchTimeoutSeconds) * time.Second
	cwCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := m.client.PutMetricData(cwCtx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(metricName),
				Value:      aws.Float64(value),
				Unit:       unit,
				Timestamp:  aws.Time(time.Now()),
				Dimensions: dimensions,
			},
		},
	})

	return err
}

// moneyToFloat converts a Money to float64 purely for CloudWatch's own
// numeric metric field; this never feeds back into budget arithmetic.
func moneyToFloat(m model.Money) float64 {
	return float64(m.Micros()) / 10000.0
}
