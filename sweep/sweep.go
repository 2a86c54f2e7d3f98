// Package sweep provides the scheduled Lambda handler that expires
// stale session documents.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/davparache/auditory-updated/inventory"
)

// Config holds configuration for the Handler.
type Config struct {
	// Table is the sessions table to sweep.
	// Default: "auditory_sessions"
	Table string

	// Retention is how long an untouched session stays live.
	// Default: 90 days
	Retention time.Duration

	// Segments is the parallel scan fan-out.
	// Default: 4
	Segments int

	// Logger receives sweep reports.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Table:     "auditory_sessions",
		Retention: 90 * 24 * time.Hour,
		Segments:  4,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "auditory_sessions"
	}
	if c.Retention <= 0 {
		c.Retention = 90 * 24 * time.Hour
	}
	if c.Segments < 1 {
		c.Segments = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Handler marks stale session documents for TTL deletion.
type Handler struct {
	client *dynamodb.Client
	config Config
	logger *slog.Logger
}

// NewHandler creates a new sweep handler.
func NewHandler(client *dynamodb.Client, config Config) *Handler {
	config.validate()
	return &Handler{
		client: client,
		config: config,
		logger: config.Logger,
	}
}

// HandleScheduledSweep scans the table in parallel segments for
// documents whose updated timestamp fell behind the retention window
// and stamps their expires attribute. Only expires is ever written;
// already stamped documents are skipped. This function is designed to
// be used as an AWS Lambda handler behind a scheduled event.
func (h *Handler) HandleScheduledSweep(ctx context.Context, _ events.CloudWatchEvent) error {
	now := time.Now()
	cutoff := inventory.Timestamp(now.Add(-h.config.Retention))
	expires := now.Unix()

	h.logger.Info("sweep started",
		"table", h.config.Table,
		"cutoff", cutoff,
		"segments", h.config.Segments,
	)

	var stamped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for seg := 0; seg < h.config.Segments; seg++ {
		g.Go(func() error {
			return h.sweepSegment(gctx, seg, cutoff, expires, &stamped, &failed)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("sweep table %s: %w", h.config.Table, err)
	}

	h.logger.Info("sweep completed",
		"table", h.config.Table,
		"expired", stamped.Load(),
		"failed", failed.Load(),
	)
	return nil
}

// sweepSegment scans one parallel segment and stamps every match. A
// scan failure aborts the invocation; a single failed stamp only
// logs, the next run retries it.
func (h *Handler) sweepSegment(ctx context.Context, seg int, cutoff string, expires int64, stamped, failed *atomic.Int64) error {
	input := &dynamodb.ScanInput{
		TableName:            aws.String(h.config.Table),
		Segment:              aws.Int32(int32(seg)),
		TotalSegments:        aws.Int32(int32(h.config.Segments)),
		ProjectionExpression: aws.String("id"),
		FilterExpression:     aws.String("#updated < :cutoff AND attribute_not_exists(#expires)"),
		ExpressionAttributeNames: map[string]string{
			"#updated": "updated",
			"#expires": "expires",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberS{Value: cutoff},
		},
	}

	for {
		out, err := h.client.Scan(ctx, input)
		if err != nil {
			return fmt.Errorf("scan segment %d: %w", seg, err)
		}

		for _, item := range out.Items {
			id, ok := item["id"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if err := h.stamp(ctx, id.Value, expires); err != nil {
				failed.Add(1)
				h.logger.Warn("failed to stamp session",
					"session", id.Value,
					"error", err,
				)
				continue
			}
			stamped.Add(1)
		}

		if out.LastEvaluatedKey == nil {
			return nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// stamp writes the expires attribute on one document unless another
// sweeper already did.
func (h *Handler) stamp(ctx context.Context, id string, expires int64) error {
	_, err := h.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(h.config.Table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET #expires = :expires"),
		ConditionExpression: aws.String("attribute_not_exists(#expires)"),
		ExpressionAttributeNames: map[string]string{
			"#expires": "expires",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expires": &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)},
		},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		// Already stamped by a concurrent sweeper.
		return nil
	}
	return err
}
