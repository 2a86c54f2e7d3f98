// Package dynamo implements the session store on a DynamoDB table,
// one item per session.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/davparache/auditory-updated/session"
)

// Config holds configuration for the Store.
type Config struct {
	// Table is the name of the sessions table.
	// Default: "auditory_sessions"
	Table string

	// PollInterval is how often a watch re-reads its document.
	// Default: 2.5s
	PollInterval time.Duration

	// Logger receives poll diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Table:        "auditory_sessions",
		PollInterval: 2500 * time.Millisecond,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "auditory_sessions"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// record is the wire shape of one session item. The attribute names
// are the remote contract and must not change.
type record struct {
	ID       string `dynamodbav:"id"`
	JSON     string `dynamodbav:"json"`
	AdminPin string `dynamodbav:"adminPin"`
	Updated  string `dynamodbav:"updated"`
	Expires  int64  `dynamodbav:"expires,omitempty"`
}

// Store implements session.Store on DynamoDB.
type Store struct {
	client *dynamodb.Client
	config Config
}

// New creates a new Store instance.
func New(client *dynamodb.Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// Get retrieves a session document, treating expired items as missing.
func (s *Store) Get(ctx context.Context, id string) (session.Document, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.Table),
		Key:       key(id),
	})
	if err != nil {
		return session.Document{}, mapErr(err)
	}
	if result.Item == nil || isExpired(result.Item) {
		return session.Document{}, session.ErrNotFound
	}
	return unmarshalDoc(result.Item)
}

// Create writes a new document, leaving an existing one untouched.
func (s *Store) Create(ctx context.Context, doc session.Document) error {
	item, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.Table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return session.ErrAlreadyExists
		}
		return mapErr(err)
	}
	return nil
}

// Put writes the full document, creating or replacing it.
func (s *Store) Put(ctx context.Context, doc session.Document) error {
	item, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.Table),
		Item:      item,
	})
	if err != nil {
		return mapErr(err)
	}
	return nil
}

// Claim atomically takes the admin pin of an unclaimed document.
func (s *Store) Claim(ctx context.Context, id, pin, updated string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.config.Table),
		Key:                 key(id),
		UpdateExpression:    aws.String("SET #adminPin = :pin, #updated = :updated"),
		ConditionExpression: aws.String("attribute_exists(id) AND (attribute_not_exists(#adminPin) OR #adminPin = :empty)"),
		ExpressionAttributeNames: map[string]string{
			"#adminPin": "adminPin",
			"#updated":  "updated",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pin":     &types.AttributeValueMemberS{Value: pin},
			":updated": &types.AttributeValueMemberS{Value: updated},
			":empty":   &types.AttributeValueMemberS{Value: ""},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			// The returned item tells a missing document apart from a
			// claimed one.
			if condErr.Item == nil {
				return session.ErrNotFound
			}
			return session.ErrAlreadyClaimed
		}
		return mapErr(err)
	}
	return nil
}

// UpdateSnapshot replaces the payload of a document the pin holds.
func (s *Store) UpdateSnapshot(ctx context.Context, id, pin, json, updated string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.config.Table),
		Key:                 key(id),
		UpdateExpression:    aws.String("SET #json = :json, #updated = :updated"),
		ConditionExpression: aws.String("attribute_exists(id) AND #adminPin = :pin"),
		ExpressionAttributeNames: map[string]string{
			"#json":     "json",
			"#updated":  "updated",
			"#adminPin": "adminPin",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":json":    &types.AttributeValueMemberS{Value: json},
			":updated": &types.AttributeValueMemberS{Value: updated},
			":pin":     &types.AttributeValueMemberS{Value: pin},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			if condErr.Item == nil {
				return session.ErrNotFound
			}
			return session.ErrReadOnly
		}
		return mapErr(err)
	}
	return nil
}

// Touch merge-writes only the timestamp. UpdateItem creates the item
// when missing, which is what keeps set-only deployments usable.
func (s *Store) Touch(ctx context.Context, id, updated string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.config.Table),
		Key:              key(id),
		UpdateExpression: aws.String("SET #updated = :updated"),
		ExpressionAttributeNames: map[string]string{
			"#updated": "updated",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":updated": &types.AttributeValueMemberS{Value: updated},
		},
	})
	if err != nil {
		return mapErr(err)
	}
	return nil
}

// key builds the primary key for a session id.
func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

// isExpired checks if an item's TTL has passed but DynamoDB hasn't
// removed it yet.
func isExpired(item map[string]types.AttributeValue) bool {
	attr, exists := item["expires"]
	if !exists {
		return false
	}
	num, ok := attr.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	expires, err := strconv.ParseInt(num.Value, 10, 64)
	if err != nil {
		return false
	}
	return expires <= time.Now().Unix()
}

func marshalDoc(doc session.Document) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(record{
		ID:       doc.ID,
		JSON:     doc.JSON,
		AdminPin: doc.AdminPin,
		Updated:  doc.Updated,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return item, nil
}

func unmarshalDoc(item map[string]types.AttributeValue) (session.Document, error) {
	var rec record
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return session.Document{}, fmt.Errorf("unmarshal document: %w", err)
	}
	return session.Document{
		ID:       rec.ID,
		AdminPin: rec.AdminPin,
		JSON:     rec.JSON,
		Updated:  rec.Updated,
	}, nil
}

// mapErr converts AWS transport errors onto the session sentinels.
func mapErr(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "UnrecognizedClientException":
			return fmt.Errorf("%w: %s", session.ErrPermissionDenied, apiErr.ErrorMessage())
		case "ResourceNotFoundException":
			return fmt.Errorf("%w: table %s", session.ErrUnavailable, apiErr.ErrorMessage())
		case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded":
			return fmt.Errorf("%w: %s", session.ErrUnavailable, apiErr.ErrorMessage())
		}
	}
	return err
}
