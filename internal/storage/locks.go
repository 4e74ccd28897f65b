package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// activeLockKey is the sort key of the single active lock row per course.
// Released locks are rewritten under their lock id, keeping the history.
const activeLockKey = "ACTIVE"

// activeFlagValue populates the sparse GSI attribute on active lock rows.
const activeFlagValue = "ACTIVE"

// ErrAlreadyLocked is returned when locking a course that has an active lock.
var ErrAlreadyLocked = errors.New("course already has an active lock")

// Lock is a manual pause flag on a course.
type Lock struct {
	// Active indicates the lock is still in force.
	Active bool

	// CreatedAt is when the lock was set.
	CreatedAt time.Time

	// LockID identifies this lock row.
	LockID string

	// RealisationID is the locked course's realisation id.
	RealisationID string

	// Reason is the operator-supplied reason for the lock.
	Reason string

	// ReleasedAt is when the lock was released, or zero while active.
	ReleasedAt time.Time
}

// LockStore tracks sync locks in DynamoDB. The active lock for a course lives
// under a fixed sort key, so a conditional put enforces at most one active
// lock per course, and release is an atomic read-and-clear per lock.
type LockStore struct {
	// activeIndexName is the sparse GSI over active lock rows.
	activeIndexName string

	// client is the DynamoDB API client.
	client DynamoDBAPI

	// tableName is the name of the DynamoDB table.
	tableName string
}

// NewLockStore creates a new DynamoDB-backed sync lock store.
func NewLockStore(client DynamoDBAPI, tableName string, activeIndexName string) (*LockStore, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if tableName == "" {
		return nil, errors.New("table name is required")
	}
	if activeIndexName == "" {
		return nil, errors.New("active index name is required")
	}

	return &LockStore{
		activeIndexName: activeIndexName,
		client:          client,
		tableName:       tableName,
	}, nil
}

// IsLocked reports whether the course has an active lock.
func (s *LockStore) IsLocked(ctx context.Context, realisationID string) (bool, error) {
	if realisationID == "" {
		return false, errors.New("realisation ID is required")
	}

	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"realisation_id": &types.AttributeValueMemberS{Value: realisationID},
			"lock_key":       &types.AttributeValueMemberS{Value: activeLockKey},
		},
	})
	if err != nil {
		return false, fmt.Errorf("getting lock from DynamoDB: %w", err)
	}

	return output.Item != nil, nil
}

// SetLock places an active lock on a course. Returns ErrAlreadyLocked if the
// course already has one.
func (s *LockStore) SetLock(ctx context.Context, realisationID string, reason string) (*Lock, error) {
	if realisationID == "" {
		return nil, errors.New("realisation ID is required")
	}

	lock := Lock{
		Active:        true,
		CreatedAt:     time.Now().UTC(),
		LockID:        uuid.NewString(),
		RealisationID: realisationID,
		Reason:        reason,
	}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		ConditionExpression: aws.String("attribute_not_exists(lock_key)"),
		Item: map[string]types.AttributeValue{
			"realisation_id": &types.AttributeValueMemberS{Value: realisationID},
			"lock_key":       &types.AttributeValueMemberS{Value: activeLockKey},
			"lock_id":        &types.AttributeValueMemberS{Value: lock.LockID},
			"reason":         &types.AttributeValueMemberS{Value: reason},
			"active_flag":    &types.AttributeValueMemberS{Value: activeFlagValue},
			"created_at":     &types.AttributeValueMemberS{Value: lock.CreatedAt.Format(time.RFC3339)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, ErrAlreadyLocked
		}
		return nil, fmt.Errorf("putting lock to DynamoDB: %w", err)
	}

	return &lock, nil
}

// GetAndReleaseAllActiveLocks returns every active lock and releases it in
// the same operation. Each release is a conditional delete of the active row,
// so a lock is only ever returned by one caller; a second call returns an
// empty set. Released locks are kept as historical rows.
func (s *LockStore) GetAndReleaseAllActiveLocks(ctx context.Context) ([]Lock, error) {
	var active []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue

	for {
		output, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String(s.activeIndexName),
			KeyConditionExpression: aws.String("active_flag = :active"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":active": &types.AttributeValueMemberS{Value: activeFlagValue},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("querying active locks: %w", err)
		}

		active = append(active, output.Items...)

		if output.LastEvaluatedKey == nil {
			break
		}
		startKey = output.LastEvaluatedKey
	}

	var released []Lock
	for _, item := range active {
		realisationID := stringAttr(item, "realisation_id")

		output, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"realisation_id": &types.AttributeValueMemberS{Value: realisationID},
				"lock_key":       &types.AttributeValueMemberS{Value: activeLockKey},
			},
			ConditionExpression: aws.String("attribute_exists(lock_key)"),
			ReturnValues:        types.ReturnValueAllOld,
		})
		if err != nil {
			// Lost the race to another releaser; that caller owns the lock.
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				continue
			}
			return released, fmt.Errorf("releasing lock for %s: %w", realisationID, err)
		}

		lock := parseLock(output.Attributes)
		lock.Active = false
		lock.ReleasedAt = time.Now().UTC()
		released = append(released, lock)

		if err := s.putHistoricalLock(ctx, lock); err != nil {
			return released, err
		}
	}

	return released, nil
}

// putHistoricalLock writes the released lock under its lock id for audit.
func (s *LockStore) putHistoricalLock(ctx context.Context, lock Lock) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"realisation_id": &types.AttributeValueMemberS{Value: lock.RealisationID},
			"lock_key":       &types.AttributeValueMemberS{Value: "LOCK#" + lock.LockID},
			"lock_id":        &types.AttributeValueMemberS{Value: lock.LockID},
			"reason":         &types.AttributeValueMemberS{Value: lock.Reason},
			"created_at":     &types.AttributeValueMemberS{Value: lock.CreatedAt.Format(time.RFC3339)},
			"released_at":    &types.AttributeValueMemberS{Value: lock.ReleasedAt.Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("putting historical lock to DynamoDB: %w", err)
	}

	return nil
}

// parseLock reads a lock from a DynamoDB item.
func parseLock(item map[string]types.AttributeValue) Lock {
	return Lock{
		Active:        stringAttr(item, "active_flag") == activeFlagValue,
		CreatedAt:     timeAttr(item, "created_at"),
		LockID:        stringAttr(item, "lock_id"),
		RealisationID: stringAttr(item, "realisation_id"),
		Reason:        stringAttr(item, "reason"),
		ReleasedAt:    timeAttr(item, "released_at"),
	}
}
