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

// RunStatus is the lifecycle state of a synchronization job run.
type RunStatus string

const (
	// RunStatusStarted marks a run currently in flight.
	RunStatusStarted RunStatus = "STARTED"

	// RunStatusCompletedSuccess marks a run in which every item succeeded.
	RunStatusCompletedSuccess RunStatus = "COMPLETED_SUCCESS"

	// RunStatusCompletedFailure marks a run with at least one failed item or
	// an aborted load phase.
	RunStatusCompletedFailure RunStatus = "COMPLETED_FAILURE"

	// RunStatusInterrupted marks a run whose STARTED row survived a process
	// restart. It is never re-run automatically.
	RunStatusInterrupted RunStatus = "INTERRUPTED"
)

// ErrRunInFlight is returned by Begin when a run of the same type already has
// a STARTED row.
var ErrRunInFlight = errors.New("a run of this type is already in flight")

// JobRun is one record per synchronization run.
type JobRun struct {
	// CompletedAt is when the run finished, or zero while in flight.
	CompletedAt time.Time

	// Message is the human-readable run outcome.
	Message string

	// RunID identifies the run.
	RunID string

	// StartedAt is when the run started.
	StartedAt time.Time

	// Status is the run lifecycle state.
	Status RunStatus

	// Type is the synchronization type of the run.
	Type string
}

// JobRunStore records synchronization runs in DynamoDB. A conditional marker
// row per run type refuses a second concurrent STARTED run, giving an
// advisory run-level lock; the interrupted-run sweep releases the marker of a
// crashed run.
type JobRunStore struct {
	// client is the DynamoDB API client.
	client DynamoDBAPI

	// statusIndexName is the GSI over run status.
	statusIndexName string

	// tableName is the name of the DynamoDB table.
	tableName string

	// typeIndexName is the GSI over run type, sorted by completion time.
	typeIndexName string
}

// NewJobRunStore creates a new DynamoDB-backed job run store.
func NewJobRunStore(
	client DynamoDBAPI,
	tableName string,
	typeIndexName string,
	statusIndexName string,
) (*JobRunStore, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if tableName == "" {
		return nil, errors.New("table name is required")
	}
	if typeIndexName == "" {
		return nil, errors.New("type index name is required")
	}
	if statusIndexName == "" {
		return nil, errors.New("status index name is required")
	}

	return &JobRunStore{
		client:          client,
		statusIndexName: statusIndexName,
		tableName:       tableName,
		typeIndexName:   typeIndexName,
	}, nil
}

// Begin records the start of a run and returns its id. Returns ErrRunInFlight
// if a run of the same type is already STARTED.
func (s *JobRunStore) Begin(ctx context.Context, runType string) (string, error) {
	if runType == "" {
		return "", errors.New("run type is required")
	}

	runID := uuid.NewString()

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		ConditionExpression: aws.String("attribute_not_exists(run_id)"),
		Item: map[string]types.AttributeValue{
			"run_id":        &types.AttributeValueMemberS{Value: markerKey(runType)},
			"active_run_id": &types.AttributeValueMemberS{Value: runID},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return "", ErrRunInFlight
		}
		return "", fmt.Errorf("putting run marker to DynamoDB: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"run_id":     &types.AttributeValueMemberS{Value: runID},
			"run_type":   &types.AttributeValueMemberS{Value: runType},
			"run_status": &types.AttributeValueMemberS{Value: string(RunStatusStarted)},
			"started_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("putting job run to DynamoDB: %w", err)
	}

	return runID, nil
}

// Complete records the outcome of a run and releases its run-type marker.
func (s *JobRunStore) Complete(
	ctx context.Context,
	runID string,
	runType string,
	status RunStatus,
	message string,
) error {
	if runID == "" {
		return errors.New("run ID is required")
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"run_id": &types.AttributeValueMemberS{Value: runID},
		},
		ConditionExpression: aws.String("attribute_exists(run_id)"),
		UpdateExpression:    aws.String("SET run_status = :status, message = :message, completed_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(status)},
			":message": &types.AttributeValueMemberS{Value: message},
			":now":     &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("completing job run: %w", err)
	}

	if err := s.releaseMarker(ctx, runType); err != nil {
		return err
	}

	return nil
}

// FindLatestCompleted returns the most recently completed run of a type, or
// nil when no run of that type has ever completed.
func (s *JobRunStore) FindLatestCompleted(ctx context.Context, runType string) (*JobRun, error) {
	return s.latestByType(ctx, runType, RunStatusCompletedSuccess, RunStatusCompletedFailure)
}

// FindLatestSuccessful returns the most recent successful run of a type, or
// nil when no run of that type has ever succeeded.
func (s *JobRunStore) FindLatestSuccessful(ctx context.Context, runType string) (*JobRun, error) {
	return s.latestByType(ctx, runType, RunStatusCompletedSuccess)
}

// latestByType returns the newest run of a type in one of the given states.
// STARTED rows never carry completed_at and are therefore absent from the
// sparse type index.
func (s *JobRunStore) latestByType(ctx context.Context, runType string, statuses ...RunStatus) (*JobRun, error) {
	if runType == "" {
		return nil, errors.New("run type is required")
	}

	filter := "run_status = :s0"
	values := map[string]types.AttributeValue{
		":type": &types.AttributeValueMemberS{Value: runType},
		":s0":   &types.AttributeValueMemberS{Value: string(statuses[0])},
	}
	for i, status := range statuses[1:] {
		key := fmt.Sprintf(":s%d", i+1)
		filter += fmt.Sprintf(" OR run_status = %s", key)
		values[key] = &types.AttributeValueMemberS{Value: string(status)}
	}

	output, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(s.typeIndexName),
		KeyConditionExpression:    aws.String("run_type = :type"),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("querying job runs by type: %w", err)
	}

	if len(output.Items) == 0 {
		return nil, nil
	}

	run := parseJobRun(output.Items[0])
	return &run, nil
}

// FindInterrupted returns all runs marked INTERRUPTED.
func (s *JobRunStore) FindInterrupted(ctx context.Context) ([]JobRun, error) {
	return s.findByStatus(ctx, RunStatusInterrupted)
}

// MarkInterrupted flips every lingering STARTED run to INTERRUPTED and
// releases its run-type marker. Called at process start so a crashed run is
// never mistaken for a live or successful one. Returns the runs it marked.
func (s *JobRunStore) MarkInterrupted(ctx context.Context) ([]JobRun, error) {
	started, err := s.findByStatus(ctx, RunStatusStarted)
	if err != nil {
		return nil, err
	}

	var marked []JobRun
	for _, run := range started {
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"run_id": &types.AttributeValueMemberS{Value: run.RunID},
			},
			ConditionExpression: aws.String("run_status = :started"),
			UpdateExpression:    aws.String("SET run_status = :interrupted, completed_at = :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":started":     &types.AttributeValueMemberS{Value: string(RunStatusStarted)},
				":interrupted": &types.AttributeValueMemberS{Value: string(RunStatusInterrupted)},
				":now":         &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			},
		})
		if err != nil {
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				continue
			}
			return marked, fmt.Errorf("marking run %s interrupted: %w", run.RunID, err)
		}

		if err := s.releaseMarker(ctx, run.Type); err != nil {
			return marked, err
		}

		run.Status = RunStatusInterrupted
		marked = append(marked, run)
	}

	return marked, nil
}

// findByStatus returns all runs in the given state.
func (s *JobRunStore) findByStatus(ctx context.Context, status RunStatus) ([]JobRun, error) {
	var runs []JobRun
	var startKey map[string]types.AttributeValue

	for {
		output, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String(s.statusIndexName),
			KeyConditionExpression: aws.String("run_status = :status"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status": &types.AttributeValueMemberS{Value: string(status)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("querying job runs by status: %w", err)
		}

		for _, item := range output.Items {
			runs = append(runs, parseJobRun(item))
		}

		if output.LastEvaluatedKey == nil {
			break
		}
		startKey = output.LastEvaluatedKey
	}

	return runs, nil
}

// releaseMarker deletes the run-type marker row if present.
func (s *JobRunStore) releaseMarker(ctx context.Context, runType string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"run_id": &types.AttributeValueMemberS{Value: markerKey(runType)},
		},
	})
	if err != nil {
		return fmt.Errorf("releasing run marker: %w", err)
	}

	return nil
}

// markerKey is the run-id of the advisory marker row for a run type.
func markerKey(runType string) string {
	return "CURRENT#" + runType
}

// parseJobRun reads a job run from a DynamoDB item.
func parseJobRun(item map[string]types.AttributeValue) JobRun {
	return JobRun{
		CompletedAt: timeAttr(item, "completed_at"),
		Message:     stringAttr(item, "message"),
		RunID:       stringAttr(item, "run_id"),
		StartedAt:   timeAttr(item, "started_at"),
		Status:      RunStatus(stringAttr(item, "run_status")),
		Type:        stringAttr(item, "run_type"),
	}
}
