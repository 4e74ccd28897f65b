package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ImportStatus is the lifecycle state of a course import.
type ImportStatus string

const (
	// ImportStatusInProgress marks an import that has started but not finished.
	ImportStatusInProgress ImportStatus = "IN_PROGRESS"

	// ImportStatusCompleted marks a successfully finished import.
	ImportStatusCompleted ImportStatus = "COMPLETED"

	// ImportStatusCompletedFailed marks an import that finished with failures
	// or was force-failed by the stuck-import sweep.
	ImportStatusCompletedFailed ImportStatus = "COMPLETED_FAILED"
)

// ErrCourseExists is returned when creating a course whose realisation id is
// already registered.
var ErrCourseExists = errors.New("course already exists for realisation id")

// Course is one course realisation known to the sync service.
type Course struct {
	// CourseID is the Moodle-internal course id.
	CourseID int64

	// CreatedAt is when the course was first imported.
	CreatedAt time.Time

	// ImportStatus is the import lifecycle state.
	ImportStatus ImportStatus

	// ModifiedAt is when the record last changed.
	ModifiedAt time.Time

	// RealisationID is the source registry key for the course offering.
	RealisationID string
}

// CourseRegistry tracks courses known to the sync service in DynamoDB.
// Realisation id is the table key, so at most one course exists per
// realisation id.
type CourseRegistry struct {
	// client is the DynamoDB API client.
	client DynamoDBAPI

	// statusIndexName is the import status GSI.
	statusIndexName string

	// tableName is the name of the DynamoDB table.
	tableName string
}

// NewCourseRegistry creates a new DynamoDB-backed course registry.
func NewCourseRegistry(client DynamoDBAPI, tableName string, statusIndexName string) (*CourseRegistry, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if tableName == "" {
		return nil, errors.New("table name is required")
	}
	if statusIndexName == "" {
		return nil, errors.New("status index name is required")
	}

	return &CourseRegistry{
		client:          client,
		statusIndexName: statusIndexName,
		tableName:       tableName,
	}, nil
}

// Create registers a new course in IN_PROGRESS state. Returns ErrCourseExists
// if a course with the same realisation id is already registered.
func (r *CourseRegistry) Create(ctx context.Context, realisationID string, courseID int64) (*Course, error) {
	if realisationID == "" {
		return nil, errors.New("realisation ID is required")
	}

	now := time.Now().UTC()
	course := Course{
		CourseID:      courseID,
		CreatedAt:     now,
		ImportStatus:  ImportStatusInProgress,
		ModifiedAt:    now,
		RealisationID: realisationID,
	}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		ConditionExpression: aws.String("attribute_not_exists(realisation_id)"),
		Item:                courseItem(course),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, ErrCourseExists
		}
		return nil, fmt.Errorf("putting course to DynamoDB: %w", err)
	}

	return &course, nil
}

// FindByRealisationID returns the course for a realisation id, or nil if the
// realisation is not registered.
func (r *CourseRegistry) FindByRealisationID(ctx context.Context, realisationID string) (*Course, error) {
	if realisationID == "" {
		return nil, errors.New("realisation ID is required")
	}

	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"realisation_id": &types.AttributeValueMemberS{Value: realisationID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting course from DynamoDB: %w", err)
	}

	if output.Item == nil {
		return nil, nil
	}

	course := parseCourse(output.Item)
	return &course, nil
}

// FindByImportStatus returns all courses in the given import state.
func (r *CourseRegistry) FindByImportStatus(ctx context.Context, status ImportStatus) ([]Course, error) {
	var courses []Course
	var startKey map[string]types.AttributeValue

	for {
		output, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String(r.statusIndexName),
			KeyConditionExpression: aws.String("import_status = :status"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status": &types.AttributeValueMemberS{Value: string(status)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("querying courses by status: %w", err)
		}

		for _, item := range output.Items {
			courses = append(courses, parseCourse(item))
		}

		if output.LastEvaluatedKey == nil {
			break
		}
		startKey = output.LastEvaluatedKey
	}

	return courses, nil
}

// CompletedCourses returns all previously imported courses, both the
// successfully completed and the completed-failed ones.
func (r *CourseRegistry) CompletedCourses(ctx context.Context) ([]Course, error) {
	completed, err := r.FindByImportStatus(ctx, ImportStatusCompleted)
	if err != nil {
		return nil, err
	}

	failed, err := r.FindByImportStatus(ctx, ImportStatusCompletedFailed)
	if err != nil {
		return nil, err
	}

	return append(completed, failed...), nil
}

// UpdateImportStatus transitions a course to the given import state.
func (r *CourseRegistry) UpdateImportStatus(ctx context.Context, realisationID string, status ImportStatus) error {
	if realisationID == "" {
		return errors.New("realisation ID is required")
	}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"realisation_id": &types.AttributeValueMemberS{Value: realisationID},
		},
		ConditionExpression: aws.String("attribute_exists(realisation_id)"),
		UpdateExpression:    aws.String("SET import_status = :status, modified_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":now":    &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("updating import status: %w", err)
	}

	return nil
}

// ForceFailStuckImports transitions courses that have been IN_PROGRESS since
// before the cutoff to COMPLETED_FAILED. The update is conditional on the
// course still being IN_PROGRESS, so a concurrently completing import wins.
// Returns the courses that were force-failed.
func (r *CourseRegistry) ForceFailStuckImports(ctx context.Context, cutoff time.Time) ([]Course, error) {
	inProgress, err := r.FindByImportStatus(ctx, ImportStatusInProgress)
	if err != nil {
		return nil, err
	}

	var failed []Course
	for _, course := range inProgress {
		if !course.CreatedAt.Before(cutoff) {
			continue
		}

		_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(r.tableName),
			Key: map[string]types.AttributeValue{
				"realisation_id": &types.AttributeValueMemberS{Value: course.RealisationID},
			},
			ConditionExpression: aws.String("import_status = :inprogress"),
			UpdateExpression:    aws.String("SET import_status = :failed, modified_at = :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":inprogress": &types.AttributeValueMemberS{Value: string(ImportStatusInProgress)},
				":failed":     &types.AttributeValueMemberS{Value: string(ImportStatusCompletedFailed)},
				":now":        &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			},
		})
		if err != nil {
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				continue
			}
			return failed, fmt.Errorf("force-failing course %s: %w", course.RealisationID, err)
		}

		course.ImportStatus = ImportStatusCompletedFailed
		failed = append(failed, course)
	}

	return failed, nil
}

// courseItem builds the DynamoDB item for a course.
func courseItem(course Course) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"realisation_id": &types.AttributeValueMemberS{Value: course.RealisationID},
		"course_id":      &types.AttributeValueMemberN{Value: strconv.FormatInt(course.CourseID, 10)},
		"import_status":  &types.AttributeValueMemberS{Value: string(course.ImportStatus)},
		"created_at":     &types.AttributeValueMemberS{Value: course.CreatedAt.Format(time.RFC3339)},
		"modified_at":    &types.AttributeValueMemberS{Value: course.ModifiedAt.Format(time.RFC3339)},
	}
}

// parseCourse reads a course from a DynamoDB item.
func parseCourse(item map[string]types.AttributeValue) Course {
	return Course{
		CourseID:      int64Attr(item, "course_id"),
		CreatedAt:     timeAttr(item, "created_at"),
		ImportStatus:  ImportStatus(stringAttr(item, "import_status")),
		ModifiedAt:    timeAttr(item, "modified_at"),
		RealisationID: stringAttr(item, "realisation_id"),
	}
}
