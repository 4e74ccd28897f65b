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
	"github.com/google/uuid"
)

// EnrollmentStatusRecord is one append-only audit row describing a course's
// last-known enrollment outcome. Rows are never updated in place; the latest
// row per course is the reference.
type EnrollmentStatusRecord struct {
	// CourseID is the Moodle-internal course id.
	CourseID int64

	// CreatedAt is when the record was written.
	CreatedAt time.Time

	// RealisationID is the source registry key for the course offering.
	RealisationID string

	// StatusID identifies this record.
	StatusID string

	// StudentStatuses is the serialized per-student outcome list.
	StudentStatuses string

	// TeacherStatuses is the serialized per-teacher outcome list.
	TeacherStatuses string
}

// EnrollmentStatusStore appends enrollment outcome records to DynamoDB.
type EnrollmentStatusStore struct {
	// client is the DynamoDB API client.
	client DynamoDBAPI

	// courseIndexName is the GSI over realisation id, sorted by creation time.
	courseIndexName string

	// tableName is the name of the DynamoDB table.
	tableName string
}

// NewEnrollmentStatusStore creates a new DynamoDB-backed enrollment audit store.
func NewEnrollmentStatusStore(client DynamoDBAPI, tableName string, courseIndexName string) (*EnrollmentStatusStore, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if tableName == "" {
		return nil, errors.New("table name is required")
	}
	if courseIndexName == "" {
		return nil, errors.New("course index name is required")
	}

	return &EnrollmentStatusStore{
		client:          client,
		courseIndexName: courseIndexName,
		tableName:       tableName,
	}, nil
}

// Record appends a new enrollment status row.
func (s *EnrollmentStatusStore) Record(ctx context.Context, record EnrollmentStatusRecord) error {
	if record.RealisationID == "" {
		return errors.New("realisation ID is required")
	}

	if record.StatusID == "" {
		record.StatusID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"status_id":        &types.AttributeValueMemberS{Value: record.StatusID},
			"realisation_id":   &types.AttributeValueMemberS{Value: record.RealisationID},
			"course_id":        &types.AttributeValueMemberN{Value: strconv.FormatInt(record.CourseID, 10)},
			"student_statuses": &types.AttributeValueMemberS{Value: record.StudentStatuses},
			"teacher_statuses": &types.AttributeValueMemberS{Value: record.TeacherStatuses},
			"created_at":       &types.AttributeValueMemberS{Value: record.CreatedAt.Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("putting enrollment status to DynamoDB: %w", err)
	}

	return nil
}

// LatestForCourse returns the most recent enrollment status row for a course,
// or nil when the course has never been processed.
func (s *EnrollmentStatusStore) LatestForCourse(ctx context.Context, realisationID string) (*EnrollmentStatusRecord, error) {
	if realisationID == "" {
		return nil, errors.New("realisation ID is required")
	}

	output, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(s.courseIndexName),
		KeyConditionExpression: aws.String("realisation_id = :rid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid": &types.AttributeValueMemberS{Value: realisationID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("querying enrollment statuses: %w", err)
	}

	if len(output.Items) == 0 {
		return nil, nil
	}

	record := parseEnrollmentStatus(output.Items[0])
	return &record, nil
}

// parseEnrollmentStatus reads an enrollment status row from a DynamoDB item.
func parseEnrollmentStatus(item map[string]types.AttributeValue) EnrollmentStatusRecord {
	return EnrollmentStatusRecord{
		CourseID:        int64Attr(item, "course_id"),
		CreatedAt:       timeAttr(item, "created_at"),
		RealisationID:   stringAttr(item, "realisation_id"),
		StatusID:        stringAttr(item, "status_id"),
		StudentStatuses: stringAttr(item, "student_statuses"),
		TeacherStatuses: stringAttr(item, "teacher_statuses"),
	}
}
