package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const jobTTL = 7 * 24 * time.Hour

// JobStatus is the lifecycle of a delivery job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusDelivered JobStatus = "delivered"
	JobStatusFailed    JobStatus = "failed"
	JobStatusSkipped   JobStatus = "skipped"
)

// ErrJobNotFound indicates the requested job ID does not exist.
var ErrJobNotFound = errors.New("webhooks: job not found")

// JobRecord is the persisted state of a delivery job.
type JobRecord struct {
	JobID         string    `dynamodbav:"jobId" json:"job_id"`
	DestinationID string    `dynamodbav:"destinationId" json:"destination_id"`
	Event         Event     `dynamodbav:"event" json:"event"`
	Status        JobStatus `dynamodbav:"status" json:"status"`
	Attempts      int       `dynamodbav:"attempts" json:"attempts"`
	ErrorMessage  string    `dynamodbav:"errorMessage,omitempty" json:"error,omitempty"`
	CreatedAt     string    `dynamodbav:"createdAt" json:"created_at"`
	UpdatedAt     string    `dynamodbav:"updatedAt" json:"updated_at"`
	ExpiresAt     int64     `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// JobStore tracks delivery job outcomes.
type JobStore interface {
	PutPending(ctx context.Context, job *JobRecord) error
	MarkFinished(ctx context.Context, jobID string, status JobStatus, attempts int, errMsg string) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
}

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoJobStore persists job records to DynamoDB.
type DynamoJobStore struct {
	client    dynamoAPI
	tableName string
}

var _ JobStore = (*DynamoJobStore)(nil)

// NewDynamoJobStore builds a store backed by the provided DynamoDB client.
func NewDynamoJobStore(client dynamoAPI, tableName string) *DynamoJobStore {
	if client == nil {
		panic("webhooks: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("webhooks: table name cannot be empty")
	}
	return &DynamoJobStore{client: client, tableName: tableName}
}

// PutPending inserts a new pending job record.
func (s *DynamoJobStore) PutPending(ctx context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("webhooks: job cannot be nil")
	}
	stampPending(job, time.Now().UTC())

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("webhooks: failed to marshal job: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("webhooks: failed to persist job: %w", err)
	}
	return nil
}

// MarkFinished records the terminal status of a job.
func (s *DynamoJobStore) MarkFinished(ctx context.Context, jobID string, status JobStatus, attempts int, errMsg string) error {
	if jobID == "" {
		return errors.New("webhooks: jobID required")
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression: aws.String("SET #status = :status, attempts = :attempts, #error = :error, #updated = :updated"),
		ExpressionAttributeNames: map[string]string{
			"#status":  "status",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":   &types.AttributeValueMemberS{Value: string(status)},
			":attempts": &types.AttributeValueMemberN{Value: strconv.Itoa(attempts)},
			":error":    &types.AttributeValueMemberS{Value: errMsg},
			":updated":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("webhooks: failed to update job: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *DynamoJobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("webhooks: jobID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("webhooks: failed to fetch job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}
	var job JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("webhooks: failed to decode job: %w", err)
	}
	return &job, nil
}

// MemoryJobStore tracks jobs in process.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]JobRecord
}

var _ JobStore = (*MemoryJobStore)(nil)

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]JobRecord)}
}

func (s *MemoryJobStore) PutPending(_ context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("webhooks: job cannot be nil")
	}
	stampPending(job, time.Now().UTC())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; exists {
		return fmt.Errorf("webhooks: job %s already exists", job.JobID)
	}
	s.jobs[job.JobID] = *job
	return nil
}

func (s *MemoryJobStore) MarkFinished(_ context.Context, jobID string, status JobStatus, attempts int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.Attempts = attempts
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func stampPending(job *JobRecord, now time.Time) {
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}
}
