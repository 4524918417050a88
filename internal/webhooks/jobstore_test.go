package webhooks

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDynamo struct {
	putInput     *dynamodb.PutItemInput
	updateInputs []*dynamodb.UpdateItemInput
	getItem      map[string]types.AttributeValue
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = in
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, in)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: m.getItem}, nil
}

func TestDynamoJobStore_PutPendingPersistsDefaults(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoJobStore(mock, "webhook_jobs")

	require.NoError(t, store.PutPending(context.Background(), &JobRecord{JobID: "job-1", DestinationID: "wh-1", Event: EventNewLead}))
	require.NotNil(t, mock.putInput)

	var stored JobRecord
	require.NoError(t, attributevalue.UnmarshalMap(mock.putInput.Item, &stored))
	assert.Equal(t, JobStatusPending, stored.Status)
	assert.NotEmpty(t, stored.CreatedAt)
	assert.Greater(t, stored.ExpiresAt, time.Now().Unix())
	require.NotNil(t, mock.putInput.ConditionExpression)
	assert.Equal(t, "attribute_not_exists(jobId)", *mock.putInput.ConditionExpression)

	assert.Error(t, store.PutPending(context.Background(), nil))
}

func TestDynamoJobStore_MarkFinishedUsesReservedNames(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoJobStore(mock, "webhook_jobs")

	require.NoError(t, store.MarkFinished(context.Background(), "job-1", JobStatusFailed, 3, "boom"))
	require.Len(t, mock.updateInputs, 1)
	update := mock.updateInputs[0]
	assert.Equal(t, "status", update.ExpressionAttributeNames["#status"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "3"}, update.ExpressionAttributeValues[":attempts"])

	assert.Error(t, store.MarkFinished(context.Background(), "", JobStatusFailed, 0, ""))
}

func TestDynamoJobStore_GetJob(t *testing.T) {
	item, err := attributevalue.MarshalMap(JobRecord{JobID: "job-1", Status: JobStatusDelivered, Attempts: 1})
	require.NoError(t, err)

	store := NewDynamoJobStore(&mockDynamo{getItem: item}, "webhook_jobs")
	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobStatusDelivered, job.Status)

	_, err = NewDynamoJobStore(&mockDynamo{}, "webhook_jobs").GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryJobStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()
	require.NoError(t, store.PutPending(ctx, &JobRecord{JobID: "j"}))
	assert.Error(t, store.PutPending(ctx, &JobRecord{JobID: "j"}))

	require.NoError(t, store.MarkFinished(ctx, "j", JobStatusSkipped, 0, "blocked"))
	job, err := store.GetJob(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, JobStatusSkipped, job.Status)
	assert.Equal(t, "blocked", job.ErrorMessage)

	assert.ErrorIs(t, store.MarkFinished(ctx, "nope", JobStatusFailed, 1, ""), ErrJobNotFound)
}
