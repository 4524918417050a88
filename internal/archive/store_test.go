package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medici-leads/internal/leads"
)

// mockS3Client records PutObject/GetObject calls for testing.
type mockS3Client struct {
	putCalls []putCall
	objects  map[string][]byte
}

type putCall struct {
	bucket string
	key    string
	body   []byte
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.putCalls = append(m.putCalls, putCall{bucket: *input.Bucket, key: *input.Key, body: body})
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func fixedStore(mock S3API) *Store {
	s := NewStore(mock, "test-bucket", nil)
	s.now = func() time.Time { return time.Date(2026, 2, 12, 15, 0, 0, 0, time.UTC) }
	return s
}

func TestStore_ArchiveLead(t *testing.T) {
	mock := newMockS3()
	store := fixedStore(mock)

	lead := &leads.Lead{
		ID:         "lead-123",
		Name:       "Ana",
		Email:      "ana@example.com",
		Phone:      "+380501234567",
		Service:    "consulting",
		Message:    "reach me at ana.work@example.org",
		UTM:        leads.UTM{Source: "google", Medium: "cpc"},
		ScoreLabel: "warm",
	}
	require.NoError(t, store.ArchiveLead(context.Background(), lead))

	require.Len(t, mock.putCalls, 2)
	assert.Equal(t, "test-bucket", mock.putCalls[0].bucket)
	assert.Equal(t, "leads/v1/by-date/2026/02/12/lead-123.json", mock.putCalls[0].key)

	var decoded LeadRecord
	require.NoError(t, json.Unmarshal(mock.putCalls[0].body, &decoded))
	assert.Equal(t, Hash("ana@example.com"), decoded.EmailHash)
	assert.Equal(t, "example.com", decoded.EmailDomain)
	assert.Equal(t, "reach me at [EMAIL]", decoded.Message)
	assert.NotContains(t, string(mock.putCalls[0].body), "Ana")

	assert.Equal(t, "leads/v1/manifests/2026-02.jsonl", mock.putCalls[1].key)
	var entry ManifestEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(mock.putCalls[1].body), &entry))
	assert.Equal(t, "lead-123", entry.LeadID)
	assert.Equal(t, "google", entry.UTMSource)
}

func TestStore_Disabled(t *testing.T) {
	store := NewStore(nil, "", nil)
	assert.False(t, store.Enabled())
	assert.NoError(t, store.ArchiveLead(context.Background(), &leads.Lead{}))
}

func TestStore_ManifestAppend(t *testing.T) {
	mock := newMockS3()
	store := fixedStore(mock)

	require.NoError(t, store.AppendManifest(context.Background(), ManifestEntry{LeadID: "l-1"}))
	require.NoError(t, store.AppendManifest(context.Background(), ManifestEntry{LeadID: "l-2"}))

	lastPut := mock.putCalls[len(mock.putCalls)-1]
	lines := bytes.Split(bytes.TrimSpace(lastPut.body), []byte("\n"))
	assert.Len(t, lines, 2)
}
