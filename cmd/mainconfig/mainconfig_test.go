package mainconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/medici-leads/internal/config"
)

func TestAWSRequired(t *testing.T) {
	tests := []struct {
		name string
		cfg  *appconfig.Config
		want bool
	}{
		{"nil config", nil, false},
		{"nothing configured", &appconfig.Config{}, false},
		{"archive bucket", &appconfig.Config{ArchiveBucket: "leads-archive"}, true},
		{"ses sender", &appconfig.Config{SESFromEmail: "leads@medici.test"}, true},
		{"jobs table", &appconfig.Config{DeliveryJobsTable: "delivery-jobs"}, true},
		{"queue with memory override", &appconfig.Config{DeliveryQueueURL: "https://sqs/q", UseMemoryQueue: true}, false},
		{"sqs queue", &appconfig.Config{DeliveryQueueURL: "https://sqs/q"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AWSRequired(tt.cfg))
		})
	}
}

func TestLoadOptionalAWSConfigSkipsWhenUnused(t *testing.T) {
	awsCfg, err := LoadOptionalAWSConfig(context.Background(), &appconfig.Config{})
	require.NoError(t, err)
	assert.Nil(t, awsCfg)
}

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	cfg := &appconfig.Config{
		AWSRegion:           "us-west-2",
		AWSAccessKeyID:      "AKIATEST",
		AWSSecretAccessKey:  "secret",
		AWSEndpointOverride: "http://localhost:4566",
	}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", awsCfg.Region)

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIATEST", creds.AccessKeyID)

	ep, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint("SQS", "us-west-2")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4566", ep.URL)
}
