package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/wolfman30/medici-leads/pkg/logging"
)

type stubProcessor struct {
	bodies []string
}

func (s *stubProcessor) Process(_ context.Context, body string) error {
	s.bodies = append(s.bodies, body)
	if body == "not-json" {
		return errors.New("decode job")
	}
	return nil
}

func TestHandleReportsOnlyMalformedRecords(t *testing.T) {
	p := &stubProcessor{}
	evt := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-1", Body: `{"id":"job-1"}`},
		{MessageId: "m-2", Body: "not-json"},
		{MessageId: "m-3", Body: `{"id":"job-3"}`},
	}}

	resp := handle(context.Background(), p, logging.New("error"), evt)

	if len(p.bodies) != 3 {
		t.Fatalf("expected every record processed, got %d", len(p.bodies))
	}
	if len(resp.BatchItemFailures) != 1 {
		t.Fatalf("expected one failure, got %d", len(resp.BatchItemFailures))
	}
	if resp.BatchItemFailures[0].ItemIdentifier != "m-2" {
		t.Fatalf("expected m-2 to fail, got %q", resp.BatchItemFailures[0].ItemIdentifier)
	}
}

func TestHandleEmptyBatch(t *testing.T) {
	resp := handle(context.Background(), &stubProcessor{}, logging.New("error"), events.SQSEvent{})
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("expected no failures, got %d", len(resp.BatchItemFailures))
	}
}
