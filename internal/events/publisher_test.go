package events

import "testing"

func TestPublish_NilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	if err := p.Publish(SubjectExtractionCompleted, map[string]any{"version": 1}); err != nil {
		t.Fatalf("nil publisher must drop events silently, got %v", err)
	}
	p.Close()
}
