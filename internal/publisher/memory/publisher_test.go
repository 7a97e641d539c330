package memory

import (
	"context"
	"testing"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "catalog-refresh", map[string]int{"records": 42})
	if err != nil || id != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 1 || msgs[0].Topic != "catalog-refresh" {
		t.Fatalf("message not recorded: %+v", msgs)
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}
