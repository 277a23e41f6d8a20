package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestConsumerProcessRecordsBlocksPartitionOnFailure(t *testing.T) {
	logger := logrus.New()
	consumer := &Consumer{
		logger:   logger,
		handlers: make(map[string]Handler),
	}

	var handled []string
	consumer.handlers["chat.queries"] = func(_ context.Context, msg Message) error {
		handled = append(handled, recordKey(msg.Topic, msg.Partition, msg.Offset))
		if msg.Partition == 0 && msg.Offset == 1 {
			return errors.New("handler failure")
		}
		return nil
	}

	records := []*kgo.Record{
		{Topic: "chat.queries", Partition: 0, Offset: 0},
		{Topic: "chat.queries", Partition: 0, Offset: 1},
		{Topic: "chat.queries", Partition: 0, Offset: 2},
		{Topic: "chat.queries", Partition: 1, Offset: 0},
		{Topic: "chat.queries", Partition: 1, Offset: 1},
	}

	commitRecords := consumer.processRecords(context.Background(), records)

	// Offset 2 on partition 0 must be skipped after the failure at offset 1;
	// partition 1 is unaffected.
	sort.Strings(handled)
	expectedHandled := []string{
		recordKey("chat.queries", 0, 0),
		recordKey("chat.queries", 0, 1),
		recordKey("chat.queries", 1, 0),
		recordKey("chat.queries", 1, 1),
	}
	sort.Strings(expectedHandled)
	assertSameKeys(t, "handled records", handled, expectedHandled)

	commitKeys := make([]string, 0, len(commitRecords))
	for _, record := range commitRecords {
		commitKeys = append(commitKeys, recordKey(record.Topic, record.Partition, record.Offset))
	}
	sort.Strings(commitKeys)

	expectedCommitKeys := []string{
		recordKey("chat.queries", 0, 0),
		recordKey("chat.queries", 1, 1),
	}
	sort.Strings(expectedCommitKeys)
	assertSameKeys(t, "commit records", commitKeys, expectedCommitKeys)
}

func TestConsumerProcessRecordsCommitsUnhandledTopics(t *testing.T) {
	consumer := &Consumer{
		logger:   logrus.New(),
		handlers: make(map[string]Handler),
	}

	records := []*kgo.Record{
		{Topic: "chat.unknown", Partition: 0, Offset: 5},
	}

	commitRecords := consumer.processRecords(context.Background(), records)
	if len(commitRecords) != 1 || commitRecords[0].Offset != 5 {
		t.Fatalf("expected the unhandled record to be committed, got %v", commitRecords)
	}
}

func recordKey(topic string, partition int32, offset int64) string {
	return fmt.Sprintf("%s:%d:%d", topic, partition, offset)
}

func assertSameKeys(t *testing.T, what string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", what, got, want)
	}
	for i, value := range got {
		if value != want[i] {
			t.Fatalf("%s = %v, want %v", what, got, want)
		}
	}
}
