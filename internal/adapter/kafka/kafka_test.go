package kafka

import (
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("key-1"),
		Value:     []byte(`{"id":"r-1"}`),
		Topic:     "extracted-reports",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("red_cross")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("key-1"), raw.Key)
	assert.JSONEq(t, `{"id":"r-1"}`, string(raw.Value))
	assert.Equal(t, "extracted-reports", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "red_cross", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestSerializeToMessage(t *testing.T) {
	conf := 0.9
	report := domain.Report{
		ID:           "r-1",
		EventType:    "flood",
		Location:     "Dhaka",
		Source:       "red_cross",
		Reporter:     "unknown",
		Confidence:   &conf,
		VeracityFlag: domain.VeracityVerified,
	}

	msg, err := serializeToMessage(report)
	require.NoError(t, err)

	assert.Equal(t, []byte("r-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"event_type":"flood"`)
	assert.Contains(t, string(msg.Value), `"veracity_flag":"verified"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("flood"), msg.Headers[0].Value)
	assert.Equal(t, "veracity_flag", msg.Headers[1].Key)
	assert.Equal(t, []byte("verified"), msg.Headers[1].Value)

	decoded, err := domain.ParseReport(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, report, decoded)
}

func TestSerializeToMessage_NoIDLeavesKeyEmpty(t *testing.T) {
	msg, err := serializeToMessage(domain.Report{EventType: "fire"})
	require.NoError(t, err)
	assert.Nil(t, msg.Key)
}
