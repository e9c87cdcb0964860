package leads

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifierPublishesLeadCreated(t *testing.T) {
	w := &recordingWriter{}
	n := &KafkaNotifier{writer: w}

	lead := NewLead(validSubmission())
	lead.Segment = "home"
	require.NoError(t, n.Notify(context.Background(), lead))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, lead.ID, string(w.msgs[0].Key))

	var ev map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "lead.created", ev["type"])
	assert.Equal(t, lead.Email, ev["email"])
	assert.Equal(t, "home", ev["segment"])
	assert.NotContains(t, ev, "message")

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaNotifierSplitsBrokers(t *testing.T) {
	n := NewKafkaNotifier(" kafka-1:9092, ,kafka-2:9092", "leads")
	kw, ok := n.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "leads", kw.Topic)
	assert.Contains(t, kw.Addr.String(), "kafka-1:9092")
	assert.Contains(t, kw.Addr.String(), "kafka-2:9092")
}
