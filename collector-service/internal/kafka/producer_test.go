package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yudduy/cma-analysis/internal/tracker"
)

func TestSendEvent(t *testing.T) {
	mp := mocks.NewSyncProducer(t, NewSaramaConfig())
	p := NewProducerWith(mp, "tracker-events")

	env := Envelope(tracker.RawEvent{UUID: "visitor-1", Event: "page_view"}, "192.0.2.7", "evt-1", time.Now())

	mp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got tracker.Envelope
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.EventID != "evt-1" || got.Event.UUID != "visitor-1" || got.IPAddress != "192.0.2.7" {
			return errors.New("unexpected envelope")
		}
		return nil
	})

	require.NoError(t, p.SendEvent(context.Background(), env))
	require.NoError(t, mp.Close())
}

func TestSendEvent_Failure(t *testing.T) {
	mp := mocks.NewSyncProducer(t, NewSaramaConfig())
	p := NewProducerWith(mp, "tracker-events")

	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := p.SendEvent(context.Background(), Envelope(tracker.RawEvent{UUID: "v", Event: "e"}, "", "id", time.Now()))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, mp.Close())
}

func TestSendEventBatch(t *testing.T) {
	mp := mocks.NewSyncProducer(t, NewSaramaConfig())
	p := NewProducerWith(mp, "tracker-events")

	mp.ExpectSendMessageAndSucceed()
	mp.ExpectSendMessageAndSucceed()

	envs := []tracker.Envelope{
		Envelope(tracker.RawEvent{UUID: "a", Event: "page_view"}, "", "1", time.Now()),
		Envelope(tracker.RawEvent{UUID: "b", Event: "page_view"}, "", "2", time.Now()),
	}
	require.NoError(t, p.SendEventBatch(context.Background(), envs))
	require.NoError(t, mp.Close())
}

func TestMessageKeyedByVisitor(t *testing.T) {
	p := NewProducerWith(nil, "tracker-events")
	msg, err := p.message(Envelope(tracker.RawEvent{UUID: "visitor-9", Event: "page_view"}, "", "x", time.Now()))
	require.NoError(t, err)

	key, err := msg.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "visitor-9", string(key))
	assert.Equal(t, "tracker-events", msg.Topic)
}
