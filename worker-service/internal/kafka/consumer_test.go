package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yudduy/cma-analysis/internal/tracker"
	"github.com/yudduy/cma-analysis/worker-service/internal/models"
	"github.com/yudduy/cma-analysis/worker-service/internal/service"
)

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, m.Offset)
}

type fakeClaim struct {
	ch chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "tracker-events" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

type fakeProcessor struct {
	batches [][]*service.IncomingEvent
	err     error
}

func (p *fakeProcessor) ProcessWithRetry(_ context.Context, batch []*service.IncomingEvent, _ int) (models.BatchResult, error) {
	if p.err != nil {
		return models.BatchResult{}, p.err
	}
	cp := make([]*service.IncomingEvent, len(batch))
	copy(cp, batch)
	p.batches = append(p.batches, cp)
	return models.BatchResult{Received: len(batch), Inserted: len(batch)}, nil
}

type fakeArchiver struct {
	lines [][]byte
}

func (a *fakeArchiver) Archive(_ context.Context, source string, lines [][]byte) (string, error) {
	a.lines = append(a.lines, lines...)
	return source + "/key", nil
}

func envelope(t *testing.T, id, visitor string) []byte {
	t.Helper()
	b, err := json.Marshal(tracker.Envelope{
		EventID:    id,
		Event:      tracker.RawEvent{UUID: visitor, Event: "page_view"},
		IPAddress:  "192.0.2.1",
		ReceivedAt: time.Now(),
	})
	require.NoError(t, err)
	return b
}

func runClaim(t *testing.T, c *Consumer, msgs []*sarama.ConsumerMessage) *fakeSession {
	t.Helper()
	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, len(msgs))}
	for _, m := range msgs {
		claim.ch <- m
	}
	close(claim.ch)

	sess := &fakeSession{ctx: context.Background()}
	h := &consumerGroupHandler{consumer: c}
	require.NoError(t, h.ConsumeClaim(sess, claim))
	return sess
}

func TestConsumeClaim_FlushesAndMarks(t *testing.T) {
	proc := &fakeProcessor{}
	arch := &fakeArchiver{}
	c := &Consumer{processor: proc, archiver: arch, batchSize: 2, flushInterval: time.Minute}

	msgs := []*sarama.ConsumerMessage{
		{Offset: 1, Value: envelope(t, "e1", "u1")},
		{Offset: 2, Value: []byte("{broken")},
		{Offset: 3, Value: envelope(t, "e2", "u1")},
		{Offset: 4, Value: envelope(t, "e3", "u2")},
	}
	sess := runClaim(t, c, msgs)

	require.Len(t, proc.batches, 2)
	assert.Len(t, proc.batches[0], 2)
	assert.Len(t, proc.batches[1], 1)
	assert.Equal(t, []int64{3, 4}, sess.marked)
	assert.Len(t, arch.lines, 3)
}

func TestConsumeClaim_FailedBatchNotMarked(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("db down")}
	c := &Consumer{processor: proc, batchSize: 10, flushInterval: time.Minute}

	sess := runClaim(t, c, []*sarama.ConsumerMessage{{Offset: 7, Value: envelope(t, "e1", "u1")}})
	assert.Empty(t, sess.marked)
}

func TestConsumeClaim_OnlyMalformedStillMarked(t *testing.T) {
	proc := &fakeProcessor{}
	c := &Consumer{processor: proc, batchSize: 10, flushInterval: time.Minute}

	sess := runClaim(t, c, []*sarama.ConsumerMessage{{Offset: 9, Value: []byte("nope")}})
	assert.Empty(t, proc.batches)
	assert.Equal(t, []int64{9}, sess.marked)
}

func TestDecodeMessage(t *testing.T) {
	in, err := DecodeMessage(&sarama.ConsumerMessage{Value: envelope(t, "e1", "u1")})
	require.NoError(t, err)
	assert.Equal(t, "u1", in.Raw.UUID)
	assert.Equal(t, "192.0.2.1", in.IPAddress)
	assert.Equal(t, tracker.SourceCollector, in.Source)
	assert.Equal(t, tracker.Fingerprint([]byte("e1"), 0), in.Fingerprint)

	noID, err := DecodeMessage(&sarama.ConsumerMessage{Topic: "t", Partition: 1, Offset: 5, Value: envelope(t, "", "u1")})
	require.NoError(t, err)
	assert.Equal(t, tracker.Fingerprint([]byte("t/1/5"), 0), noID.Fingerprint)

	_, err = DecodeMessage(&sarama.ConsumerMessage{Value: []byte("[")})
	assert.Error(t, err)
}
