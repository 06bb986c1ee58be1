package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

type fakeMsg struct {
	jetstream.Msg

	data []byte

	acked      bool
	naked      bool
	nakDelay   time.Duration
	terminated bool
}

func (m *fakeMsg) Data() []byte    { return m.data }
func (m *fakeMsg) Subject() string { return "evidence.jobs.full" }

func (m *fakeMsg) Ack() error {
	m.acked = true
	return nil
}

func (m *fakeMsg) Nak() error {
	m.naked = true
	return nil
}

func (m *fakeMsg) NakWithDelay(d time.Duration) error {
	m.naked = true
	m.nakDelay = d

	return nil
}

func (m *fakeMsg) Term() error {
	m.terminated = true
	return nil
}

func (m *fakeMsg) InProgress() error { return nil }

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{NumDelivered: 1}, nil
}

type fakeHandler struct {
	err  error
	jobs []*models.Job
}

func (h *fakeHandler) Handle(_ context.Context, job *models.Job) error {
	h.jobs = append(h.jobs, job)
	return h.err
}

func testConsumer(handler Handler) *Consumer {
	cfg := &models.QueueConfig{}
	applyDefaults(cfg)

	return &Consumer{cfg: cfg, handler: handler, logger: logger.NewTestLogger()}
}

func jobBytes(t *testing.T, op models.Operation) []byte {
	t.Helper()

	data, err := json.Marshal(&models.Job{ID: uuid.New(), CaseID: 1, Operation: op})
	require.NoError(t, err)

	return data
}

func TestHandleMessageAcksOnSuccess(t *testing.T) {
	handler := &fakeHandler{}
	consumer := testConsumer(handler)
	msg := &fakeMsg{data: jobBytes(t, models.OperationFull)}

	consumer.handleMessage(context.Background(), msg)

	assert.True(t, msg.acked)
	assert.False(t, msg.naked)
	require.Len(t, handler.jobs, 1)
	assert.Equal(t, models.OperationFull, handler.jobs[0].Operation)
}

func TestHandleMessageDelaysYieldedJobs(t *testing.T) {
	handler := &fakeHandler{err: ErrRetryLater}
	consumer := testConsumer(handler)
	msg := &fakeMsg{data: jobBytes(t, models.OperationReindexCase)}

	consumer.handleMessage(context.Background(), msg)

	assert.False(t, msg.acked)
	assert.True(t, msg.naked)
	assert.Equal(t, retryLaterDelay, msg.nakDelay)
}

func TestHandleMessageNaksOnFailure(t *testing.T) {
	handler := &fakeHandler{err: errors.New("stage blew up")}
	consumer := testConsumer(handler)
	msg := &fakeMsg{data: jobBytes(t, models.OperationFull)}

	consumer.handleMessage(context.Background(), msg)

	assert.False(t, msg.acked)
	assert.True(t, msg.naked)
	assert.Zero(t, msg.nakDelay)
}

func TestHandleMessageTerminatesUndecodableJobs(t *testing.T) {
	handler := &fakeHandler{}
	consumer := testConsumer(handler)
	msg := &fakeMsg{data: []byte("not json")}

	consumer.handleMessage(context.Background(), msg)

	assert.True(t, msg.terminated)
	assert.False(t, msg.naked)
	assert.Empty(t, handler.jobs)
}

func TestSubjectPerOperation(t *testing.T) {
	assert.Equal(t, "evidence.jobs.full", Subject(models.OperationFull))
	assert.Equal(t, "evidence.jobs.reindex-case", Subject(models.OperationReindexCase))
}

func TestApplyDefaults(t *testing.T) {
	cfg := &models.QueueConfig{URL: nats.DefaultURL}
	applyDefaults(cfg)

	assert.Equal(t, defaultStreamName, cfg.StreamName)
	assert.Equal(t, defaultConsumerName, cfg.ConsumerName)
	assert.Equal(t, defaultAckWait, cfg.AckWait)
	assert.Equal(t, defaultMaxDeliver, cfg.MaxDeliver)
}
