package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"krishi/internal/sensors"
	"krishi/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockArchive struct {
	mock.Mock
}

func (m *mockArchive) InsertBatch(ctx context.Context, readings []types.SensorReading) (int, error) {
	args := m.Called(ctx, readings)
	return args.Int(0), args.Error(1)
}

type recordingObserver struct {
	mu       sync.Mutex
	archived int
	failures int
}

func (o *recordingObserver) ObserveSync(archived int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failures++
		return
	}
	o.archived += archived
}

var now = time.Date(2025, time.July, 15, 7, 0, 0, 0, time.UTC)

func queueWith(t *testing.T, n int) *sensors.Service {
	t.Helper()
	svc := sensors.NewService(sensors.Config{Clock: types.FixedClock{T: now}})
	for i := 0; i < n; i++ {
		m, tc := 20.0+float64(i), 25.0
		_, err := svc.OnESP32Message("esp-1", types.DevicePayload{
			DeviceID:     "esp-1",
			MoisturePct:  &m,
			TemperatureC: &tc,
			Timestamp:    now.Add(time.Duration(i-n) * time.Minute),
		})
		require.NoError(t, err)
	}
	return svc
}

func TestSyncOnce_DrainsInBatches(t *testing.T) {
	queue := queueWith(t, 5)
	archive := new(mockArchive)
	archive.On("InsertBatch", mock.Anything, mock.MatchedBy(func(r []types.SensorReading) bool { return len(r) == 2 })).
		Return(2, nil).Twice()
	archive.On("InsertBatch", mock.Anything, mock.MatchedBy(func(r []types.SensorReading) bool { return len(r) == 1 })).
		Return(1, nil).Once()
	obs := &recordingObserver{}

	w := NewWorker(queue, archive, Config{BatchSize: 2, Clock: types.FixedClock{T: now}, Observer: obs})
	n, err := w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	archive.AssertExpectations(t)

	status := queue.GetSyncStatus()
	assert.Zero(t, status.PendingCount)
	require.NotNil(t, status.LastSync)
	assert.Equal(t, now, *status.LastSync)
	assert.Empty(t, status.LastError)
	assert.Equal(t, 5, obs.archived)
}

func TestSyncOnce_FailureKeepsReadingsQueued(t *testing.T) {
	queue := queueWith(t, 3)
	archive := new(mockArchive)
	archive.On("InsertBatch", mock.Anything, mock.Anything).Return(0, errors.New("connection refused"))
	obs := &recordingObserver{}

	w := NewWorker(queue, archive, Config{BatchSize: 10, Observer: obs})
	n, err := w.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)

	status := queue.GetSyncStatus()
	assert.Equal(t, 3, status.PendingCount)
	assert.Nil(t, status.LastSync)
	assert.Equal(t, "connection refused", status.LastError)
	assert.Equal(t, 1, obs.failures)
}

func TestSyncOnce_EmptyQueueStillMarksSynced(t *testing.T) {
	queue := queueWith(t, 0)
	archive := new(mockArchive)

	w := NewWorker(queue, archive, Config{Clock: types.FixedClock{T: now}})
	n, err := w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NotNil(t, queue.GetSyncStatus().LastSync)
	archive.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything)
}

func TestSyncOnce_ReadingsArrivingDuringSyncAreKept(t *testing.T) {
	queue := queueWith(t, 2)
	archive := new(mockArchive)
	archive.On("InsertBatch", mock.Anything, mock.Anything).Return(2, nil).Run(func(mock.Arguments) {
		m, tc := 50.0, 25.0
		_, err := queue.OnESP32Message("esp-2", types.DevicePayload{
			DeviceID: "esp-2", MoisturePct: &m, TemperatureC: &tc, Timestamp: now,
		})
		require.NoError(t, err)
	}).Once()

	w := NewWorker(queue, archive, Config{BatchSize: 10})
	_, err := w.SyncOnce(context.Background())
	require.NoError(t, err)

	left := queue.PendingReadings(0)
	require.Len(t, left, 1)
	assert.Equal(t, "esp-2", left[0].Reading.DeviceID)
}

func TestRun_FlushesOnShutdown(t *testing.T) {
	queue := queueWith(t, 1)
	archive := new(mockArchive)
	archive.On("InsertBatch", mock.Anything, mock.Anything).Return(1, nil)

	w := NewWorker(queue, archive, Config{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, queue.GetSyncStatus().PendingCount)
}
