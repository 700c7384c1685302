package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/sightings-cli/internal/resilience"
	"github.com/sells-group/sightings-cli/internal/source"
)

var testWindow = Window{From: day(2024, 5, 1), To: day(2024, 5, 7)}

func TestFetcher_TwoFailuresThenSuccess(t *testing.T) {
	logs := observeLogs(t)
	src := &fakeSource{serve: func(call int, _, _ time.Time) ([]byte, error) {
		if call < 3 {
			return nil, resilience.NewStatusError(503, "http://source/observations")
		}
		return sightingsBody(sighting(386, "2024-05-01T08:15:00Z", 7.5, 47.2, 450)), nil
	}}

	f := NewFetcher(src, 3, time.Millisecond, nil)
	got, err := f.Fetch(context.Background(), testWindow)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 3, src.Calls())
	assert.Equal(t, 2, countLogs(logs, zapcore.WarnLevel, "attempt failed, retrying"))
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestFetcher_AbandonsAfterThreeFailures(t *testing.T) {
	logs := observeLogs(t)
	src := &fakeSource{serve: func(int, time.Time, time.Time) ([]byte, error) {
		return nil, resilience.NewStatusError(500, "http://source/observations")
	}}

	f := NewFetcher(src, 3, time.Millisecond, nil)
	_, err := f.Fetch(context.Background(), testWindow)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrChunkAbandoned))
	assert.Contains(t, err.Error(), "01.05.2024-07.05.2024")
	assert.Equal(t, 3, src.Calls())
	assert.Equal(t, 2, countLogs(logs, zapcore.WarnLevel, "attempt failed, retrying"))
}

func TestFetcher_NonTransientStatusIsStillRetried(t *testing.T) {
	observeLogs(t)
	src := &fakeSource{serve: func(call int, _, _ time.Time) ([]byte, error) {
		if call == 1 {
			return nil, resilience.NewStatusError(401, "http://source/observations")
		}
		return sightingsBody(), nil
	}}

	f := NewFetcher(src, 3, time.Millisecond, nil)
	got, err := f.Fetch(context.Background(), testWindow)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 2, src.Calls())
}

func TestFetcher_MalformedBodyNotRetried(t *testing.T) {
	observeLogs(t)
	src := &fakeSource{serve: func(int, time.Time, time.Time) ([]byte, error) {
		return []byte(`{"data":{"sightings":"none"}}`), nil
	}}

	f := NewFetcher(src, 3, time.Millisecond, nil)
	_, err := f.Fetch(context.Background(), testWindow)
	require.Error(t, err)
	assert.True(t, eris.Is(err, source.ErrMalformedChunk))
	assert.Equal(t, 1, src.Calls())
}

func TestFetcher_CancelDuringRetryPause(t *testing.T) {
	observeLogs(t)
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{serve: func(int, time.Time, time.Time) ([]byte, error) {
		cancel()
		return nil, resilience.NewStatusError(503, "http://source/observations")
	}}

	f := NewFetcher(src, 3, time.Hour, nil)
	_, err := f.Fetch(ctx, testWindow)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, eris.Is(err, ErrChunkAbandoned))
	assert.Equal(t, 1, src.Calls())
}

func TestNewFetcher_DefaultsAttempts(t *testing.T) {
	f := NewFetcher(&fakeSource{}, 0, time.Second, nil)
	assert.Equal(t, 3, f.attempts)
}
