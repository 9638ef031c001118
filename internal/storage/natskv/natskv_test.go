package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/battlearena/combat-engine/pkg/core"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	key      string
	value    []byte
	revision uint64
	created  time.Time
}

func (e entry) Bucket() string                  { return "test" }
func (e entry) Key() string                     { return e.key }
func (e entry) Value() []byte                   { return e.value }
func (e entry) Revision() uint64                { return e.revision }
func (e entry) Created() time.Time              { return e.created }
func (e entry) Delta() uint64                   { return 0 }
func (e entry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

type fakeKV struct {
	mu       sync.Mutex
	data     map[string][]byte
	revision uint64
	failPut  error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

func (f *fakeKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return entry{key: key, value: v, revision: f.revision}, nil
}

func (f *fakeKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != nil {
		return 0, f.failPut
	}
	f.revision++
	f.data[key] = append([]byte(nil), value...)
	return f.revision, nil
}

func (f *fakeKV) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return jetstream.ErrKeyNotFound
	}
	delete(f.data, key)
	return nil
}

func (f *fakeKV) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func newTestBackend() (*Backend, *fakeKV) {
	kv := newFakeKV()
	return New(kv, nil, slog.New(slog.NewTextHandler(io.Discard, nil))), kv
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "match.m-1.info", InfoKey("m-1"))
	assert.Equal(t, "match.m-1.state", StateKey("m-1"))
	assert.Equal(t, "match.m-1.summary", SummaryKey("m-1"))
	assert.Equal(t, "match.m-1.fire.3", FireKey("m-1", 3))
}

func TestKeys_UnsafeIDsAreEncoded(t *testing.T) {
	key := StateKey("room 7.a/b")
	assert.Regexp(t, `^match\.b64-[-_A-Za-z0-9]+\.state$`, key)
	assert.NotEqual(t, StateKey("room 7.a/c"), key)
}

func TestBackend_Lifecycle(t *testing.T) {
	b, kv := newTestBackend()
	require.NoError(t, b.Init())

	require.NoError(t, b.StartMatch(&core.MatchInfo{MatchID: "m1", ArenaID: "canyon", Players: []string{"p1", "p2"}}))
	assert.True(t, kv.has(InfoKey("m1")))

	require.NoError(t, b.RecordFire(&core.FireRecord{MatchID: "m1", PlayerID: "p1", TurnNumber: 1}))
	require.NoError(t, b.RecordFire(&core.FireRecord{MatchID: "m1", PlayerID: "p2", TurnNumber: 2}))
	assert.True(t, kv.has(FireKey("m1", 1)))
	assert.True(t, kv.has(FireKey("m1", 2)))

	var rec core.FireRecord
	require.NoError(t, json.Unmarshal(kv.data[FireKey("m1", 2)], &rec))
	assert.Equal(t, "p2", rec.PlayerID)

	require.NoError(t, b.EndMatch(&core.MatchSummary{MatchID: "m1", Winner: "p1", Turns: 2}))
	s, err := b.Summary(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "p1", s.Winner)

	require.NoError(t, b.Close())
}

func TestRecordState_KeepsLatest(t *testing.T) {
	b, _ := newTestBackend()
	ctx := context.Background()

	for turn := 1; turn <= 3; turn++ {
		require.NoError(t, b.RecordState(&core.GameState{MatchID: "m1", TurnNumber: turn}))
	}

	st, err := b.LatestState(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, st.TurnNumber)
}

func TestState_NotFound(t *testing.T) {
	b, _ := newTestBackend()

	_, err := b.LatestState(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrMatchNotFound)

	_, err = b.Summary(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrMatchNotFound)
}

func TestStartMatch_RestartClearsSummaryAndFires(t *testing.T) {
	b, kv := newTestBackend()

	require.NoError(t, b.StartMatch(&core.MatchInfo{MatchID: "m1"}))
	require.NoError(t, b.RecordFire(&core.FireRecord{MatchID: "m1"}))
	require.NoError(t, b.EndMatch(&core.MatchSummary{MatchID: "m1"}))
	require.True(t, kv.has(SummaryKey("m1")))

	require.NoError(t, b.StartMatch(&core.MatchInfo{MatchID: "m1"}))
	assert.False(t, kv.has(SummaryKey("m1")))

	require.NoError(t, b.RecordFire(&core.FireRecord{MatchID: "m1"}))
	b.mu.Lock()
	assert.Equal(t, 1, b.fires["m1"])
	b.mu.Unlock()
}

func TestPutErrorIsWrapped(t *testing.T) {
	b, kv := newTestBackend()
	kv.failPut = errors.New("no responders")

	err := b.RecordState(&core.GameState{MatchID: "m1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), StateKey("m1"))
	assert.Contains(t, err.Error(), "no responders")
}

func TestFires_SequenceOrder(t *testing.T) {
	b, _ := newTestBackend()
	ctx := context.Background()
	require.NoError(t, b.StartMatch(&core.MatchInfo{MatchID: "m1"}))

	fires, err := b.Fires(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, fires)

	for i, p := range []string{"p1", "p2", "p1"} {
		require.NoError(t, b.RecordFire(&core.FireRecord{MatchID: "m1", PlayerID: p, TurnNumber: i + 1}))
	}

	fires, err = b.Fires(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, fires, 3)
	for i, f := range fires {
		assert.Equal(t, i+1, f.TurnNumber)
	}
	assert.Equal(t, "p2", fires[1].PlayerID)
}
