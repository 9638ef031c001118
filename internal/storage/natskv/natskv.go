// Package natskv implements the storage.Backend interface on a NATS
// JetStream key-value bucket. Each match keeps its latest state, its start
// info, its summary and one entry per fire; bucket history and TTL come
// from configuration.
package natskv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/battlearena/combat-engine/internal/config"
	"github.com/battlearena/combat-engine/pkg/core"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultTimeout bounds every KV operation.
const DefaultTimeout = 5 * time.Second

// KV is the part of jetstream.KeyValue the backend uses.
type KV interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
}

// Backend writes match data into a KV bucket.
type Backend struct {
	kv      KV
	conn    *nats.Conn
	log     *slog.Logger
	timeout time.Duration

	mu    sync.Mutex
	fires map[string]int // matchID -> fires written
}

// New wraps an existing bucket. conn may be nil; when set it is drained on Close.
func New(kv KV, conn *nats.Conn, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		kv:      kv,
		conn:    conn,
		log:     log.With("storage", "nats"),
		timeout: DefaultTimeout,
		fires:   make(map[string]int),
	}
}

// Connect dials NATS and creates or updates the configured bucket.
func Connect(ctx context.Context, cfg config.NATSConfig, log *slog.Logger) (*Backend, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("combat-engine"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	history := cfg.History
	if history < 1 {
		history = 1
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "combat engine match state",
		History:     uint8(min(history, 64)),
		TTL:         cfg.TTL,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating kv bucket %s: %w", cfg.Bucket, err)
	}
	return New(kv, nc, log), nil
}

// Init is a no-op; the bucket exists once the backend is constructed.
func (b *Backend) Init() error { return nil }

// Close drains the connection if the backend owns one.
func (b *Backend) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Drain()
}

var plainKey = regexp.MustCompile(`^[-_=a-zA-Z0-9]+$`)

// keyPart makes a match id safe for use as a key token. Ids that already
// are valid tokens pass through unchanged.
func keyPart(id string) string {
	if plainKey.MatchString(id) {
		return id
	}
	return "b64-" + base64.RawURLEncoding.EncodeToString([]byte(id))
}

// Keys of a match in the bucket.
func InfoKey(matchID string) string    { return "match." + keyPart(matchID) + ".info" }
func StateKey(matchID string) string   { return "match." + keyPart(matchID) + ".state" }
func SummaryKey(matchID string) string { return "match." + keyPart(matchID) + ".summary" }
func FireKey(matchID string, seq int) string {
	return "match." + keyPart(matchID) + ".fire." + strconv.Itoa(seq)
}

func (b *Backend) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if _, err := b.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

func (b *Backend) get(ctx context.Context, key string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(entry.Value(), v)
}

// StartMatch stores the match info and clears a previous summary under the
// same id.
func (b *Backend) StartMatch(info *core.MatchInfo) error {
	b.mu.Lock()
	b.fires[info.MatchID] = 0
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.kv.Delete(ctx, SummaryKey(info.MatchID)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		b.log.Warn("Failed to clear previous summary", "matchId", info.MatchID, "error", err)
	}
	return b.put(InfoKey(info.MatchID), info)
}

// EndMatch stores the summary.
func (b *Backend) EndMatch(s *core.MatchSummary) error {
	b.mu.Lock()
	delete(b.fires, s.MatchID)
	b.mu.Unlock()
	return b.put(SummaryKey(s.MatchID), s)
}

// RecordFire stores the fire under the next sequence number of its match.
func (b *Backend) RecordFire(rec *core.FireRecord) error {
	b.mu.Lock()
	b.fires[rec.MatchID]++
	seq := b.fires[rec.MatchID]
	b.mu.Unlock()
	return b.put(FireKey(rec.MatchID, seq), rec)
}

// RecordState overwrites the match's latest state.
func (b *Backend) RecordState(st *core.GameState) error {
	return b.put(StateKey(st.MatchID), st)
}

// LatestState reads the latest state of a match.
func (b *Backend) LatestState(ctx context.Context, matchID string) (*core.GameState, error) {
	var st core.GameState
	if err := b.get(ctx, StateKey(matchID), &st); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("match %s: %w", matchID, core.ErrMatchNotFound)
		}
		return nil, err
	}
	return &st, nil
}

// Summary reads the summary of an ended match.
func (b *Backend) Summary(ctx context.Context, matchID string) (*core.MatchSummary, error) {
	var s core.MatchSummary
	if err := b.get(ctx, SummaryKey(matchID), &s); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("match %s: %w", matchID, core.ErrMatchNotFound)
		}
		return nil, err
	}
	return &s, nil
}

// Fires reads the fires of a match in sequence order, stopping at the first
// missing sequence number.
func (b *Backend) Fires(ctx context.Context, matchID string) ([]*core.FireRecord, error) {
	var out []*core.FireRecord
	for seq := 1; ; seq++ {
		var rec core.FireRecord
		err := b.get(ctx, FireKey(matchID, seq), &rec)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("reading %s: %w", FireKey(matchID, seq), err)
		}
		out = append(out, &rec)
	}
}
