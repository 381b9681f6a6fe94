package history

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/code-100-precent/EchoLink/pkg/cache"
)

const (
	keyPrefix  = "history:"
	defaultTTL = 30 * time.Minute
)

// Turn is one conversation message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store keeps recent conversation turns per session so each prompt carries
// context from earlier exchanges. Turns are serialized into the shared
// cache, so a Redis deployment shares history across instances.
type Store struct {
	cache  cache.Cache
	depth  int
	ttl    time.Duration
	logger *zap.Logger
}

// NewStore builds a store that keeps at most depth turns per session.
// depth <= 0 disables history.
func NewStore(c cache.Cache, depth int) *Store {
	return &Store{
		cache:  c,
		depth:  depth,
		ttl:    defaultTTL,
		logger: zap.L(),
	}
}

// Turns returns the stored turns for a session, oldest first.
func (s *Store) Turns(ctx context.Context, sessionID string) []Turn {
	if s.cache == nil || s.depth <= 0 {
		return nil
	}

	raw, ok := s.cache.Get(ctx, keyPrefix+sessionID)
	if !ok {
		return nil
	}

	var payload []byte
	switch v := raw.(type) {
	case string:
		payload = []byte(v)
	case []byte:
		payload = v
	default:
		return nil
	}

	var turns []Turn
	if err := json.Unmarshal(payload, &turns); err != nil {
		s.logger.Warn("drop unreadable history entry",
			zap.String("sessionID", sessionID),
			zap.Error(err))
		return nil
	}
	return turns
}

// Append adds turns to a session, trimming the oldest past the depth limit.
func (s *Store) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	if s.cache == nil || s.depth <= 0 || len(turns) == 0 {
		return nil
	}

	all := append(s.Turns(ctx, sessionID), turns...)
	if len(all) > s.depth {
		all = all[len(all)-s.depth:]
	}

	payload, err := json.Marshal(all)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, keyPrefix+sessionID, string(payload), s.ttl)
}

// Reset drops all turns for a session.
func (s *Store) Reset(ctx context.Context, sessionID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, keyPrefix+sessionID)
}
