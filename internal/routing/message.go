package routing

import (
	"encoding/json"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ruvnet/tokenfield/internal/errors"
)

// Broadcast is the gossip frame. TTL is decremented on every forward; hops
// counts forwards from the origin; Clock is the origin's monotonic counter
// used for tie-breaking.
type Broadcast struct {
	ID      string `json:"id"`
	Origin  string `json:"origin"`
	TTL     int    `json:"ttl"`
	Hops    int    `json:"hops"`
	Clock   uint64 `json:"clock"`
	Payload []byte `json:"payload"`
}

// Encode serializes the frame.
func (b *Broadcast) Encode() ([]byte, error) {
	return json.Marshal(b)
}

// DecodeBroadcast parses and validates a frame.
func DecodeBroadcast(data []byte) (*Broadcast, error) {
	var b Broadcast
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errors.Wrap(err, errors.CorruptMessage, "malformed gossip frame")
	}
	if b.ID == "" || b.Origin == "" {
		return nil, errors.New(errors.CorruptMessage, "gossip frame missing id or origin")
	}
	if b.TTL < 0 || b.Hops < 0 {
		return nil, errors.New(errors.CorruptMessage, "gossip frame has inconsistent ttl/hops")
	}
	if _, err := ParsePeerID(b.Origin); err != nil {
		return nil, err
	}
	return &b, nil
}

// key identifies a delivery: no peer delivers the same (origin, id) twice.
func (b *Broadcast) key() string {
	return b.Origin + "/" + b.ID
}

// Seen is the bounded deduplication cache over (origin, message id) pairs.
type Seen struct {
	cache *lru.Cache[string, struct{}]
}

// NewSeen creates a seen set with the given capacity.
func NewSeen(capacity int) (*Seen, error) {
	if capacity <= 0 {
		capacity = 4096
	}
	cache, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &Seen{cache: cache}, nil
}

// Mark records a frame; it returns false when the frame was already seen.
func (s *Seen) Mark(b *Broadcast) bool {
	_, loaded, _ := s.cache.PeekOrAdd(b.key(), struct{}{})
	return !loaded
}

// Contains reports whether a frame was seen without recording it.
func (s *Seen) Contains(b *Broadcast) bool {
	return s.cache.Contains(b.key())
}

// Len returns the number of cached entries.
func (s *Seen) Len() int {
	return s.cache.Len()
}
