package discovery

import (
	"crypto/sha256"

	"github.com/lightninglabs/neutrino/cache/lru"
	"github.com/lightningnetwork/lncore/lnwire"
)

// maxRejectedEntries is the number of recently rejected messages remembered
// to avoid repeatedly burning signature checks on spammed garbage.
const maxRejectedEntries = 500

// rejectCacheKey identifies a rejected message by the hash of its signed
// payload.
type rejectCacheKey [32]byte

// cachedReject is the empty LRU entry stored per rejected message.
type cachedReject struct{}

// Size returns the number of cache slots the entry occupies.
//
// NOTE: Part of the cache.Value interface.
func (c *cachedReject) Size() (uint64, error) {
	return 1, nil
}

// rejectCache remembers recently rejected gossip so that a repeat offender
// can be dropped without re-verifying its signatures.
type rejectCache struct {
	entries *lru.Cache[rejectCacheKey, *cachedReject]
}

// newRejectCache creates a reject cache holding up to maxRejectedEntries
// entries.
func newRejectCache() *rejectCache {
	return &rejectCache{
		entries: lru.NewCache[rejectCacheKey, *cachedReject](
			maxRejectedEntries,
		),
	}
}

// keyForMessage derives the cache key of a gossip message from its signed
// payload. Messages whose payload cannot be assembled are never cached.
func keyForMessage(msg lnwire.Message) (rejectCacheKey, bool) {
	var (
		data []byte
		err  error
	)

	switch msg := msg.(type) {
	case *lnwire.ChannelAnnouncement:
		data, err = msg.DataToSign()
	case *lnwire.NodeAnnouncement:
		data, err = msg.DataToSign()
	case *lnwire.ChannelUpdate:
		data, err = msg.DataToSign()
	default:
		return rejectCacheKey{}, false
	}
	if err != nil {
		return rejectCacheKey{}, false
	}

	return sha256.Sum256(data), true
}

// remember records a rejected message.
func (r *rejectCache) remember(msg lnwire.Message) {
	key, ok := keyForMessage(msg)
	if !ok {
		return
	}

	_, _ = r.entries.Put(key, &cachedReject{})
}

// isRejected reports whether the message was recently rejected.
func (r *rejectCache) isRejected(msg lnwire.Message) bool {
	key, ok := keyForMessage(msg)
	if !ok {
		return false
	}

	_, err := r.entries.Get(key)
	return err == nil
}
