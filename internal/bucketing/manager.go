package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

const DefaultBuckets = 32

// BucketingManager assigns string identifiers to a fixed number of buckets
// with murmur3, so the same client always lands in the same bucket.
type BucketingManager struct {
	buckets    int
	hasherPool sync.Pool
}

func NewBucketingManager(buckets int) *BucketingManager {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}

	bm := &BucketingManager{buckets: buckets}

	// Pool hash functions to avoid allocating per lookup
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetBucket returns the bucket for identifier in [0, Buckets()).
func (bm *BucketingManager) GetBucket(identifier string) int {
	return int(bm.getHash(identifier) % uint64(bm.buckets))
}

// Buckets returns the number of buckets
func (bm *BucketingManager) Buckets() int {
	return bm.buckets
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
