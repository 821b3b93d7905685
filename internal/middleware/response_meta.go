package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"

	// CacheStatusHeader tells clients whether a read was served from Redis.
	CacheStatusHeader = "X-Cache"
)

// responseMeta is the per-request state behind the envelope's "meta" object.
type responseMeta struct {
	startedAt time.Time
	cacheHit  *bool
}

// WithResponseMeta starts the request clock read by ExtractMeta.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{startedAt: time.Now()})
		c.Next()
	}
}

// SetCacheHit records whether the current response came from cache and
// mirrors it in the X-Cache header.
func SetCacheHit(c *gin.Context, hit bool) {
	meta := metaFor(c)
	if meta == nil {
		return
	}
	meta.cacheHit = &hit
	status := "MISS"
	if hit {
		status = "HIT"
	}
	c.Header(CacheStatusHeader, status)
}

// CacheHit returns the recorded cache outcome. ok is false when no handler
// reported one.
func CacheHit(c *gin.Context) (hit bool, ok bool) {
	meta := lookupMeta(c)
	if meta == nil || meta.cacheHit == nil {
		return false, false
	}
	return *meta.cacheHit, true
}

// ExtractMeta renders the metadata for the response envelope. Processing
// time is measured up to the call, since the body is written right after.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	meta := lookupMeta(c)
	if meta == nil {
		return nil
	}
	out := map[string]interface{}{}
	if meta.cacheHit != nil {
		out["cache_hit"] = *meta.cacheHit
	}
	if !meta.startedAt.IsZero() {
		out["processing_time_ms"] = time.Since(meta.startedAt).Milliseconds()
	}
	return out
}

func lookupMeta(c *gin.Context) *responseMeta {
	if c == nil {
		return nil
	}
	if value, exists := c.Get(responseMetaKey); exists {
		if meta, ok := value.(*responseMeta); ok {
			return meta
		}
	}
	return nil
}

// metaFor returns the request's metadata, creating it for handlers mounted
// without WithResponseMeta.
func metaFor(c *gin.Context) *responseMeta {
	if c == nil {
		return nil
	}
	if meta := lookupMeta(c); meta != nil {
		return meta
	}
	meta := &responseMeta{}
	c.Set(responseMetaKey, meta)
	return meta
}
