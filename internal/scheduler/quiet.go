package scheduler

import (
	"time"

	"github.com/goodtune/promptlog/internal/metrics"
	"github.com/goodtune/promptlog/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQuietCacheSize holds about two hours of per-minute decisions.
const DefaultQuietCacheSize = 128

// InQuietPeriod reports the first enabled quiet time covering now. Times
// compare as zero-padded "HH:MM" strings, so a window whose start sorts
// after its end never matches.
func InQuietPeriod(now time.Time, quietTimes []storage.QuietTime) (storage.QuietTime, bool) {
	hhmm := now.Format("15:04")
	day := now.Weekday()
	for _, q := range quietTimes {
		if !q.Enabled || !q.OnDay(day) {
			continue
		}
		if q.StartTime <= hhmm && hhmm <= q.EndTime {
			return q, true
		}
	}
	return storage.QuietTime{}, false
}

type quietDecision struct {
	match storage.QuietTime
	quiet bool
}

// quietCache memoizes InQuietPeriod per weekday and wall-clock minute.
// It must be purged whenever the quiet times change.
type quietCache struct {
	cache *lru.Cache[string, quietDecision]
}

func newQuietCache(size int) (*quietCache, error) {
	if size <= 0 {
		size = DefaultQuietCacheSize
	}
	cache, err := lru.New[string, quietDecision](size)
	if err != nil {
		return nil, err
	}
	return &quietCache{cache: cache}, nil
}

func (c *quietCache) check(now time.Time, quietTimes []storage.QuietTime) (storage.QuietTime, bool) {
	key := now.Format("Mon 15:04")
	if d, ok := c.cache.Get(key); ok {
		metrics.QuietCacheHits.Inc()
		return d.match, d.quiet
	}
	metrics.QuietCacheMisses.Inc()

	match, quiet := InQuietPeriod(now, quietTimes)
	c.cache.Add(key, quietDecision{match: match, quiet: quiet})
	return match, quiet
}

func (c *quietCache) purge() {
	c.cache.Purge()
}

func (c *quietCache) len() int {
	return c.cache.Len()
}
