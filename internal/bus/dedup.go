package bus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Deduplicator 按事件ID去重，记录在 ttl 之后过期
type Deduplicator struct {
	cache       sync.Map // key=事件ID, value=time.Time
	seen        uint64
	cleanupMu   sync.Mutex
	lastCleanup time.Time
	ttl         time.Duration
	now         func() time.Time
}

// NewDeduplicator 创建去重器，ttl <= 0 时使用30秒
func NewDeduplicator(ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Deduplicator{
		ttl:         ttl,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Seen 第一次见到 id 时返回 false 并记录，之后在 ttl 内返回 true。空 id 从不视为重复
func (d *Deduplicator) Seen(id string) bool {
	if id == "" {
		return false
	}
	now := d.now()
	if v, loaded := d.cache.LoadOrStore(id, now); loaded {
		if ts, ok := v.(time.Time); ok && now.Sub(ts) <= d.ttl {
			return true
		}
		d.cache.Store(id, now)
	}

	// 每处理100条消息，尝试清理过期的缓存
	if atomic.AddUint64(&d.seen, 1)%100 == 0 {
		d.cleanExpired(now)
	}
	return false
}

// cleanExpired 清理过期的记录
func (d *Deduplicator) cleanExpired(now time.Time) {
	// 避免多个goroutine同时清理
	if !d.cleanupMu.TryLock() {
		return
	}
	defer d.cleanupMu.Unlock()

	if now.Sub(d.lastCleanup) < time.Minute {
		return
	}
	d.lastCleanup = now

	d.cache.Range(func(key, value any) bool {
		ts, ok := value.(time.Time)
		if !ok || now.Sub(ts) > d.ttl {
			d.cache.Delete(key)
		}
		return true
	})
}
