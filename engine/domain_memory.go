package engine

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

// domainEntry records why a domain needed the browser.
type domainEntry struct {
	reason    string
	expiresAt time.Time
}

// DomainMemory remembers which domains needed escalation in auto mode so
// later requests skip the static attempt. Entries expire after the TTL and
// are pruned periodically. A nil *DomainMemory is valid and remembers nothing.
type DomainMemory struct {
	store sync.Map // domain (string) -> *domainEntry
	ttl   time.Duration
	now   func() time.Time
	done  chan struct{}
	once  sync.Once
}

// NewDomainMemory creates a DomainMemory with the given TTL and starts a
// background goroutine that prunes expired entries. It returns nil when ttl
// is not positive.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	return newDomainMemory(ttl, time.Now)
}

func newDomainMemory(ttl time.Duration, now func() time.Time) *DomainMemory {
	if ttl <= 0 {
		return nil
	}
	dm := &DomainMemory{
		ttl:  ttl,
		now:  now,
		done: make(chan struct{}),
	}
	go dm.cleanupLoop(cleanupInterval(ttl))
	return dm
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl < time.Hour {
		return ttl
	}
	return time.Hour
}

// NeedsBrowser reports whether the URL's domain was recently escalated, and
// the remembered reason.
func (dm *DomainMemory) NeedsBrowser(rawURL string) (bool, string) {
	if dm == nil {
		return false, ""
	}
	domain := extractDomain(rawURL)
	val, ok := dm.store.Load(domain)
	if !ok {
		return false, ""
	}
	entry := val.(*domainEntry)
	if dm.now().After(entry.expiresAt) {
		dm.store.Delete(domain)
		return false, ""
	}
	return true, entry.reason
}

// Remember records that the URL's domain needed the browser.
func (dm *DomainMemory) Remember(rawURL, reason string) {
	if dm == nil {
		return
	}
	dm.store.Store(extractDomain(rawURL), &domainEntry{
		reason:    reason,
		expiresAt: dm.now().Add(dm.ttl),
	})
}

// Forget removes the entry for the URL's domain.
func (dm *DomainMemory) Forget(rawURL string) {
	if dm == nil {
		return
	}
	dm.store.Delete(extractDomain(rawURL))
}

// Stop terminates the background cleanup goroutine.
func (dm *DomainMemory) Stop() {
	if dm == nil {
		return
	}
	dm.once.Do(func() { close(dm.done) })
}

func (dm *DomainMemory) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
			now := dm.now()
			dm.store.Range(func(key, value any) bool {
				if now.After(value.(*domainEntry).expiresAt) {
					dm.store.Delete(key)
				}
				return true
			})
		}
	}
}

// extractDomain parses the lower-cased hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Hostname())
}
