package notify

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

// pruneThreshold triggers a sweep of expired fingerprints.
const pruneThreshold = 256

// dedup suppresses a repeated fingerprint inside a cooldown window. It is
// safe for concurrent use.
type dedup struct {
	seen map[string]time.Time // fingerprint -> last sent
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

func newDedup(ttl time.Duration) *dedup {
	return &dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// isDuplicate reports whether key was recorded within the window. A fresh
// or expired key is recorded and reported as new.
func (d *dedup) isDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[key] = now

	if len(d.seen) > pruneThreshold {
		for k, ts := range d.seen {
			if now.Sub(ts) >= d.ttl {
				delete(d.seen, k)
			}
		}
	}
	return false
}

// verdictFingerprint identifies a verdict by its direction and the blade
// signals behind it; score and id are left out so an unchanged picture is
// not re-announced.
func verdictFingerprint(res domain.AnalyzeResult) string {
	names := make([]string, 0, len(res.Signals))
	for name := range res.Signals {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(string(res.Verdict))
	for _, name := range names {
		b.WriteString("|")
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(string(res.Signals[name]))
	}
	return b.String()
}
