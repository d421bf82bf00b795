// breadcrumbs.go records recent application activity in a bounded ring buffer.
// A snapshot is attached to every event.

package bugsnag

import (
	"sync"
	"time"
)

// BreadcrumbType classifies a breadcrumb.
type BreadcrumbType string

const (
	BreadcrumbManual     BreadcrumbType = "manual"
	BreadcrumbLog        BreadcrumbType = "log"
	BreadcrumbNavigation BreadcrumbType = "navigation"
	BreadcrumbRequest    BreadcrumbType = "request"
	BreadcrumbProcess    BreadcrumbType = "process"
	BreadcrumbState      BreadcrumbType = "state"
	BreadcrumbUser       BreadcrumbType = "user"
	BreadcrumbError      BreadcrumbType = "error"
)

// DefaultMaxBreadcrumbs is the default capacity of the breadcrumb buffer.
const DefaultMaxBreadcrumbs = 25

// Breadcrumb is one recorded step leading up to an event.
type Breadcrumb struct {
	Timestamp time.Time      `json:"timestamp"`
	Name      string         `json:"name"`
	Type      BreadcrumbType `json:"type"`
	MetaData  map[string]any `json:"metaData,omitempty"`
}

// LeaveBreadcrumb records name with optional metadata. The type defaults to
// BreadcrumbManual. Breadcrumbs beyond Configuration.MaxBreadcrumbs evict the oldest.
func (c *Client) LeaveBreadcrumb(name string, metaData map[string]any, typ ...BreadcrumbType) {
	crumb := Breadcrumb{
		Timestamp: time.Now().UTC(),
		Name:      name,
		Type:      BreadcrumbManual,
	}
	if len(typ) > 0 && typ[0] != "" {
		crumb.Type = typ[0]
	}
	if len(metaData) > 0 {
		crumb.MetaData = make(map[string]any, len(metaData))
		for k, v := range metaData {
			crumb.MetaData[k] = v
		}
	}
	c.breadcrumbs.Add(crumb, c.Configuration.MaxBreadcrumbs)
}

// breadcrumbBuffer is a bounded ring buffer safe for concurrent use.
type breadcrumbBuffer struct {
	mu       sync.Mutex
	records  []Breadcrumb
	maxSize  int
	writeIdx int
}

// Add appends a breadcrumb, evicting the oldest if the buffer is full.
// A change of maxSize keeps the newest entries. maxSize <= 0 clears the buffer.
func (b *breadcrumbBuffer) Add(crumb Breadcrumb, maxSize int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if maxSize != b.maxSize {
		b.resize(maxSize)
	}
	if b.maxSize == 0 {
		return
	}

	if len(b.records) < b.maxSize {
		b.records = append(b.records, crumb)
		return
	}
	b.records[b.writeIdx] = crumb
	b.writeIdx = (b.writeIdx + 1) % b.maxSize
}

func (b *breadcrumbBuffer) resize(maxSize int) {
	if maxSize < 0 {
		maxSize = 0
	}
	all := b.ordered()
	if len(all) > maxSize {
		all = all[len(all)-maxSize:]
	}
	b.records = all
	b.maxSize = maxSize
	b.writeIdx = 0
}

// Snapshot returns a copy of the breadcrumbs in chronological order (oldest first).
func (b *breadcrumbBuffer) Snapshot() []Breadcrumb {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ordered()
}

func (b *breadcrumbBuffer) ordered() []Breadcrumb {
	if len(b.records) == 0 {
		return nil
	}
	result := make([]Breadcrumb, len(b.records))
	if len(b.records) < b.maxSize {
		copy(result, b.records)
		return result
	}
	// writeIdx points to the oldest record once the buffer is full
	n := copy(result, b.records[b.writeIdx:])
	copy(result[n:], b.records[:b.writeIdx])
	return result
}
