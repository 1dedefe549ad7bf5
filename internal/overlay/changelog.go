package overlay

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/plsfix/plsfix/pkg/models"
)

// ChangeLog accumulates recorded edits. It maintains the coalescing
// invariant: one Change per (elementId, type) pair, with Original frozen at
// the value from before the first edit and Modified tracking the latest.
type ChangeLog struct {
	mu    sync.Mutex
	order []string
	byKey map[string]*models.Change
}

// NewChangeLog creates an empty log.
func NewChangeLog() *ChangeLog {
	return &ChangeLog{byKey: make(map[string]*models.Change)}
}

func changeKey(elementID string, kind models.ChangeType) string {
	return elementID + "/" + string(kind)
}

// RecordText records or updates the text change for el. The returned Change
// is a copy safe to publish.
func (l *ChangeLog) RecordText(el *trackedElement, original, modified string) models.Change {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := changeKey(el.ID, models.ChangeText)
	ch, ok := l.byKey[key]
	if !ok {
		ch = l.create(key, el, models.ChangeText)
		ch.Original = models.ChangeSnapshot{TextContent: &original}
	}
	ch.Modified = models.ChangeSnapshot{TextContent: &modified}
	ch.Timestamp = time.Now().UnixMilli()
	return copyChange(ch)
}

// RecordStyle records or updates the style change for el. Properties touched
// for the first time add their baseline to Original; properties already in
// Original keep their first-edit baseline.
func (l *ChangeLog) RecordStyle(el *trackedElement, original, modified map[string]string) models.Change {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := changeKey(el.ID, models.ChangeStyle)
	ch, ok := l.byKey[key]
	if !ok {
		ch = l.create(key, el, models.ChangeStyle)
		ch.Original = models.ChangeSnapshot{Styles: make(map[string]string)}
		ch.Modified = models.ChangeSnapshot{Styles: make(map[string]string)}
	}
	for prop, val := range original {
		if _, seen := ch.Original.Styles[prop]; !seen {
			ch.Original.Styles[prop] = val
		}
	}
	for prop, val := range modified {
		ch.Modified.Styles[prop] = val
	}
	ch.Timestamp = time.Now().UnixMilli()
	return copyChange(ch)
}

func (l *ChangeLog) create(key string, el *trackedElement, kind models.ChangeType) *models.Change {
	ch := &models.Change{
		ID:         uuid.New().String(),
		Type:       kind,
		ElementID:  el.ID,
		ElementTag: el.Tag,
		XPath:      el.XPath,
		Selector:   el.Selector,
	}
	l.byKey[key] = ch
	l.order = append(l.order, key)
	return ch
}

// List returns the recorded changes in first-recorded order.
func (l *ChangeLog) List() []models.Change {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Change, 0, len(l.order))
	for _, key := range l.order {
		out = append(out, copyChange(l.byKey[key]))
	}
	return out
}

// Len reports the number of distinct changes.
func (l *ChangeLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

func copyChange(ch *models.Change) models.Change {
	out := *ch
	if ch.Original.Styles != nil {
		out.Original.Styles = cloneStyles(ch.Original.Styles)
	}
	if ch.Modified.Styles != nil {
		out.Modified.Styles = cloneStyles(ch.Modified.Styles)
	}
	return out
}

func cloneStyles(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
