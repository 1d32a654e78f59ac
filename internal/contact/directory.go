package contact

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mozillazg/go-unidecode"
	"go.uber.org/zap"

	"favoro/internal/notify"
	"favoro/pkg/logger"
)

// Directory is the authoritative in-memory contact list. It is built once by
// the composition root and handed to whatever needs it.
//
// Every mutation that changes state runs one notify pass in the caller's
// goroutine after the directory lock is released.
type Directory struct {
	mu        sync.RWMutex
	contacts  []Contact
	listeners *notify.Registry
	log       *logger.Logger
}

func NewDirectory(log *logger.Logger) *Directory {
	if log == nil {
		log = logger.Nop()
	}
	return &Directory{
		listeners: notify.NewRegistry(),
		log:       log.With(zap.String("module", "contact")),
	}
}

// List returns a copy of the contacts in insertion order.
func (d *Directory) List() []Contact {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Contact, len(d.contacts))
	for i, c := range d.contacts {
		out[i] = c.Clone()
	}
	return out
}

func (d *Directory) Get(id uuid.UUID) (Contact, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if i := d.indexOf(id); i >= 0 {
		return d.contacts[i].Clone(), true
	}
	return Contact{}, false
}

// Add mints a new id for draft and appends it. Duplicate names or emails are
// accepted.
func (d *Directory) Add(draft Draft) Contact {
	c := Contact{
		ID:     uuid.New(),
		Name:   draft.Name,
		Email:  draft.Email,
		Status: draft.Status,
		Avatar: draft.Avatar,
	}.Clone()

	d.mu.Lock()
	d.contacts = append(d.contacts, c)
	d.mu.Unlock()

	d.log.Debug("contact added", zap.Stringer("id", c.ID))
	d.notify()
	return c.Clone()
}

// Remove deletes the contact with id. It reports whether anything was
// removed; listeners are only notified when it was.
func (d *Directory) Remove(id uuid.UUID) bool {
	d.mu.Lock()
	i := d.indexOf(id)
	if i < 0 {
		d.mu.Unlock()
		return false
	}
	d.contacts = append(d.contacts[:i:i], d.contacts[i+1:]...)
	d.mu.Unlock()

	d.log.Debug("contact removed", zap.Stringer("id", id))
	d.notify()
	return true
}

// Update merges p into the contact with id. The id itself never changes.
func (d *Directory) Update(id uuid.UUID, p Patch) (Contact, bool) {
	d.mu.Lock()
	i := d.indexOf(id)
	if i < 0 {
		d.mu.Unlock()
		return Contact{}, false
	}
	updated := d.contacts[i].merge(p)
	d.contacts[i] = updated
	d.mu.Unlock()

	d.log.Debug("contact updated", zap.Stringer("id", id))
	d.notify()
	return updated.Clone(), true
}

// Subscribe registers fn for every successful mutation and returns its
// unsubscribe function.
func (d *Directory) Subscribe(fn func()) func() {
	return d.listeners.Subscribe(fn)
}

// Search matches query against names and emails, ignoring case and script:
// both sides are transliterated to ASCII before comparing.
func (d *Directory) Search(query string) []Contact {
	needle := fold(query)
	all := d.List()
	if needle == "" {
		return all
	}

	var out []Contact
	for _, c := range all {
		if strings.Contains(fold(c.Name), needle) || strings.Contains(fold(c.Email), needle) {
			out = append(out, c)
		}
	}
	return out
}

func (d *Directory) indexOf(id uuid.UUID) int {
	for i, c := range d.contacts {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (d *Directory) notify() {
	if err := d.listeners.Notify(); err != nil {
		d.log.Warn("contact listener failed", zap.Error(err))
	}
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(unidecode.Unidecode(s)))
}
