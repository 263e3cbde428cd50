package transport

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Mux selects a registered media by the scheme of a channel URI.
type Mux struct {
	mu    sync.RWMutex
	media map[string]Media
}

// NewMux returns a mux holding the given media.
func NewMux(media ...Media) (*Mux, error) {
	m := &Mux{media: make(map[string]Media, len(media))}
	for _, md := range media {
		if err := m.Register(md); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register adds a media. A scheme can only be registered once.
func (m *Mux) Register(md Media) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.media[md.Scheme()]; ok {
		return fmt.Errorf("transport: media already registered for scheme %q", md.Scheme())
	}
	m.media[md.Scheme()] = md
	return nil
}

// Schemes returns the registered schemes in sorted order.
func (m *Mux) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.media))
	for scheme := range m.media {
		out = append(out, scheme)
	}
	sort.Strings(out)
	return out
}

// Has reports whether a media is registered for scheme.
func (m *Mux) Has(scheme string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.media[scheme]
	return ok
}

func (m *Mux) lookup(ch Channel) (Media, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.media[ch.Scheme()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, ch)
	}
	return md, nil
}

// Publication opens a publication on the media selected by ch.
func (m *Mux) Publication(ch Channel) (Publication, error) {
	md, err := m.lookup(ch)
	if err != nil {
		return nil, err
	}
	return md.Publication(ch)
}

// Subscription opens a subscription on the media selected by ch.
func (m *Mux) Subscription(ch Channel) (Subscription, error) {
	md, err := m.lookup(ch)
	if err != nil {
		return nil, err
	}
	return md.Subscription(ch)
}

// Close closes every registered media.
func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for scheme, md := range m.media {
		if err := md.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s media: %w", scheme, err))
		}
	}
	m.media = map[string]Media{}
	return errors.Join(errs...)
}
