package multiquery

import (
	"fmt"
	"net/url"
	"sync"
)

// Location is the URL of the page a list is rendered on.
//
// Replace must rewrite the current history entry instead of adding one:
// growing a list is not a navigation, and the back button should leave the
// page rather than step through pagination depths.
type Location interface {
	Query() url.Values
	Replace(query url.Values) error
}

// MemoryLocation is an in-memory Location with a history stack.
type MemoryLocation struct {
	mu      sync.Mutex
	entries []*url.URL
}

// NewMemoryLocation creates a location whose history holds rawURL.
func NewMemoryLocation(rawURL string) (*MemoryLocation, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse location: %w", err)
	}
	return &MemoryLocation{entries: []*url.URL{u}}, nil
}

// Query returns the query parameters of the current entry.
func (l *MemoryLocation) Query() url.Values {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current().Query()
}

// Replace rewrites the query string of the current entry.
func (l *MemoryLocation) Replace(query url.Values) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := *l.current()
	next.RawQuery = query.Encode()
	l.entries[len(l.entries)-1] = &next
	return nil
}

// Push navigates to rawURL, adding a history entry.
func (l *MemoryLocation) Push(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse location: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, u)
	return nil
}

// String returns the current URL.
func (l *MemoryLocation) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current().String()
}

// History returns every entry, oldest first.
func (l *MemoryLocation) History() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.entries))
	for i, u := range l.entries {
		out[i] = u.String()
	}
	return out
}

func (l *MemoryLocation) current() *url.URL {
	return l.entries[len(l.entries)-1]
}
