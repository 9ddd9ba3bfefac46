package refc

import (
	"sync"
)

// The compiler keeps two caches across invocations: an intern table of
// every name it has seen and an index of archive entries. Both only grow
// until reset.
var (
	internTable  = &interner{names: make(map[string]string)}
	archiveIndex = &entryIndex{entries: make(map[string][]string)}
)

type interner struct {
	mu    sync.Mutex
	names map[string]string
}

func (t *interner) intern(s string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.names[s]; ok {
		return v
	}
	t.names[s] = s
	return s
}

func (t *interner) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.names)
}

func (t *interner) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names = make(map[string]string)
}

type entryIndex struct {
	mu      sync.Mutex
	entries map[string][]string
}

// lookup returns the cached entry names of archive, calling load on a
// miss.
func (x *entryIndex) lookup(archive string, load func() ([]string, error)) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if names, ok := x.entries[archive]; ok {
		return names, nil
	}
	names, err := load()
	if err != nil {
		return nil, err
	}
	x.entries[archive] = names
	return names, nil
}

func (x *entryIndex) len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

func (x *entryIndex) reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = make(map[string][]string)
}

// GlobalCaches exposes the process-global caches for resetting.
type GlobalCaches struct{}

func (GlobalCaches) ResetInternTable() error {
	internTable.reset()
	return nil
}

func (GlobalCaches) ResetArchiveIndex() error {
	archiveIndex.reset()
	return nil
}

// InternedNames returns the size of the intern table.
func (GlobalCaches) InternedNames() int { return internTable.len() }

// IndexedArchives returns how many archives the entry index holds.
func (GlobalCaches) IndexedArchives() int { return archiveIndex.len() }
