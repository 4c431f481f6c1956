package session

import (
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// History keeps the most recent finished sessions in memory, keyed by session id.
type History struct {
	cache *lru.Cache[string, Record]
}

// NewHistory creates a History holding at most size records.
func NewHistory(size int) (*History, error) {
	cache, err := lru.New[string, Record](size)
	if err != nil {
		return nil, err
	}

	return &History{cache: cache}, nil
}

// Add stores r, evicting the oldest record when full.
func (h *History) Add(r Record) {
	h.cache.Add(r.SessionID, r)
}

// Get looks up a record by session id.
func (h *History) Get(id string) (Record, bool) {
	return h.cache.Get(id)
}

// Recent returns every record, most recent first.
func (h *History) Recent() []Record {
	records := h.cache.Values()
	slices.Reverse(records)

	return records
}

// Len returns the number of stored records.
func (h *History) Len() int {
	return h.cache.Len()
}
