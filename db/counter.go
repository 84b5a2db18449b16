package db

import "sync"

// SampleCounter hands out unique sample ids. It seeds itself one past
// the largest id already stored so ids stay unique when chopping runs
// resume against an existing database.
type SampleCounter struct {
	mu   sync.Mutex
	next int
}

// NewSampleCounter reads the store's current maximum sample id and
// starts counting after it. An empty store starts at 1.
func NewSampleCounter(store *SnippetStore) (*SampleCounter, error) {
	maxID, err := store.MaxSampleID()
	if err != nil {
		return nil, err
	}
	return &SampleCounter{next: maxID + 1}, nil
}

// Next returns the next free sample id.
func (c *SampleCounter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	return id
}
