package gateway

import "sync"

// Response is the cached or fetched unit the gateway shuttles around.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

func (r *Response) clone() *Response {
	if r == nil {
		return nil
	}
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	return &Response{Status: r.Status, ContentType: r.ContentType, Body: body}
}

// Cache stores responses keyed by URL.
type Cache interface {
	Match(url string) (*Response, bool, error)
	Put(url string, resp *Response) error
}

// CacheStorage holds named caches, mirroring the browser's cache registry.
type CacheStorage interface {
	Open(name string) (Cache, error)
	Names() ([]string, error)
	Delete(name string) error
}

// MemCacheStorage is an in-memory CacheStorage for the agent proxy and tests.
type MemCacheStorage struct {
	mu     sync.Mutex
	caches map[string]*memCache
}

func NewMemCacheStorage() *MemCacheStorage {
	return &MemCacheStorage{caches: make(map[string]*memCache)}
}

func (s *MemCacheStorage) Open(name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[name]
	if !ok {
		c = &memCache{entries: make(map[string]*Response)}
		s.caches[name] = c
	}
	return c, nil
}

func (s *MemCacheStorage) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	return names, nil
}

func (s *MemCacheStorage) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.caches, name)
	return nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]*Response
}

func (c *memCache) Match(url string) (*Response, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.entries[url]
	if !ok {
		return nil, false, nil
	}
	return resp.clone(), true, nil
}

func (c *memCache) Put(url string, resp *Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = resp.clone()
	return nil
}
