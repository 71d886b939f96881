// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"sync"
	"time"
)

// SessionCache is the process-wide session cache collaborator. It must
// permit concurrent readers and serialized writers, and guarantee
// at-most-once insertion; eviction policy beyond honoring absolute
// per-session timeouts is left to the implementation.
type SessionCache interface {
	lookup(sessionID []byte, now time.Time) (*session, bool)
	insert(s *session)
	remove(sessionID []byte)
}

// memorySessionCache is the default SessionCache: a mutex-guarded map
// with lazy eviction of timed-out entries on lookup.
type memorySessionCache struct {
	mu sync.RWMutex
	m  map[string]*session
}

func NewSessionCache() SessionCache {
	return &memorySessionCache{m: make(map[string]*session)}
}

func (c *memorySessionCache) lookup(sessionID []byte, now time.Time) (*session, bool) {
	c.mu.RLock()
	s, ok := c.m[string(sessionID)]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.expired(now) {
		c.remove(sessionID)
		return nil, false
	}
	return s, true
}

// insert is at-most-once: an existing entry under the same session_id
// is left untouched rather than overwritten.
func (c *memorySessionCache) insert(s *session) {
	key := string(s.sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[key]; exists {
		return
	}
	c.m[key] = s
}

func (c *memorySessionCache) remove(sessionID []byte) {
	c.mu.Lock()
	delete(c.m, string(sessionID))
	c.mu.Unlock()
}
