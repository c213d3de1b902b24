package models

import (
	"sync"
	"time"
)

// UserCache remembers user IDs for a bounded time. The handler uses it to
// skip repeated profile-photo API calls for users who recently passed the
// compliance check.
type UserCache struct {
	users      map[int64]time.Time
	expireMins int
	mu         sync.RWMutex
}

// NewUserCache creates a cache whose entries expire after expireMins minutes.
func NewUserCache(expireMins int) *UserCache {
	c := &UserCache{
		users:      make(map[int64]time.Time),
		expireMins: expireMins,
	}

	// Background cleanup of expired entries
	go c.cleanupExpired()

	return c
}

// Add adds a user to the cache with expiration
func (c *UserCache) Add(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.users[userID] = time.Now().Add(time.Duration(c.expireMins) * time.Minute)
}

// Remove removes a user from the cache
func (c *UserCache) Remove(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.users, userID)
}

// Contains checks if a user is cached and not expired
func (c *UserCache) Contains(userID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	expiry, exists := c.users[userID]
	if !exists {
		return false
	}

	if time.Now().After(expiry) {
		// Removing requires the write lock; do it off this goroutine.
		go c.Remove(userID)
		return false
	}

	return true
}

func (c *UserCache) cleanupExpired() {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for userID, expiry := range c.users {
			if now.After(expiry) {
				delete(c.users, userID)
			}
		}
		c.mu.Unlock()
	}
}
