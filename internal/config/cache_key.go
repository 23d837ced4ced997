package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SnapshotHighlightsKey returns the key holding a session's highlight set
func (r *CacheKeyStruct) SnapshotHighlightsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:highlights", sessionID)
}

// SnapshotStruckKey returns the key holding a session's struck-option set
func (r *CacheKeyStruct) SnapshotStruckKey(sessionID string) string {
	return fmt.Sprintf("session:%s:struck", sessionID)
}

var CacheKey = NewCacheKeyStruct()
