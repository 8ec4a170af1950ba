package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// BattleChannel returns the Redis PubSub channel a battle's events are published on
func (r *CacheKeyStruct) BattleChannel(battleID string) string {
	return fmt.Sprintf("battle:%s:events", battleID)
}

// BattleSnapshotKey returns the cache key holding the last event broadcast for a battle
func (r *CacheKeyStruct) BattleSnapshotKey(battleID string) string {
	return fmt.Sprintf("battle:%s:snapshot", battleID)
}

var CacheKey = NewCacheKeyStruct()
