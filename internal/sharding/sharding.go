package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of event partitions.
const ShardCount = 1024

// GetShardID calculates the deterministic shard for an owner subject.
func GetShardID(ownerID string) int {
	checksum := crc32.ChecksumIEEE([]byte(ownerID))
	return int(checksum % ShardCount)
}

// EventSubject returns the NATS subject for an owner's todo events.
// Format: app.event.{shard_id}.owner.{token}
func EventSubject(ownerID string) string {
	return fmt.Sprintf("app.event.%d.owner.%s", GetShardID(ownerID), SubjectToken(ownerID))
}

// SubjectToken makes an identity-provider subject safe to use as a single
// subject token. Provider subjects may contain '.', '*', '>' or whitespace.
func SubjectToken(ownerID string) string {
	out := make([]byte, 0, len(ownerID))
	for i := 0; i < len(ownerID); i++ {
		c := ownerID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}
