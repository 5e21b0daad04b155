package redis

import "fmt"

// snapshotKey returns the key holding the durable snapshot
func snapshotKey(prefix string) string {
	return fmt.Sprintf("%s:snapshot", prefix)
}

// snapshotTmpKey returns the staging key renamed over snapshotKey
func snapshotTmpKey(prefix string) string {
	return fmt.Sprintf("%s:snapshot:tmp", prefix)
}
