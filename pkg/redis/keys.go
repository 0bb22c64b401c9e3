package redis

import "fmt"

// Key construction helpers for fan controller state snapshots

// ControllerSnapshotKey returns the key for a zone's controller snapshot (string, JSON)
// Pattern: fan:controller:{zone}
func ControllerSnapshotKey(zone string) string {
	return fmt.Sprintf("fan:controller:%s", zone)
}

// LearningSnapshotKey returns the key for a zone's learning snapshot (string, JSON)
// Pattern: fan:learning:{zone}
func LearningSnapshotKey(zone string) string {
	return fmt.Sprintf("fan:learning:%s", zone)
}
