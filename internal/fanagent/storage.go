package fanagent

import (
	"context"
	"encoding/json"

	"github.com/saaga0h/zephyr-platform/internal/fancontrol"
	"github.com/saaga0h/zephyr-platform/internal/learning"
	"github.com/saaga0h/zephyr-platform/pkg/redis"
)

// Snapshot persistence. State is written at session boundaries only, never
// inside the tick path. Snapshots have no TTL: a zone that goes quiet keeps
// its learning history for the next session.

// restoreZone loads the persisted controller and learning snapshots for a
// zone, if any. Missing or corrupt snapshots leave the fresh state in place.
func (a *Agent) restoreZone(ctx context.Context, zone string, state *zoneState) {
	a.restoreController(ctx, zone, state.controller)
	a.restoreLearner(ctx, zone, state.learner)
}

func (a *Agent) restoreController(ctx context.Context, zone string, controller *fancontrol.Controller) {
	key := redis.ControllerSnapshotKey(zone)

	value, exists, err := a.redis.Get(ctx, key)
	if err != nil {
		a.logger.Error("Failed to load controller snapshot", "zone", zone, "error", err)
		return
	}
	if !exists {
		return
	}

	var snapshot fancontrol.Snapshot
	if err := json.Unmarshal([]byte(value), &snapshot); err != nil {
		a.logger.Warn("Discarding corrupt controller snapshot", "zone", zone, "error", err)
		return
	}

	controller.Restore(snapshot)
	a.logger.Info("Restored controller state",
		"zone", zone,
		"last_change_time", snapshot.LastChangeTime)
}

func (a *Agent) restoreLearner(ctx context.Context, zone string, learner *learning.Learner) {
	key := redis.LearningSnapshotKey(zone)

	value, exists, err := a.redis.Get(ctx, key)
	if err != nil {
		a.logger.Error("Failed to load learning snapshot", "zone", zone, "error", err)
		return
	}
	if !exists {
		return
	}

	var snapshot learning.Snapshot
	if err := json.Unmarshal([]byte(value), &snapshot); err != nil {
		a.logger.Warn("Discarding corrupt learning snapshot", "zone", zone, "error", err)
		return
	}

	learner.Restore(snapshot)
	a.logger.Info("Restored learning state",
		"zone", zone,
		"samples", learner.SampleCount(),
		"ready", learner.IsReady())
}

// saveAllZones persists every tracked zone. Called during shutdown.
func (a *Agent) saveAllZones(ctx context.Context) {
	a.stateMux.Lock()
	defer a.stateMux.Unlock()

	for zone, state := range a.zones {
		a.saveZone(ctx, zone, state)
	}

	if len(a.zones) > 0 {
		a.logger.Info("Persisted zone snapshots", "zone_count", len(a.zones))
	}
}

func (a *Agent) saveZone(ctx context.Context, zone string, state *zoneState) {
	controllerData, err := json.Marshal(state.controller.Snapshot())
	if err != nil {
		a.logger.Error("Failed to marshal controller snapshot", "zone", zone, "error", err)
	} else if err := a.redis.Set(ctx, redis.ControllerSnapshotKey(zone), controllerData, 0); err != nil {
		a.logger.Error("Failed to save controller snapshot", "zone", zone, "error", err)
	}

	learningData, err := json.Marshal(state.learner.Snapshot())
	if err != nil {
		a.logger.Error("Failed to marshal learning snapshot", "zone", zone, "error", err)
	} else if err := a.redis.Set(ctx, redis.LearningSnapshotKey(zone), learningData, 0); err != nil {
		a.logger.Error("Failed to save learning snapshot", "zone", zone, "error", err)
	}
}
