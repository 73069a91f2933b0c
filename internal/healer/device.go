package healer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halcyon-systems/halcyon/internal/metrics"
	"github.com/halcyon-systems/halcyon/internal/platform"
	"github.com/halcyon-systems/halcyon/internal/provider"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// capabilityTable maps a device family to the recovery actions it supports,
// in escalation order. Mesh devices (zigbee, zwave) have no remote power
// cycle; unknown hardware only gets the safe rediscover.
var capabilityTable = map[types.DeviceFamily][]types.ActionType{
	types.FamilyZigbee:  {types.ActionDeviceReconnect, types.ActionDeviceRediscover},
	types.FamilyZWave:   {types.ActionDeviceReconnect, types.ActionDeviceRediscover},
	types.FamilyWifi:    {types.ActionDeviceReconnect, types.ActionDeviceReboot, types.ActionDeviceRediscover},
	types.FamilyCloud:   {types.ActionDeviceReconnect, types.ActionDeviceReboot, types.ActionDeviceRediscover},
	types.FamilyUnknown: {types.ActionDeviceRediscover},
}

// DeviceHealer resolves failed entities to their owning devices and walks
// each device's capability list, then verifies entity states after a settle
// delay.
type DeviceHealer struct {
	platform platform.Client
	store    provider.Store
	config   types.HealingConfig
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDeviceHealer creates a DeviceHealer.
func NewDeviceHealer(client platform.Client, store provider.Store, cfg types.HealingConfig, logger *slog.Logger) *DeviceHealer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Normalize()
	return &DeviceHealer{
		platform: client,
		store:    store,
		config:   cfg,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Heal runs a device-level pass over the given entities. An empty entity
// list is an explicit failure: there is nothing to act on and reporting
// success would mask a caller bug.
func (h *DeviceHealer) Heal(ctx context.Context, cascadeID string, entityIDs []string) (*types.DeviceHealResult, error) {
	result := &types.DeviceHealResult{
		EntityResults: make(map[string]bool, len(entityIDs)),
	}
	if len(entityIDs) == 0 {
		h.logger.Warn("device heal invoked with no entities", "cascade", cascadeID)
		return result, nil
	}

	entitiesByDevice, orphans := h.groupByDevice(ctx, entityIDs)
	for _, id := range orphans {
		result.EntityResults[id] = false
	}
	if len(entitiesByDevice) == 0 {
		return result, nil
	}

	attempted := make(map[types.ActionType]bool)
	for deviceID := range entitiesByDevice {
		result.DevicesAttempted = append(result.DevicesAttempted, deviceID)
		if action, ok := h.healDevice(ctx, cascadeID, deviceID, attempted); ok {
			result.FinalAction = action
		}
	}
	for action := range attempted {
		result.ActionsAttempted = append(result.ActionsAttempted, action)
	}

	if err := h.sleep(ctx, h.config.VerificationDelay()); err != nil {
		return result, err
	}

	healthy, err := verifyEntities(ctx, h.platform, entityIDs)
	if err != nil {
		return result, err
	}
	for id, ok := range healthy {
		result.EntityResults[id] = ok
	}

	healed := 0
	for _, ok := range result.EntityResults {
		if ok {
			healed++
		}
	}
	fraction := float64(healed) / float64(len(entityIDs))
	result.Success = fraction >= h.config.PartialSuccessThreshold

	for deviceID, entities := range entitiesByDevice {
		if allHealthy(entities, result.EntityResults) {
			result.DevicesHealed = append(result.DevicesHealed, deviceID)
		}
	}

	if result.Success {
		metrics.DeviceHeals.Add(1)
		if fraction < 1 {
			h.logger.Info("device heal partial success",
				"cascade", cascadeID, "healed", healed, "total", len(entityIDs),
				"fraction", fraction, "threshold", h.config.PartialSuccessThreshold)
		}
	}
	return result, nil
}

// groupByDevice resolves each entity's owning device, deduplicating shared
// devices. Entities without a device come back as orphans and cannot be
// helped at this level.
func (h *DeviceHealer) groupByDevice(ctx context.Context, entityIDs []string) (map[string][]string, []string) {
	byDevice := make(map[string][]string)
	var orphans []string
	for _, entityID := range entityIDs {
		deviceID, err := h.platform.DeviceForEntity(ctx, entityID)
		if err != nil {
			h.logger.Warn("device lookup failed", "entity", entityID, "error", err)
			orphans = append(orphans, entityID)
			continue
		}
		if deviceID == "" {
			orphans = append(orphans, entityID)
			continue
		}
		byDevice[deviceID] = append(byDevice[deviceID], entityID)
	}
	return byDevice, orphans
}

// healDevice walks the device's capability list in order and stops at the
// first action the platform accepts. Returns the accepted action.
func (h *DeviceHealer) healDevice(ctx context.Context, cascadeID, deviceID string, attempted map[types.ActionType]bool) (types.ActionType, bool) {
	entry, err := h.platform.GetDevice(ctx, deviceID)
	if err != nil {
		h.logger.Warn("device registry lookup failed", "device", deviceID, "error", err)
		entry = &platform.DeviceEntry{DeviceID: deviceID}
	}
	family := InferFamily(entry)

	for _, action := range capabilityTable[family] {
		attempted[action] = true
		err := h.perform(ctx, entry, action)
		h.record(ctx, cascadeID, deviceID, action, err)
		if err == nil {
			return action, true
		}
		h.logger.Debug("device action failed",
			"device", deviceID, "family", family, "action", action, "error", err)
	}
	return "", false
}

// perform dispatches one device action. Rediscovery has no dedicated
// registry endpoint; reloading the owning config entry forces the
// integration to re-enumerate the device.
func (h *DeviceHealer) perform(ctx context.Context, entry *platform.DeviceEntry, action types.ActionType) error {
	switch action {
	case types.ActionDeviceReconnect:
		return h.platform.ReconnectDevice(ctx, entry.DeviceID)
	case types.ActionDeviceReboot:
		rebootCtx, cancel := context.WithTimeout(ctx, time.Duration(h.config.RebootTimeoutSeconds)*time.Second)
		defer cancel()
		return h.platform.RebootDevice(rebootCtx, entry.DeviceID)
	case types.ActionDeviceRediscover:
		if len(entry.ConfigEntryIDs) == 0 {
			return fmt.Errorf("device %s has no config entry to rediscover through", entry.DeviceID)
		}
		return h.platform.ReloadIntegration(ctx, entry.ConfigEntryIDs[0])
	default:
		return fmt.Errorf("unsupported device action %q", action)
	}
}

// verifyEntities samples current state for every entity concurrently. An
// entity counts as healed when it reports a concrete state again.
func verifyEntities(ctx context.Context, client platform.Client, entityIDs []string) (map[string]bool, error) {
	healthy := make(map[string]bool, len(entityIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, entityID := range entityIDs {
		entityID := entityID
		g.Go(func() error {
			sample, err := client.GetState(gctx, entityID)
			ok := err == nil && sample != nil && Responsive(sample.State)
			mu.Lock()
			healthy[entityID] = ok
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return healthy, nil
}

func (h *DeviceHealer) record(ctx context.Context, cascadeID, deviceID string, action types.ActionType, attemptErr error) {
	rec := types.HealingAction{
		CascadeID: cascadeID,
		Level:     types.LevelDevice,
		Action:    action,
		DeviceID:  deviceID,
		Attempt:   1,
		Success:   attemptErr == nil,
		Timestamp: time.Now(),
	}
	if attemptErr != nil {
		rec.ErrorMessage = attemptErr.Error()
	}
	if err := h.store.AppendHealingAction(ctx, rec); err != nil {
		h.logger.Warn("failed to record healing action", "device", deviceID, "error", err)
	}
}

func allHealthy(entities []string, results map[string]bool) bool {
	for _, id := range entities {
		if !results[id] {
			return false
		}
	}
	return true
}

// Responsive reports whether a state string indicates a live entity.
func Responsive(state string) bool {
	switch state {
	case "", "unavailable", "unknown":
		return false
	default:
		return true
	}
}
