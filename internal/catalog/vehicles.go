package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gwi.com/fleet-copilot/internal/store"
	"gwi.com/fleet-copilot/internal/telematics"
)

type VehicleSource interface {
	ListVehicles(ctx context.Context) ([]telematics.Vehicle, error)
}

type VehicleStore interface {
	GetVehicleHash(ctx context.Context, id string) (string, error)
	UpsertVehicle(ctx context.Context, v *store.Vehicle) error
}

// VehicleCatalog mirrors the upstream vehicle directory into the local store,
// which the resolver reads from.
type VehicleCatalog struct {
	source   VehicleSource
	store    VehicleStore
	gate     gate
	mu       sync.Mutex
	logger   *slog.Logger
	observer Observer
}

func NewVehicleCatalog(source VehicleSource, st VehicleStore, opts Options) (*VehicleCatalog, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	return &VehicleCatalog{
		source:   source,
		store:    st,
		gate:     gate{cache: opts.Cache, clock: opts.Clock, key: "vehicles:last_sync", interval: interval(opts.Interval)},
		logger:   opts.Logger,
		observer: opts.Observer,
	}, nil
}

func (c *VehicleCatalog) ShouldSync(_ context.Context) bool {
	return c.gate.due()
}

func (c *VehicleCatalog) SyncNow(ctx context.Context) (SyncResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.sync(ctx)
	if c.observer != nil {
		c.observer.ObserveSync("vehicles", res, err)
	}
	if err != nil {
		c.logger.Error("vehicle sync failed", "error", err)
		return res, err
	}
	c.gate.mark()
	c.logger.Info("vehicle sync completed", "created", res.Created, "updated", res.Updated, "unchanged", res.Unchanged)
	return res, nil
}

func (c *VehicleCatalog) sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	vehicles, err := c.source.ListVehicles(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to fetch vehicles: %w", err)
	}
	for _, v := range vehicles {
		raw, err := payload(v.Raw, v)
		if err != nil {
			return res, fmt.Errorf("failed to encode vehicle %s: %w", v.ID, err)
		}
		hash, err := DataHash(raw)
		if err != nil {
			return res, err
		}
		stored, err := c.store.GetVehicleHash(ctx, v.ID)
		if err != nil {
			return res, err
		}
		if stored == hash {
			res.Unchanged++
			continue
		}
		tagIDs := make([]string, 0, len(v.Tags))
		for _, t := range v.Tags {
			tagIDs = append(tagIDs, t.ID)
		}
		rec := &store.Vehicle{
			SamsaraID:    v.ID,
			Name:         v.Name,
			Make:         v.Make,
			Model:        v.Model,
			Year:         v.Year,
			LicensePlate: v.LicensePlate,
			VIN:          v.VIN,
			TagIDs:       tagIDs,
			DataHash:     hash,
		}
		if err := c.store.UpsertVehicle(ctx, rec); err != nil {
			return res, err
		}
		if stored == "" {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

// EnsureFresh syncs when forced or due. It reports whether a sync ran.
func (c *VehicleCatalog) EnsureFresh(ctx context.Context, force bool) (bool, SyncResult, error) {
	if !force && !c.ShouldSync(ctx) {
		return false, SyncResult{}, nil
	}
	res, err := c.SyncNow(ctx)
	return true, res, err
}
