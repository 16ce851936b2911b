// ABOUTME: Last-observed lead state used to detect transitions between poll cycles
// ABOUTME: The whole map is loaded and saved through a store.KV under one key
package notify

import (
	"fmt"

	"github.com/harperreed/leadsheet/models"
	"github.com/harperreed/leadsheet/store"
)

// WatermarkKey is the store key of the persisted watermark map.
const WatermarkKey = "notification_watermark"

// Observation is the state of one lead as seen in the last cycle.
type Observation struct {
	Status     string `json:"status"`
	Consultant string `json:"consultant"`
	TravelDate string `json:"travelDate"`
}

// Watermark maps models.WatermarkKey to the last observation.
type Watermark map[string]Observation

func observe(l models.Lead) Observation {
	return Observation{Status: l.Status, Consultant: l.Consultant, TravelDate: l.TravelDate}
}

// LoadWatermark reads the watermark, returning an empty map when none is stored.
func LoadWatermark(kv store.KV) (Watermark, error) {
	wm := Watermark{}
	if _, err := store.GetJSON(kv, WatermarkKey, &wm); err != nil {
		return nil, fmt.Errorf("failed to load watermark: %w", err)
	}
	if wm == nil {
		wm = Watermark{}
	}
	return wm, nil
}

// SaveWatermark replaces the stored watermark with wm.
func SaveWatermark(kv store.KV, wm Watermark) error {
	if err := store.SetJSON(kv, WatermarkKey, wm); err != nil {
		return fmt.Errorf("failed to save watermark: %w", err)
	}
	return nil
}
