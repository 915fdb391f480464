package overlay

import (
	"context"
	"encoding/json"

	"overlay-streamer/internal/platform/metrics"
)

// Service validates overlay requests and forwards them to a Store.
type Service struct {
	store   Store
	metrics *metrics.Metrics
}

// NewService returns a Service over store. m may be nil.
func NewService(store Store, m *metrics.Metrics) *Service {
	return &Service{store: store, metrics: m}
}

func (s *Service) count(op string) {
	if s.metrics != nil {
		s.metrics.IncOverlayOp(op)
	}
}

// List returns overlays in creation order, optionally for one stream.
func (s *Service) List(ctx context.Context, streamKey string) ([]Overlay, error) {
	out, err := s.store.List(ctx, streamKey)
	if err != nil {
		return nil, err
	}
	s.count(metrics.OpList)
	return out, nil
}

// Create validates raw and stores the resulting overlay.
func (s *Service) Create(ctx context.Context, raw map[string]json.RawMessage) (Overlay, error) {
	o, err := Build(raw)
	if err != nil {
		return Overlay{}, err
	}
	created, err := s.store.Insert(ctx, o)
	if err != nil {
		return Overlay{}, err
	}
	s.count(metrics.OpCreate)
	return created, nil
}

// Update applies the recognized members of raw to the overlay with id.
func (s *Service) Update(ctx context.Context, id string, raw map[string]json.RawMessage) (Overlay, error) {
	p, err := ParsePatch(raw)
	if err != nil {
		return Overlay{}, err
	}
	updated, err := s.store.Update(ctx, id, p)
	if err != nil {
		return Overlay{}, err
	}
	s.count(metrics.OpUpdate)
	return updated, nil
}

// Delete removes the overlay with id; absent ids succeed.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.count(metrics.OpDelete)
	return nil
}
