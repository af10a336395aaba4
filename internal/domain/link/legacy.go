package link

import "context"

// LegacyAdapter accepts the numeric link ids used by older clients and
// forwards to the short-code operations.
type LegacyAdapter struct {
	store   Store
	service *Service
}

func NewLegacyAdapter(store Store, service *Service) *LegacyAdapter {
	return &LegacyAdapter{store: store, service: service}
}

func (a *LegacyAdapter) RevokeByLinkID(ctx context.Context, id, requester int64) (string, error) {
	l, err := a.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return l.ShortCode, a.service.RevokeLink(ctx, l.ShortCode, requester)
}
