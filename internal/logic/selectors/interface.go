package selectors

import (
	"context"

	"github.com/patrickwarner/adtarget/internal/models"
	"github.com/patrickwarner/adtarget/internal/targeting"
)

// Selector defines a pluggable interface for advertisement selection.
type Selector interface {
	SelectAdvertisement(ctx context.Context, marketplaceID string, rc targeting.RequestContext) models.GeneratedAdvertisement
}
