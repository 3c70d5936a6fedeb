package aggregate

import (
	"context"
	"strconv"

	"uptain-sync/internal/model"
	"uptain-sync/internal/serialize"
)

// WishlistFetcher loads the customer's wishlist.
type WishlistFetcher interface {
	FetchWishlist(ctx context.Context) ([]model.WishlistItem, error)
}

// WishlistFetcherFunc adapts a function to WishlistFetcher.
type WishlistFetcherFunc func(ctx context.Context) ([]model.WishlistItem, error)

// FetchWishlist calls f.
func (f WishlistFetcherFunc) FetchWishlist(ctx context.Context) ([]model.WishlistItem, error) {
	return f(ctx)
}

// wishlistValue renders the wishlist attribute. Cached items are used when
// present; otherwise a fetch is made when ids are known or the customer is
// logged in. Failures degrade to an empty map.
func (b *Builder) wishlistValue(ctx context.Context, s *State) string {
	items := s.Wishlist
	if len(items) == 0 && b.wishlist != nil && (len(s.WishlistIDs) > 0 || s.Authenticated) {
		fetched, err := b.wishlist.FetchWishlist(ctx)
		if err != nil {
			b.logger.Warn("wishlist fetch failed", "error", err)
		} else {
			items = fetched
			if len(fetched) > 0 && b.onWishlist != nil {
				b.onWishlist(fetched)
			}
		}
	}

	m := make(serialize.Map, 0, len(items))
	for _, item := range items {
		id := item.VariationID
		name := ""
		if item.Variation != nil {
			if id == 0 {
				id = item.Variation.ID
			}
			name = item.Variation.Name
		}
		if id == 0 {
			continue
		}
		m = append(m, serialize.Field{
			Key:   strconv.Itoa(id),
			Value: serialize.ProductEntry(1, name, ResolveVariants(item.Variation, b.resolvers)),
		})
	}
	value := serialize.EncodeCompact(m)

	if b.settings.Debug {
		b.logger.Debug("wishlist attribute", "value", value, "rows", len(serialize.ParseDebugRows(value)))
	}
	return value
}
