package aggregate

import (
	"context"
	"log/slog"
	"strings"

	"uptain-sync/internal/model"
)

// PlaceholderTrackerID is shipped in default settings and means "not configured".
const PlaceholderTrackerID = "XXXXXXXXXXXXXXXX"

// DefaultPluginVersion identifies this integration to the tracker.
const DefaultPluginVersion = "plentyshop-pwa_1.0.0"

// Settings are the tracker settings the builder consumes.
type Settings struct {
	TrackerID     string
	Domain        string // shop origin, e.g. https://shop.example
	DefaultLocale string // locale served without a path prefix
	PluginVersion string

	TransmitNewsletter bool
	TransmitCustomer   bool
	TransmitRevenue    bool
	Debug              bool
}

// Configured reports whether a usable tracker id is set.
func (s Settings) Configured() bool {
	return ValidTrackerID(s.TrackerID)
}

// ValidTrackerID reports whether id is set and not the placeholder.
func ValidTrackerID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && id != PlaceholderTrackerID
}

// RevenueSource provides the formatted lifetime revenue of the customer.
type RevenueSource interface {
	Calculate(ctx context.Context, authenticated bool) string
}

type zeroRevenue struct{}

func (zeroRevenue) Calculate(context.Context, bool) string { return "0.00" }

// Builder assembles snapshots.
type Builder struct {
	settings   Settings
	revenue    RevenueSource
	wishlist   WishlistFetcher
	predicates Predicates
	resolvers  []VariantResolver
	onWishlist func([]model.WishlistItem)
	logger     *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithRevenue sets the revenue source used when revenue transmission is on.
func WithRevenue(r RevenueSource) Option {
	return func(b *Builder) {
		if r != nil {
			b.revenue = r
		}
	}
}

// WithWishlistFetcher sets the fetcher used when no wishlist is cached.
func WithWishlistFetcher(f WishlistFetcher) Option {
	return func(b *Builder) { b.wishlist = f }
}

// WithWishlistSink receives wishlist items fetched during a build so the
// caller can cache them.
func WithWishlistSink(fn func([]model.WishlistItem)) Option {
	return func(b *Builder) { b.onWishlist = fn }
}

// WithPredicates replaces the personal-data predicates.
func WithPredicates(p Predicates) Option {
	return func(b *Builder) {
		if p != nil {
			b.predicates = p
		}
	}
}

// WithVariantResolvers replaces the variant resolution chain.
func WithVariantResolvers(r ...VariantResolver) Option {
	return func(b *Builder) {
		if len(r) > 0 {
			b.resolvers = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder creates a Builder for settings.
func NewBuilder(settings Settings, opts ...Option) *Builder {
	if settings.PluginVersion == "" {
		settings.PluginVersion = DefaultPluginVersion
	}
	b := &Builder{
		settings:   settings,
		revenue:    zeroRevenue{},
		predicates: FieldPredicates{},
		resolvers:  DefaultVariantResolvers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Settings returns the builder's settings.
func (b *Builder) Settings() Settings {
	return b.settings
}

// Build derives the snapshot for s. It returns nil when no valid tracker id
// is configured. Fetch failures never surface: they degrade the snapshot.
func (b *Builder) Build(ctx context.Context, s *State) *model.Snapshot {
	if !b.settings.Configured() || s == nil {
		return nil
	}

	page := ClassifyPage(s.Path, s.Meta, &s.Category)

	snap := model.NewSnapshot()
	snap.Set(model.KeyPlugin, b.settings.PluginVersion)
	snap.Set(model.KeyReturnURL, b.ReturnURL(s.Locale))
	snap.Set(model.KeyPage, string(page))
	snap.Set(model.KeyWishlist, b.wishlistValue(ctx, s))

	sections := [][]model.Field{
		b.cartSection(s),
		b.productSection(s, page),
		b.categorySection(s, page),
		b.searchSection(s, page),
		b.successSection(s, page),
		b.personalSection(ctx, s),
	}
	for _, section := range sections {
		snap.Merge(section)
	}

	if b.settings.Debug {
		b.logger.Debug("snapshot built", "page", page, "fields", snap.Len(), "snapshot", snap.Map())
	}
	return snap
}

// ReturnURL is the localized cart URL the tracker sends customers back to.
func (b *Builder) ReturnURL(locale string) string {
	prefix := ""
	if locale != "" && locale != b.settings.DefaultLocale {
		prefix = "/" + locale
	}
	return strings.TrimRight(b.settings.Domain, "/") + prefix + "/cart"
}
