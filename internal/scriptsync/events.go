package scriptsync

// EventKind names a storefront event the controller reacts to.
type EventKind string

const (
	EventProductLoaded  EventKind = "product-loaded"
	EventAddToWishlist  EventKind = "add-to-wishlist"
	EventAddToCart      EventKind = "add-to-cart"
	EventRouteChange    EventKind = "route-change"
	EventConsentChange  EventKind = "consent-change"
	EventSettingsChange EventKind = "settings-change"
)

// Event is a storefront event.
type Event struct {
	Kind EventKind `json:"kind"`
	Path string    `json:"path,omitempty"`
}

// HandleEvent schedules the pass an event calls for. Unknown kinds are ignored.
func (c *Controller) HandleEvent(ev Event) {
	switch ev.Kind {
	case EventRouteChange:
		c.OnRouteChange()
	case EventProductLoaded, EventAddToWishlist, EventAddToCart, EventConsentChange, EventSettingsChange:
		c.Trigger()
	default:
		c.logger.Debug("ignoring unknown event", "kind", ev.Kind)
	}
}

// ParseEventKind maps an event name to its kind.
func ParseEventKind(name string) (EventKind, bool) {
	switch k := EventKind(name); k {
	case EventProductLoaded, EventAddToWishlist, EventAddToCart, EventRouteChange, EventConsentChange, EventSettingsChange:
		return k, true
	default:
		return "", false
	}
}
