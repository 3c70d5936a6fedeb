// Package scriptsync owns the lifecycle of the tracker's script element:
// creation, incremental attribute updates, late product data, and removal
// when the tracker is disabled or consent is withdrawn.
package scriptsync

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"uptain-sync/internal/aggregate"
	"uptain-sync/internal/model"
	"uptain-sync/internal/poll"
	"uptain-sync/internal/reconcile"
)

const (
	// ScriptID is the fixed id of the tracker script element.
	ScriptID = "__up_data_qp"

	// DefaultBaseURL serves the tracker script.
	DefaultBaseURL = "https://app.uptain.de/js/uptain.js"

	// ReadDataEvent asks the tracker to re-read its attributes.
	ReadDataEvent = "uptain.readData"

	// AttributePrefix precedes every snapshot key on the element.
	AttributePrefix = "data-"
)

// Default polling limits.
var (
	DefaultProductWait = poll.Budget{Interval: 250 * time.Millisecond, MaxAttempts: 12}
	DefaultProductPoll = poll.Budget{Interval: 500 * time.Millisecond, MaxAttempts: 20}
)

// SyncState is the lifecycle state of the script element.
type SyncState int

const (
	Absent SyncState = iota
	Synced
	Stale
)

func (s SyncState) String() string {
	switch s {
	case Synced:
		return "synced"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// Settings are the tracker settings the controller gates on.
type Settings struct {
	Enabled   bool
	TrackerID string
	BaseURL   string
}

// ScriptSrc returns the script URL for the tracker id.
func (s Settings) ScriptSrc() string {
	base := s.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return base + "?x=" + s.TrackerID
}

// Config wires a Controller. Document, State and Builder are required.
type Config struct {
	Settings  Settings
	Document  Document
	State     StateSource
	Builder   SnapshotBuilder
	Consent   ConsentGate
	Publisher Publisher
	Scheduler Scheduler
	Logger    *slog.Logger

	ProductWait poll.Budget
	ProductPoll poll.Budget
}

// Controller keeps the script element in step with the storefront state.
// It is the only writer of the element. Passes are serialized.
type Controller struct {
	doc       Document
	source    StateSource
	publisher Publisher
	scheduler Scheduler
	logger    *slog.Logger
	wait      poll.Budget
	pollLimit poll.Budget

	pass sync.Mutex // held for the duration of a synchronization pass

	mu          sync.Mutex
	settings    Settings
	builder     SnapshotBuilder
	consent     ConsentGate
	state       SyncState
	pending     bool
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
	routeCtx    context.Context
	routeCancel context.CancelFunc
	polling     bool

	wg sync.WaitGroup
}

// New creates a Controller.
func New(cfg Config) *Controller {
	if cfg.Publisher == nil {
		cfg.Publisher = nopPublisher{}
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = DelayScheduler{}
	}
	if cfg.Consent == nil {
		cfg.Consent = allowAll{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ProductWait.MaxAttempts == 0 {
		cfg.ProductWait = DefaultProductWait
	}
	if cfg.ProductPoll.MaxAttempts == 0 {
		cfg.ProductPoll = DefaultProductPoll
	}

	ctx, cancel := context.WithCancel(context.Background())
	routeCtx, routeCancel := context.WithCancel(ctx)

	return &Controller{
		doc:         cfg.Document,
		source:      cfg.State,
		publisher:   cfg.Publisher,
		scheduler:   cfg.Scheduler,
		logger:      cfg.Logger,
		wait:        cfg.ProductWait,
		pollLimit:   cfg.ProductPoll,
		settings:    cfg.Settings,
		builder:     cfg.Builder,
		consent:     cfg.Consent,
		ctx:         ctx,
		cancel:      cancel,
		routeCtx:    routeCtx,
		routeCancel: routeCancel,
	}
}

// State returns the lifecycle state of the script element.
func (c *Controller) State() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reconfigure swaps settings, builder and consent gate after a settings
// change and schedules a pass. Nil builder or gate keeps the current one.
func (c *Controller) Reconfigure(settings Settings, builder SnapshotBuilder, consent ConsentGate) {
	c.mu.Lock()
	c.settings = settings
	if builder != nil {
		c.builder = builder
	}
	if consent != nil {
		c.consent = consent
	}
	c.mu.Unlock()
	c.Trigger()
}

// EnsureScript removes the element when gating fails and creates it when
// absent. An existing element is left as is.
func (c *Controller) EnsureScript(ctx context.Context) {
	c.pass.Lock()
	defer c.pass.Unlock()

	if !c.allowed() {
		c.removeScript()
		return
	}
	if _, ok := c.doc.ScriptByID(ScriptID); ok {
		return
	}
	c.create(ctx)
}

// Resync recomputes the snapshot and applies the attribute delta to the
// element, creating it first when absent.
func (c *Controller) Resync(ctx context.Context) {
	c.pass.Lock()
	defer c.pass.Unlock()

	if !c.allowed() {
		c.removeScript()
		return
	}
	el, ok := c.doc.ScriptByID(ScriptID)
	if !ok {
		c.create(ctx)
		return
	}

	st := c.source.State()
	snap := c.currentBuilder().Build(ctx, &st)
	if snap == nil {
		c.removeScript()
		return
	}

	diff := reconcile.DiffAttributes(dataAttributes(el), desired(snap), model.AlwaysPresent)
	c.apply(el, diff)
	c.setState(Synced)

	if !diff.IsEmpty() {
		c.logger.Debug("tracker attributes updated", "removed", len(diff.ToRemove), "set", len(diff.ToSet))
		c.publisher.Publish(ReadDataEvent)
	}
	c.maybePollProduct(&st, snap)
}

// Trigger schedules a Resync. Triggers arriving before the pass runs are
// folded into it.
func (c *Controller) Trigger() {
	c.mu.Lock()
	if c.closed || c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = true
	if c.state == Synced {
		c.state = Stale
	}
	ctx := c.ctx
	c.wg.Add(1)
	c.mu.Unlock()

	c.scheduler.Schedule(func() {
		defer c.wg.Done()
		c.mu.Lock()
		c.pending = false
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		c.Resync(ctx)
	})
}

// OnRouteChange cancels product waits and polls of the page being left and
// schedules a pass for the new page.
func (c *Controller) OnRouteChange() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.routeCancel()
	c.routeCtx, c.routeCancel = context.WithCancel(c.ctx)
	c.polling = false
	c.mu.Unlock()
	c.Trigger()
}

// Watch subscribes Trigger to every source. The returned function unsubscribes.
func (c *Controller) Watch(sources ...Observable) func() {
	unsubs := make([]func(), 0, len(sources))
	for _, src := range sources {
		if src == nil {
			continue
		}
		unsubs = append(unsubs, src.Subscribe(c.Trigger))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Close cancels waits and polls and blocks until scheduled passes finish.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) allowed() bool {
	c.mu.Lock()
	settings, consent := c.settings, c.consent
	c.mu.Unlock()
	return settings.Enabled && aggregate.ValidTrackerID(settings.TrackerID) && consent.Allowed()
}

func (c *Controller) currentBuilder() SnapshotBuilder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builder
}

func (c *Controller) currentRoute() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.routeCtx
}

func (c *Controller) setState(s SyncState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// create builds the first snapshot and attaches a new element. On product
// pages it waits a bounded time for product data before going without it.
func (c *Controller) create(ctx context.Context) {
	st := c.source.State()
	if c.isProductPage(&st) && st.CurrentProduct() == nil {
		waitCtx, stop := mergeCancel(ctx, c.currentRoute())
		found, _ := c.wait.Until(waitCtx, func(context.Context) bool {
			cur := c.source.State()
			return cur.CurrentProduct() != nil
		})
		stop()
		if !found {
			c.logger.Debug("product data not available at script creation")
		}
		st = c.source.State()
	}

	snap := c.currentBuilder().Build(ctx, &st)
	if snap == nil {
		return
	}

	c.mu.Lock()
	settings := c.settings
	c.mu.Unlock()

	c.doc.Remove(ScriptID)
	el := c.doc.NewScript(ScriptID, settings.ScriptSrc(), true)
	for _, f := range snap.Fields() {
		if f.Value != "" || model.AlwaysPresent(f.Key) {
			el.SetAttribute(AttributePrefix+f.Key, f.Value)
		}
	}
	c.doc.Append(el)
	c.setState(Synced)
	c.logger.Info("tracker script created", "page", pageOf(snap), "attributes", snap.Len())

	c.maybePollProduct(&st, snap)
}

func (c *Controller) removeScript() {
	c.stopPolling()
	if c.doc.Remove(ScriptID) {
		c.logger.Info("tracker script removed")
	}
	c.setState(Absent)
}

func (c *Controller) apply(el Element, diff *reconcile.AttributeDiff) {
	for _, key := range diff.ToRemove {
		el.RemoveAttribute(AttributePrefix + key)
	}
	for _, s := range diff.ToSet {
		el.SetAttribute(AttributePrefix+s.Key, s.Value)
	}
}

func (c *Controller) isProductPage(st *aggregate.State) bool {
	return aggregate.ClassifyPage(st.Path, st.Meta, &st.Category) == aggregate.PageProduct
}

// dataAttributes returns the element's data-* attributes keyed by snapshot key.
func dataAttributes(el Element) map[string]string {
	out := make(map[string]string)
	for name, value := range el.Attributes() {
		if key, ok := strings.CutPrefix(name, AttributePrefix); ok {
			out[key] = value
		}
	}
	return out
}

func desired(snap *model.Snapshot) []reconcile.Desired {
	fields := snap.Fields()
	out := make([]reconcile.Desired, len(fields))
	for i, f := range fields {
		out[i] = reconcile.Desired{Key: f.Key, Value: f.Value}
	}
	return out
}

func pageOf(snap *model.Snapshot) string {
	v, _ := snap.Get(model.KeyPage)
	return v
}

// mergeCancel returns a context cancelled when either a or b is done.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
