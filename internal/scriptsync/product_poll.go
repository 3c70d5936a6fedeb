package scriptsync

import (
	"context"

	"uptain-sync/internal/aggregate"
	"uptain-sync/internal/model"
	"uptain-sync/internal/reconcile"
)

// maybePollProduct starts the late product poll when a product page was
// synced without complete product attributes. At most one poll runs per route.
func (c *Controller) maybePollProduct(st *aggregate.State, snap *model.Snapshot) {
	if !c.isProductPage(st) || productComplete(snap.Map()) {
		return
	}

	c.mu.Lock()
	if c.polling || c.closed {
		c.mu.Unlock()
		return
	}
	c.polling = true
	ctx := c.routeCtx
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		done, err := c.pollLimit.Until(ctx, c.patchProduct)
		c.logger.Debug("product poll finished", "complete", done, "cancelled", err != nil)

		c.mu.Lock()
		if c.routeCtx == ctx {
			c.polling = false
		}
		c.mu.Unlock()
	}()
}

// patchProduct writes only product-* attributes once product data exists.
// It reports true when every expected product attribute is non-empty.
func (c *Controller) patchProduct(ctx context.Context) bool {
	st := c.source.State()
	p := st.CurrentProduct()
	if p == nil {
		return false
	}

	c.pass.Lock()
	defer c.pass.Unlock()

	if ctx.Err() != nil {
		return false
	}
	el, ok := c.doc.ScriptByID(ScriptID)
	if !ok {
		// Script removed meanwhile; nothing left to patch.
		return true
	}

	fields := c.currentBuilder().ProductFields(p)
	want := make([]reconcile.Desired, len(fields))
	for i, f := range fields {
		want[i] = reconcile.Desired{Key: f.Key, Value: f.Value}
	}

	current := dataAttributes(el)
	diff := reconcile.DiffAttributes(current, want, model.AlwaysPresent).FilterPrefix(model.ProductKeyPrefix)
	c.apply(el, diff)
	if !diff.IsEmpty() {
		c.logger.Debug("late product data applied", "set", len(diff.ToSet))
		c.publisher.Publish(ReadDataEvent)
	}
	return productComplete(dataAttributes(el))
}

func (c *Controller) stopPolling() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.polling {
		return
	}
	c.routeCancel()
	c.routeCtx, c.routeCancel = context.WithCancel(c.ctx)
	c.polling = false
}

func productComplete(attrs map[string]string) bool {
	for _, key := range aggregate.ProductKeys {
		if attrs[key] == "" {
			return false
		}
	}
	return true
}
