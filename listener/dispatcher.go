package listener

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/beandb/fanout/change"
	"github.com/beandb/fanout/telemetry"
)

// Dispatcher invokes registered listeners for a committed change set. It runs
// on the background worker pool, never on the commit path.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher over a sealed registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch notifies listeners for everything the set changed. Bean-level
// listeners run before table-level listeners; within a kind the set's source
// order is preserved. A failing listener is logged and skipped; it never
// stops the remaining listeners or the surrounding task.
func (d *Dispatcher) Dispatch(set *change.Set) {
	if set == nil || d.registry.IsEmpty() {
		return
	}

	for _, bc := range set.Inserted() {
		d.notifyBean(bc)
	}
	for _, bc := range set.Updated() {
		d.notifyBean(bc)
	}
	for _, bc := range set.Deleted() {
		d.notifyBean(bc)
	}

	for _, iud := range set.TableEvents() {
		for _, l := range d.registry.BulkFor(iud.Table) {
			d.notifyTable(l, iud)
		}
	}
}

func (d *Dispatcher) notifyBean(bc change.BeanChange) {
	for _, l := range d.registry.PersistFor(bc.BeanType) {
		d.safeNotify(l, bc)
	}
}

func (d *Dispatcher) safeNotify(l PersistListener, bc change.BeanChange) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.ListenerErrorsTotal.Inc()
			log.Error().
				Interface("panic", r).
				Str("listener", fmt.Sprintf("%T", l)).
				Str("bean_type", bc.BeanType).
				Str("kind", bc.Kind.String()).
				Interface("id", bc.ID).
				Msg("Persist listener failed, remaining listeners unaffected")
		}
	}()

	switch bc.Kind {
	case change.KindInsert:
		l.OnInsert(bc.BeanType, bc.ID)
	case change.KindUpdate:
		l.OnUpdate(bc.BeanType, bc.ID, bc.Props)
	case change.KindDelete:
		l.OnDelete(bc.BeanType, bc.ID)
	}
	telemetry.ListenerNotificationsTotal.With("bean").Inc()
}

func (d *Dispatcher) notifyTable(l BulkTableListener, iud change.TableIUD) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.ListenerErrorsTotal.Inc()
			log.Error().
				Interface("panic", r).
				Str("listener", fmt.Sprintf("%T", l)).
				Str("table", iud.Table).
				Msg("Bulk table listener failed, remaining listeners unaffected")
		}
	}()

	l.OnTableChange(iud.Table, iud.Inserts, iud.Updates, iud.Deletes)
	telemetry.ListenerNotificationsTotal.With("table").Inc()
}
