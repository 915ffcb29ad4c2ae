package mediate

import (
	"sort"
)

// Module groups related registrations so features ship their handlers and
// stages as one unit.
//
// Example:
//
//	type OrdersModule struct{}
//
//	func (OrdersModule) Register(m *mediate.Mediator) {
//	    mediate.RegisterHandler(m, PlaceOrderHandler{})
//	    mediate.RegisterNotificationHandler(m, OrderPlacedAuditor{})
//	}
type Module interface {
	Register(m *Mediator)
}

// RegisterModules applies each module's registrations in order.
func RegisterModules(m *Mediator, mods ...Module) {
	for _, mod := range mods {
		mod.Register(m)
	}
}

// ValidateRegistrations dry-runs the modules against a scratch mediator and
// reports every request type that gained pipeline stages but no handler.
// Run it at startup or in a test so missing handlers fail before the first
// dispatch instead of during it.
func ValidateRegistrations(mods ...Module) error {
	m := New()
	RegisterModules(m, mods...)
	return m.Validate()
}

// Validate checks this mediator's registry for request types referenced by
// closed stage registrations without a handler or stream handler binding.
// One or more gaps fail with *InvalidConfigurationError naming all of them.
func (m *Mediator) Validate() error {
	var missing []string
	for _, t := range m.registry.closedStageTypes() {
		if _, ok := m.registry.Resolve(t); !ok {
			missing = append(missing, t.String())
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &InvalidConfigurationError{Missing: missing}
}
