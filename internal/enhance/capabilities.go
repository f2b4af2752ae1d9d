package enhance

import "strings"

// Capabilities selects which enhancement behaviors a run applies.
// With none enabled a run is a no-op.
type Capabilities struct {
	LazyInitialization    bool
	DirtyTracking         bool
	AssociationManagement bool
	ExtendedEnhancement   bool
}

// Any reports whether at least one capability is enabled.
func (c Capabilities) Any() bool {
	return c.LazyInitialization || c.DirtyTracking || c.AssociationManagement || c.ExtendedEnhancement
}

// Enabled lists the enabled capabilities in a fixed order.
func (c Capabilities) Enabled() []string {
	var out []string
	if c.LazyInitialization {
		out = append(out, "lazy-initialization")
	}
	if c.DirtyTracking {
		out = append(out, "dirty-tracking")
	}
	if c.AssociationManagement {
		out = append(out, "association-management")
	}
	if c.ExtendedEnhancement {
		out = append(out, "extended-enhancement")
	}
	return out
}

// String renders the enabled capabilities for logs and transformer
// environments.
func (c Capabilities) String() string {
	enabled := c.Enabled()
	if len(enabled) == 0 {
		return "none"
	}
	return strings.Join(enabled, ",")
}

// Map returns the capability switches keyed by their config names.
func (c Capabilities) Map() map[string]bool {
	return map[string]bool{
		"lazy_initialization":    c.LazyInitialization,
		"dirty_tracking":         c.DirtyTracking,
		"association_management": c.AssociationManagement,
		"extended_enhancement":   c.ExtendedEnhancement,
	}
}
