// Package tui is a terminal dashboard for midea-probe monitor --tui: a
// live table of discovered devices and their last status update,
// refreshed as session.Observer callbacks arrive over a channel bridged
// into bubbletea's message loop. It follows the Model/Update/View shape
// and key.Binding/help conventions of this module's configuration
// wizard TUI, trimmed to a single read-only screen — there is no
// editing flow here, only observation.
package tui
