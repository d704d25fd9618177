package session

// Chrome-scope commands every Session implementation understands.
// A Marionette-backed session maps each to a privileged script; the
// in-memory and rod sessions implement them natively.
const (
	// CommandTabHandle: args (tab Element) -> string handle.
	CommandTabHandle = "tabbrowser.handleForTab"
	// CommandSelectedTabHandle: args (tab strip Element) -> string handle of
	// the tab the application considers selected.
	CommandSelectedTabHandle = "tabbrowser.selectedTabHandle"
	// CommandSelectTab: args (tab strip Element, tab Element) -> nil. Marks
	// the tab selected in application state without moving session focus.
	CommandSelectTab = "tabbrowser.selectTab"

	// CommandGetPref: args (name string) -> value or nil if unset.
	CommandGetPref = "prefs.get"
	// CommandSetPref: args (name string, value) -> nil.
	CommandSetPref = "prefs.set"
	// CommandResetPref: args (name string) -> nil. Restores the default.
	CommandResetPref = "prefs.reset"

	// CommandGetEntity: args (entity id string) -> localized string.
	CommandGetEntity = "l10n.entity"
)
