package wire

// Primitive scalar types that commonly appear as Args elements are
// registered here; composite/domain types (events, host-state maps,
// config snapshots) are registered by their owning packages.
func init() {
	Register("")
	Register(0)
	Register(false)
	Register(0.0)
	Register(map[string]string{})
}
