package resolver

// ChannelPriority controls how candidates from different channels compete
// for the same package name.
type ChannelPriority int

const (
	ChannelPriorityFlexible ChannelPriority = iota
	ChannelPriorityStrict
	ChannelPriorityDisabled
)

// UpdateModifier controls how aggressively already-installed packages are
// allowed to change.
type UpdateModifier int

const (
	UpdateModifierNotSet UpdateModifier = iota
	UpdateModifierFreezeInstalled
	UpdateModifierUpdateSpecs
	UpdateModifierUpdateAll
	UpdateModifierSpecsSatisfiedSkipSolve
)

// DepsModifier controls whether transitive dependencies are solved at all.
type DepsModifier int

const (
	DepsModifierNotSet DepsModifier = iota
	DepsModifierNoDeps
	DepsModifierOnlyDeps
)

// Options configures a Solve call.
type Options struct {
	ChannelPriority ChannelPriority
	UpdateModifier  UpdateModifier
	DepsModifier    DepsModifier

	// Trymax bounds the number of bisection iterations per objective tier
	// (see internal/minimize). Zero selects a sensible default.
	Trymax int
}
