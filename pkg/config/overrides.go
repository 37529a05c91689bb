package config

import "strconv"

// Well-known map-maker configuration keys.
const (
	KeyNumIter        = "numiter"
	KeyIterMap        = "itermap"
	KeyBoloMap        = "bolomap"
	KeyShortMap       = "shortmap"
	KeyFlagMap        = "flagmap"
	KeySampCube       = "sampcube"
	KeyNoiCalcFirst   = "noi.calcfirst"
	KeyExportNDF      = "exportNDF"
	KeyNoExportSetBad = "noexportsetbad"
	KeyExportClean    = "exportclean"
	KeyDoClean        = "doclean"
	KeyImportSky      = "importsky"
	KeyExtImport      = "ext.import"

	// Undef clears a parameter in the map-maker's configuration syntax.
	Undef = "<undef>"
)

// ZeroNotLast is the key that suppresses zero-masking on the final pass
// of a sub-model.
func ZeroNotLast(model string) string { return model + ".zero_notlast" }

// ZeroNIter is the key giving the number of passes after which
// zero-masking of a sub-model is switched off.
func ZeroNIter(model string) string { return model + ".zero_niter" }

// ZeroFreeze is the key giving the number of passes after which the
// zero-mask of a sub-model stops changing.
func ZeroFreeze(model string) string { return model + ".zero_freeze" }

// NotFirst is the key that skips a sub-model on the first pass.
func NotFirst(model string) string { return model + ".notfirst" }

// Int formats an integer configuration value.
func Int(v int) string { return strconv.Itoa(v) }

// firstOverrides are added to the base configuration for the first pass.
// The first pass is also the last pass the map-maker sees, so any enabled
// masking is forced on for it.
var firstOverrides = []Entry{
	{KeyNumIter, "1"},
	{KeyIterMap, "0"},
	{KeyBoloMap, "0"},
	{KeyShortMap, "0"},
	{KeyFlagMap, Undef},
	{KeySampCube, "0"},
	{KeyNoiCalcFirst, "1"},
	{KeyExportNDF, "ext"},
	{KeyNoExportSetBad, "1"},
	{KeyExportClean, "1"},
	{ZeroNotLast("ast"), "0"},
	{ZeroNotLast("flt"), "0"},
	{ZeroNotLast("com"), "0"},
}

// subsequentOverrides are layered over the first-pass document for every
// later pass. They switch off exporting and cleaning, and read the prior
// sky estimate and the exported noise model instead.
var subsequentOverrides = []Entry{
	{KeyExportNDF, "0"},
	{KeyExportClean, "0"},
	{KeyDoClean, "0"},
	{KeyImportSky, "ref"},
	{KeyExtImport, "1"},
	{NotFirst("flt"), "0"},
	{NotFirst("pln"), "0"},
	{NotFirst("smo"), "0"},
}

// FirstOverrides returns a copy of the fixed first-pass overrides.
func FirstOverrides() []Entry {
	return append([]Entry(nil), firstOverrides...)
}

// SubsequentOverrides returns a copy of the fixed overrides for passes
// after the first.
func SubsequentOverrides() []Entry {
	return append([]Entry(nil), subsequentOverrides...)
}

// Overrides accumulates lifecycle overrides over a run. Keys keep the
// position of their first assignment.
type Overrides struct {
	set *Assignments
}

// NewOverrides returns an empty accumulator.
func NewOverrides() *Overrides {
	return &Overrides{set: NewAssignments()}
}

// Set assigns key and reports whether the accumulated state changed.
func (o *Overrides) Set(key, value string) bool {
	if cur, ok := o.set.Get(key); ok && cur == value {
		return false
	}
	o.set.Set(key, value)
	return true
}

// Get returns the accumulated value of key.
func (o *Overrides) Get(key string) (string, bool) {
	return o.set.Get(key)
}

// Entries returns the accumulated overrides in order.
func (o *Overrides) Entries() []Entry {
	if o == nil {
		return nil
	}
	return o.set.Entries()
}

// Len returns the number of accumulated keys.
func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}
	return o.set.Len()
}
