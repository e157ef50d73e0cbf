// Package argval provides the tagged argument value representation and
// the canonical key codec used for cache identity.
//
// This package contains value types and pure functions only. Every other
// package imports argval; argval imports nothing from this module. This
// keeps the codec the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Values are a sealed set: Null, String, Int, Float, Bool, Array, Object
//   - A nil Value means "absent" and is distinct from an explicit Null
//   - Canonical form is deterministic: same value, same bytes, always
//   - Object key order never affects the canonical form; array order does
package argval
