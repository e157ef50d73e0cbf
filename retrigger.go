package quiver

import "github.com/quiverlabs/quiver/argval"

// ShouldRefetch reports whether a subscriber's argument transition from
// prev to next warrants initiating again. It is the policy behind
// Handle.UpdateArgs and is exported so callers driving their own
// subscription loop can apply the same rule.
//
// The comparison is exactly one level deep: top-level scalar properties
// compare by value, nested composites compare by instance identity. A
// rebuilt-but-equal nested object therefore DOES trigger (identity
// changed), while passing the same nested instance does not. Keeping the
// check shallow makes its cost proportional to the top-level property
// count no matter how deep the argument tree is; callers retain cheap
// control over re-dispatch by reusing nested instances.
//
// Note the asymmetry with cache keying: the canonical key is structural,
// so a rebuilt-but-equal argument re-triggers here yet still lands on
// the same cache entry, where the usual dedup rules apply.
func ShouldRefetch(prev, next argval.Value) bool {
	return !argval.ShallowEqual(prev, next)
}
