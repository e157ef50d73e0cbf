package argval

import "reflect"

// Equal reports deep structural equality of two Values. Object key
// order is irrelevant, array order is relevant, and value types are
// distinguished: Int(1) and Float(1) are not equal. Two nil Values are
// equal; nil never equals a non-nil Value, including Null.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, aElem := range av {
			bElem, present := bv[k]
			if !present || !Equal(aElem, bElem) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ShallowEqual compares two Values at exactly one level of structural
// depth. Scalars compare by value. Composite values (Array, Object)
// appearing as top-level properties compare by REFERENCE IDENTITY, not
// by content: a freshly built but deeply equal nested Object is a
// difference. Top-level Objects compare per property ignoring key
// order; top-level Arrays compare per element.
//
// This is the one-level comparison the re-trigger policy is specified
// over. It deliberately does not recurse: cost is O(breadth), and a
// caller constructing new nested composites on every transition is
// reported unequal every time.
func ShallowEqual(prev, next Value) bool {
	if prev == nil || next == nil {
		return prev == nil && next == nil
	}
	switch pv := prev.(type) {
	case Object:
		nv, ok := next.(Object)
		if !ok {
			return false
		}
		if sameComposite(prev, next) {
			return true
		}
		if len(pv) != len(nv) {
			return false
		}
		for k, pElem := range pv {
			nElem, present := nv[k]
			if !present || !propertyEqual(pElem, nElem) {
				return false
			}
		}
		return true
	case Array:
		nv, ok := next.(Array)
		if !ok {
			return false
		}
		if sameComposite(prev, next) {
			return true
		}
		if len(pv) != len(nv) {
			return false
		}
		for i := range pv {
			if !propertyEqual(pv[i], nv[i]) {
				return false
			}
		}
		return true
	default:
		return scalarEqual(prev, next)
	}
}

// propertyEqual applies the one-level rule to a single property:
// scalars by value, composites by identity.
func propertyEqual(a, b Value) bool {
	switch a.(type) {
	case Array, Object:
		return sameComposite(a, b)
	default:
		return scalarEqual(a, b)
	}
}

// scalarEqual compares scalar Values by type and value. Composite
// inputs report false. NaN floats compare unequal to themselves, which
// is the comparison semantics callers of the policy expect.
func scalarEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	default:
		return false
	}
}

// sameComposite reports whether two composite Values share the same
// underlying storage. Maps compare by map header pointer; slices by
// data pointer and length. Two zero-length Arrays may share the
// runtime's zero-size allocation and so compare identical; maps always
// allocate, so distinct Objects are always distinguishable.
func sameComposite(a, b Value) bool {
	switch av := a.(type) {
	case Object:
		bv, ok := b.(Object)
		if !ok {
			return false
		}
		if av == nil || bv == nil {
			return av == nil && bv == nil
		}
		return reflect.ValueOf(av).Pointer() == reflect.ValueOf(bv).Pointer()
	case Array:
		bv, ok := b.(Array)
		if !ok {
			return false
		}
		if len(av) != len(bv) {
			return false
		}
		if len(av) == 0 {
			return true
		}
		return reflect.ValueOf(av).Pointer() == reflect.ValueOf(bv).Pointer()
	default:
		return false
	}
}
