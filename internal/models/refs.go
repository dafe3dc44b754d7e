package models

// ContainsRef reports whether refs holds ref, keyed by the (owner, id) pair.
func ContainsRef(refs []EntityRef, ref EntityRef) bool {
	for _, r := range refs {
		if r.OwnerID == ref.OwnerID && r.ID == ref.ID {
			return true
		}
	}
	return false
}

// AppendRef adds ref unless an entry with the same (owner, id) pair is
// already present. Membership events are delivered at-least-once, so list
// mutations have to be replay-safe.
func AppendRef(refs []EntityRef, ref EntityRef) []EntityRef {
	if ContainsRef(refs, ref) {
		return refs
	}
	return append(refs, ref)
}

// RemoveRef drops every entry matching the (owner, id) pair.
func RemoveRef(refs []EntityRef, ref EntityRef) []EntityRef {
	out := refs[:0]
	for _, r := range refs {
		if r.OwnerID == ref.OwnerID && r.ID == ref.ID {
			continue
		}
		out = append(out, r)
	}
	return out
}
