package muc

import "strings"

// Bare strips any resource suffix from a JID, returning the stable
// "localpart@domain" form. Identity comparisons must always be done on
// bare JIDs; two sessions of the same account differ only in resource.
func Bare(jid string) string {
	if i := strings.IndexByte(jid, '/'); i >= 0 {
		return jid[:i]
	}
	return jid
}

// NormalizeJID lowercases the bare form of a JID, producing the canonical
// shape used for storage and map keys. JID comparisons elsewhere are
// case-insensitive, but anything keyed or persisted goes through here.
func NormalizeJID(jid string) string {
	return strings.ToLower(Bare(jid))
}

// Localpart returns the part of a JID before the '@', or the whole string
// if there is no '@'.
func Localpart(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}

// IsJID reports whether s is structurally a JID rather than a nickname.
// MUC nicknames cannot contain '@', so its presence is the discriminator.
func IsJID(s string) bool {
	return strings.ContainsRune(s, '@')
}

// EqualJID compares two JIDs in bare form, case-insensitively.
func EqualJID(a, b string) bool {
	return strings.EqualFold(Bare(a), Bare(b))
}

// AnonymizeJID masks the localpart of a JID for room-facing output,
// keeping the first rune and the domain ("a***@example.org"). Nicknames
// (no '@') pass through unchanged.
func AnonymizeJID(jid string) string {
	jid = Bare(jid)
	i := strings.IndexByte(jid, '@')
	if i <= 0 {
		return jid
	}
	local := jid[:i]
	r := []rune(local)
	return string(r[0]) + "***" + jid[i:]
}
