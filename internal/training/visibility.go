package training

// Visible reports whether the identity may see the session. This is the
// single authorization decision point for reads; every listing and report
// goes through it.
func Visible(s Session, identity Identity) bool {
	switch identity.Role {
	case RoleAdministrator, RoleManager:
		return true
	case RoleInstructor:
		return s.InstructorID == identity.ID
	case RoleParticipant:
		return s.HasParticipant(identity.ID)
	}
	return false
}

// VisibleSessions projects the full session set down to what the identity
// may see. Pure; input order is preserved.
func VisibleSessions(all []Session, identity Identity) []Session {
	out := make([]Session, 0, len(all))
	for _, s := range all {
		if Visible(s, identity) {
			out = append(out, s)
		}
	}
	return out
}
