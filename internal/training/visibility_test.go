package training

import "testing"

func TestVisibleSessions(t *testing.T) {
	sessions := []Session{
		{ID: "a", InstructorID: "inst-1", Participants: []string{"p1"}},
		{ID: "b", InstructorID: "inst-2", Participants: []string{"p2", "p3"}},
		{ID: "c", InstructorID: "inst-1", Participants: []string{"p2"}},
	}

	tests := []struct {
		name     string
		identity Identity
		want     []string
	}{
		{"administrator sees all", Identity{ID: "admin", Role: RoleAdministrator}, []string{"a", "b", "c"}},
		{"manager sees all", Identity{ID: "mgr", Role: RoleManager}, []string{"a", "b", "c"}},
		{"instructor sees own", Identity{ID: "inst-1", Role: RoleInstructor}, []string{"a", "c"}},
		{"participant sees enrolled only", Identity{ID: "p1", Role: RoleParticipant}, []string{"a"}},
		{"participant in two sessions", Identity{ID: "p2", Role: RoleParticipant}, []string{"b", "c"}},
		{"unenrolled participant sees none", Identity{ID: "p9", Role: RoleParticipant}, nil},
		{"unknown role sees none", Identity{ID: "x", Role: Role("ghost")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VisibleSessions(sessions, tt.identity)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d sessions, got %d", len(tt.want), len(got))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Fatalf("expected session %s at %d, got %s", id, i, got[i].ID)
				}
			}
		})
	}
}
