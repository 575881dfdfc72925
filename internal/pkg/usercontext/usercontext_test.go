package usercontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorPermissions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		actor  Actor
		org    string
		manage bool
		access bool
	}{
		{"anonymous", Actor{}, "org-1", false, false},
		{"owner of org", Actor{ID: "u1", Role: RoleOwner, OrganizationID: "org-1"}, "org-1", true, true},
		{"owner of other org", Actor{ID: "u1", Role: RoleOwner, OrganizationID: "org-2"}, "org-1", false, false},
		{"coach of org", Actor{ID: "u2", Role: RoleCoach, OrganizationID: "org-1"}, "org-1", false, true},
		{"admin", Actor{ID: "a1", Role: RoleAdmin}, "org-1", true, true},
		{"role without id", Actor{Role: RoleAdmin}, "org-1", false, false},
		{"owner with empty target", Actor{ID: "u1", Role: RoleOwner}, "", false, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.manage, tc.actor.CanManageBilling(tc.org))
			assert.Equal(t, tc.access, tc.actor.CanAccessOrganization(tc.org))
		})
	}
}
