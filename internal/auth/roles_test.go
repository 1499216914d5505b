package auth

import "testing"

func TestRolePermissionMatrix(t *testing.T) {
	cases := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleEditor, PermContentRead, true},
		{RoleEditor, PermContentUpdate, true},
		{RoleEditor, PermContentDelete, false},
		{RoleEditor, PermContentPublish, false},
		{RoleEditor, PermAdminCreate, false},
		{RoleAdmin, PermContentDelete, true},
		{RoleAdmin, PermContentRollback, true},
		{RoleAdmin, PermAuditRead, true},
		{RoleAdmin, PermAdminCreate, false},
		{RoleSuperAdmin, PermAdminCreate, true},
		{RoleSuperAdmin, PermAdminDelete, true},
		{Role("viewer"), PermContentRead, false},
	}
	for _, tc := range cases {
		if got := HasPermission(tc.role, tc.perm); got != tc.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestSuperAdminHasEverything(t *testing.T) {
	if !HasAllPermissions(RoleSuperAdmin, AllPermissions...) {
		t.Fatal("super_admin must hold every permission")
	}
}

func TestRoleHierarchy(t *testing.T) {
	if !IsRoleAtLeast(RoleSuperAdmin, RoleEditor) {
		t.Fatal("super_admin should outrank editor")
	}
	if IsRoleAtLeast(RoleEditor, RoleAdmin) {
		t.Fatal("editor should not outrank admin")
	}
	if IsRoleAtLeast(Role("ghost"), RoleEditor) {
		t.Fatal("unknown roles hold no rank")
	}
}

func TestCanManageRole(t *testing.T) {
	if !CanManageRole(RoleSuperAdmin, RoleSuperAdmin) {
		t.Fatal("super_admin manages every role")
	}
	if !CanManageRole(RoleAdmin, RoleEditor) {
		t.Fatal("admin manages editors")
	}
	if CanManageRole(RoleAdmin, RoleAdmin) {
		t.Fatal("admin must not manage peers")
	}
	if CanManageRole(RoleEditor, RoleEditor) {
		t.Fatal("editor manages nothing")
	}
}

func TestMakeAccessDecisionOrder(t *testing.T) {
	if d := MakeAccessDecision(nil, PermContentRead); d.Allowed || d.Reason != "no authenticated user" {
		t.Fatalf("nil actor decision = %+v", d)
	}

	inactive := &Actor{ID: "u1", Role: RoleAdmin, IsActive: false}
	if d := MakeAccessDecision(inactive, PermContentRead); d.Allowed || d.Reason != "account is deactivated" {
		t.Fatalf("inactive decision = %+v", d)
	}

	unknown := &Actor{ID: "u1", Role: "mystery", IsActive: true}
	if d := MakeAccessDecision(unknown, PermContentRead); d.Allowed || d.Reason != `unknown role "mystery"` {
		t.Fatalf("unknown role decision = %+v", d)
	}

	editor := &Actor{ID: "u1", Role: RoleEditor, IsActive: true}
	if d := MakeAccessDecision(editor, PermContentDelete); d.Allowed {
		t.Fatalf("editor delete decision = %+v", d)
	}
	if d := MakeAccessDecision(editor, PermContentUpdate); !d.Allowed || d.Reason != "" {
		t.Fatalf("editor update decision = %+v", d)
	}
}
