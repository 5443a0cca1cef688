//go:build windows

package fileutil

import (
	"testing"
	"unsafe"

	"golang.org/x/sys/windows"
)

// assertOwnerOnlyWindows verifies the DACL has exactly one ACE granting
// access to the current user, with no other principals allowed.
func assertOwnerOnlyWindows(t *testing.T, path string) {
	t.Helper()

	token, err := windows.OpenCurrentProcessToken()
	if err != nil {
		t.Fatalf("OpenCurrentProcessToken: %v", err)
	}
	defer token.Close()

	user, err := token.GetTokenUser()
	if err != nil {
		t.Fatalf("GetTokenUser: %v", err)
	}
	ownerSID := user.User.Sid

	sd, err := windows.GetNamedSecurityInfo(
		path,
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION,
	)
	if err != nil {
		t.Fatalf("GetNamedSecurityInfo(%s): %v", path, err)
	}

	dacl, _, err := sd.DACL()
	if err != nil {
		t.Fatalf("DACL(): %v", err)
	}
	if dacl == nil {
		t.Fatalf("DACL is nil (NULL DACL = full access to everyone)")
	}

	aceCount := int(dacl.AceCount)
	if aceCount == 0 {
		t.Fatal("DACL has 0 ACEs (empty DACL = deny all)")
	}

	foundOwner := false
	for i := range aceCount {
		var ace *windows.ACCESS_ALLOWED_ACE
		if err := windows.GetAce(dacl, uint32(i), &ace); err != nil {
			t.Fatalf("GetAce(%d): %v", i, err)
		}

		// The SID starts at the SidStart field of ACCESS_ALLOWED_ACE.
		aceSID := (*windows.SID)(unsafe.Pointer(&ace.SidStart))
		if aceSID.Equals(ownerSID) {
			foundOwner = true
			continue
		}

		t.Errorf("unexpected ACE for SID %s (only owner should have access)", aceSID.String())
	}

	if !foundOwner {
		t.Error("no ACE found for current user")
	}
}
