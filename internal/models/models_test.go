package models

import (
	"encoding/json"
	"testing"
)

func TestReactionMapAdd(t *testing.T) {
	m := ReactionMap{}
	m.Add("👍", 1)
	m.Add("👍", 1)
	if m["👍"] != 2 {
		t.Errorf("count = %d, want 2", m["👍"])
	}

	m.Add("👍", -1)
	if m["👍"] != 1 {
		t.Errorf("count after remove = %d, want 1", m["👍"])
	}

	// 归零后键要被删掉，再减也不能出现负数。
	m.Add("👍", -1)
	m.Add("👍", -1)
	if _, ok := m["👍"]; ok {
		t.Errorf("zeroed reaction still present: %v", m)
	}
}

func TestReactionMapValueScan(t *testing.T) {
	m := ReactionMap{"🎉": 3}
	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	var out ReactionMap
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if out["🎉"] != 3 {
		t.Errorf("round-trip lost data: %v", out)
	}

	var nilMap ReactionMap
	v, err = nilMap.Value()
	if err != nil {
		t.Fatalf("Value() on nil error = %v", err)
	}
	var decoded map[string]int
	if err := json.Unmarshal(v.([]byte), &decoded); err != nil {
		t.Fatalf("nil map did not serialize as an object: %v", err)
	}
}

func TestUserElevated(t *testing.T) {
	for _, tc := range []struct {
		role string
		want bool
	}{
		{RoleFaculty, false},
		{RolePrincipal, true},
		{RoleAdmin, true},
	} {
		if got := (User{Role: tc.role}).Elevated(); got != tc.want {
			t.Errorf("Elevated() role=%s = %v, want %v", tc.role, got, tc.want)
		}
	}
}

func TestRoomDeletable(t *testing.T) {
	if (Room{Type: RoomGeneral}).Deletable() || (Room{Type: RoomDepartment}).Deletable() {
		t.Error("default rooms must not be deletable")
	}
	if !(Room{Type: RoomCustom}).Deletable() {
		t.Error("custom rooms must be deletable")
	}
}

func TestNotificationVisibleTo(t *testing.T) {
	science := "Science"
	targeted := Notification{Scope: ScopeDepartment, Department: &science}

	if !targeted.VisibleTo(User{Role: RoleFaculty, Department: "Science"}) {
		t.Error("department member cannot see own department notification")
	}
	if targeted.VisibleTo(User{Role: RoleFaculty, Department: "Arts"}) {
		t.Error("other-department faculty can see targeted notification")
	}
	if !targeted.VisibleTo(User{Role: RolePrincipal, Department: "Arts"}) {
		t.Error("elevated role cannot see targeted notification")
	}

	general := Notification{Scope: ScopeGeneral}
	if !general.VisibleTo(User{Role: RoleFaculty, Department: "Arts"}) {
		t.Error("general notification hidden from faculty")
	}
}
