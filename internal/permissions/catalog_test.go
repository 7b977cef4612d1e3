package permissions

import (
	"sort"
	"testing"
)

func TestAllIsSortedAndComplete(t *testing.T) {
	all := All()
	if !sort.StringsAreSorted(all) {
		t.Fatal("catalog not sorted")
	}
	if len(all) != len(catalog) {
		t.Fatalf("got %d permissions, want %d", len(all), len(catalog))
	}
	for _, p := range all {
		if !Known(p) {
			t.Fatalf("catalog entry %q not known", p)
		}
	}
}

func TestAllReturnsCopy(t *testing.T) {
	first := All()
	first[0] = "mutated"
	if All()[0] == "mutated" {
		t.Fatal("All leaked internal slice")
	}
}

func TestKnownRejectsUnknown(t *testing.T) {
	if Known("incident.fly") {
		t.Fatal("unexpected permission")
	}
	if Known("") {
		t.Fatal("empty identifier must not be known")
	}
}

func TestArea(t *testing.T) {
	if got := Area(GroupManageMembers); got != "group" {
		t.Fatalf("area = %q", got)
	}
	if got := Area("malformed"); got != "" {
		t.Fatalf("area = %q", got)
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(GroupManageMembers); got != "Group: Manage Members" {
		t.Fatalf("describe = %q", got)
	}
	if got := Describe(IncidentView); got != "Incident: View" {
		t.Fatalf("describe = %q", got)
	}
}
