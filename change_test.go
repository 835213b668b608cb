package ss

import "testing"

func TestVerb_String(t *testing.T) {
	if VerbUpdate.String() != "update" || VerbDelete.String() != "delete" || VerbMark.String() != "mark" || VerbNone.String() != "none" {
		t.Fatalf("unexpected Verb.String values")
	}
	if got := Verb(999).String(); got == "update" || got == "delete" || got == "none" {
		t.Fatalf("unexpected Verb(999).String() = %q", got)
	}
}

func TestAction_Touches(t *testing.T) {
	for _, v := range []Verb{VerbUpdate, VerbDelete, VerbMark} {
		if a := (action{verb: v, id: "a"}); !a.touches() {
			t.Fatalf("%v.touches() = false, wanted true", v)
		}
		if a := (action{verb: v}); a.touches() {
			t.Fatalf("%v.touches() without id = true, wanted false", v)
		}
	}
	if a := (action{verb: VerbNone, id: "a"}); a.touches() {
		t.Fatalf("none.touches() = true, wanted false")
	}
}
