package tracker

import "testing"

func TestRegisterAndCompleteAll(t *testing.T) {
	tr := New()
	orig := Originator{SourceID: "c", SourceSubID: "1"}
	if !tr.Register("A", orig, []string{"f1", "f2", "f3", "f4"}) {
		t.Fatalf("Register(A) = false, want true")
	}

	wantPct := []uint{25, 50, 75}
	for i, f := range []string{"f1", "f2", "f3"} {
		ev := tr.Record("A", f)
		if ev == nil {
			t.Fatalf("Record(A, %s) = nil, want progress event", f)
		}
		if ev.Terminal {
			t.Fatalf("Record(A, %s) terminal = true, want false", f)
		}
		if ev.Percentage != wantPct[i] {
			t.Fatalf("Record(A, %s) percentage = %d, want %d", f, ev.Percentage, wantPct[i])
		}
	}

	ev := tr.Record("A", "f4")
	if ev == nil || !ev.Terminal {
		t.Fatalf("Record(A, f4) = %+v, want terminal event", ev)
	}
	if ev.Percentage != 100 || !ev.Completed || ev.CompletedCount != 4 || ev.FailedCount != 0 {
		t.Fatalf("terminal event = %+v, want {100 true 4 0}", ev)
	}

	if ev := tr.Record("A", "f5"); ev != nil {
		t.Fatalf("Record after terminal = %+v, want nil", ev)
	}
}

func TestPartialFailureMixedPath(t *testing.T) {
	tr := New()
	orig := Originator{SourceID: "c", SourceSubID: "1"}
	if !tr.Register("B", orig, []string{"f1", "f2"}) {
		t.Fatalf("Register(B) = false, want true")
	}

	if ev := tr.Record("B", ""); ev != nil {
		t.Fatalf("Record(B, \"\") = %+v, want nil (percentage unchanged at 0)", ev)
	}

	ev := tr.Record("B", "f1")
	if ev == nil || ev.Terminal || ev.Percentage != 50 {
		t.Fatalf("Record(B, f1) = %+v, want non-terminal 50%%", ev)
	}

	ev = tr.Record("B", "f2")
	if ev == nil || !ev.Terminal || !ev.Completed {
		t.Fatalf("Record(B, f2) = %+v, want terminal completed=true", ev)
	}
	if ev.CompletedCount != 2 || ev.FailedCount != 1 {
		t.Fatalf("terminal counts = %d/%d, want 2/1", ev.CompletedCount, ev.FailedCount)
	}
}

func TestAllFailuresTerminalBelow100(t *testing.T) {
	tr := New()
	orig := Originator{SourceID: "c", SourceSubID: "1"}
	if !tr.Register("X", orig, []string{"f1", "f2"}) {
		t.Fatalf("Register(X) = false, want true")
	}

	if ev := tr.Record("X", ""); ev != nil {
		t.Fatalf("Record(X, \"\") = %+v, want nil (percentage unchanged at 0)", ev)
	}

	ev := tr.Record("X", "")
	if ev == nil || !ev.Terminal {
		t.Fatalf("Record(X, \"\") second failure = %+v, want terminal event", ev)
	}
	if ev.Completed {
		t.Fatalf("terminal event completed = true, want false (no successes)")
	}
	if ev.Percentage != 0 || ev.CompletedCount != 0 || ev.FailedCount != 2 {
		t.Fatalf("terminal event = %+v, want {percentage:0 completed_count:0 failed_count:2}", ev)
	}

	if ev := tr.Record("X", "f1"); ev != nil {
		t.Fatalf("Record after terminal = %+v, want nil (manifest already removed)", ev)
	}
}

func TestDuplicateRegisterFails(t *testing.T) {
	tr := New()
	orig := Originator{SourceID: "c", SourceSubID: "1"}
	if !tr.Register("C", orig, []string{"fX"}) {
		t.Fatalf("first Register(C) = false, want true")
	}
	if tr.Register("C", orig, []string{"fY"}) {
		t.Fatalf("duplicate Register(C) = true, want false")
	}
	// No side effects from the rejected duplicate: the original
	// manifest is unaffected.
	ev := tr.Record("C", "fX")
	if ev == nil || !ev.Terminal || ev.CompletedCount != 1 {
		t.Fatalf("Record(C, fX) = %+v, want terminal completed_count=1 (unaffected by duplicate)", ev)
	}
}

func TestRecordUnknownIndicationReturnsNil(t *testing.T) {
	tr := New()
	if ev := tr.Record("missing", "f1"); ev != nil {
		t.Fatalf("Record on unknown id = %+v, want nil", ev)
	}
}

func TestCancelRemovesStateWithoutEvent(t *testing.T) {
	tr := New()
	orig := Originator{SourceID: "c", SourceSubID: "1"}
	tr.Register("D", orig, []string{"f1"})
	tr.Cancel("D")
	if ev := tr.Record("D", "f1"); ev != nil {
		t.Fatalf("Record after Cancel = %+v, want nil", ev)
	}
	if tr.Register("D", orig, []string{"f1"}) == false {
		t.Fatalf("Register after Cancel should succeed (id no longer live)")
	}
}

func TestPercentageMonotonicNonDecreasing(t *testing.T) {
	tr := New()
	orig := Originator{SourceID: "c", SourceSubID: "1"}
	tr.Register("E", orig, []string{"f1", "f2", "f3", "f4", "f5"})
	var lastSeen uint
	for _, f := range []string{"f1", "f2", "f3", "f4"} {
		ev := tr.Record("E", f)
		if ev != nil {
			if ev.Percentage < lastSeen {
				t.Fatalf("percentage decreased: saw %d after %d", ev.Percentage, lastSeen)
			}
			lastSeen = ev.Percentage
		}
	}
}
