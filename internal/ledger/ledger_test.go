package ledger

import "testing"

func TestRecordKeepsInsertionOrder(t *testing.T) {
	l := New()
	l.Record(Outcome{Input: "b.coffee", Compiled: true, ElapsedMs: 3})
	l.Record(Outcome{Input: "a.coffee", Compiled: true, Skipped: true})
	l.Record(Outcome{Input: "c.coffee", Error: "syntax error line 3", ElapsedMs: 2})

	results := l.Results()
	if len(results) != 3 || l.Len() != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"b.coffee", "a.coffee", "c.coffee"} {
		if results[i].Input != want {
			t.Fatalf("result %d = %q, want %q", i, results[i].Input, want)
		}
	}

	summary := l.Summary()
	if summary.Total != 3 || summary.Compiled != 1 || summary.Skipped != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.ElapsedMs != 5 {
		t.Fatalf("unexpected elapsed total %v", summary.ElapsedMs)
	}
	if failures := l.Failures(); len(failures) != 1 || failures[0].Input != "c.coffee" {
		t.Fatalf("unexpected failures %+v", failures)
	}
}

func TestErrorForLatestWinsAndIsNeverCleared(t *testing.T) {
	l := New()
	l.Record(Outcome{Input: "a.coffee", Error: "first"})
	l.Record(Outcome{Input: "a.coffee", Error: "second"})

	msg, ok := l.ErrorFor("a.coffee")
	if !ok || msg != "second" {
		t.Fatalf("ErrorFor = %q, %v; want second", msg, ok)
	}

	l.Record(Outcome{Input: "a.coffee", Compiled: true})
	if msg, ok := l.ErrorFor("a.coffee"); !ok || msg != "second" {
		t.Fatalf("expected error to survive a later success, got %q, %v", msg, ok)
	}
	results := l.Results()
	if !results[len(results)-1].Compiled {
		t.Fatal("latest outcome should report compiled")
	}

	if _, ok := l.ErrorFor("other.coffee"); ok {
		t.Fatal("expected no error for unknown input")
	}
}

func TestResultsAndErrorsAreCopies(t *testing.T) {
	l := New()
	l.Record(Outcome{Input: "a.coffee", Error: "boom"})

	results := l.Results()
	results[0].Input = "mutated"
	errs := l.Errors()
	errs["a.coffee"] = "mutated"

	if l.Results()[0].Input != "a.coffee" {
		t.Fatal("Results must not expose internal storage")
	}
	if msg, _ := l.ErrorFor("a.coffee"); msg != "boom" {
		t.Fatal("Errors must not expose internal storage")
	}
}

func TestZeroValueLedgerIsUsable(t *testing.T) {
	var l Ledger
	l.Record(Outcome{Input: "a.coffee", Error: "boom"})
	if msg, ok := l.ErrorFor("a.coffee"); !ok || msg != "boom" {
		t.Fatalf("unexpected error lookup %q, %v", msg, ok)
	}
}
