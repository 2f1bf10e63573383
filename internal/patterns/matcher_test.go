package patterns

import (
	"sync"
	"testing"
)

func ptr(f float64) *float64 { return &f }

func TestEvaluateEmptyContentPasses(t *testing.T) {
	m := NewMatcher()
	if err := m.Update([]Source{{Name: "slur", Tag: "slur", Expr: "badword"}}); err != nil {
		t.Fatal(err)
	}
	res := m.Evaluate("")
	if res.Matched {
		t.Fatalf("expected Pass on empty content, got %+v", res)
	}
}

func TestEvaluateMatchesHighestPriorityTag(t *testing.T) {
	m := NewMatcher()
	err := m.Update([]Source{
		{Name: "custom-rule", Tag: "custom", Expr: "trigger"},
		{Name: "slur-rule", Tag: "slur", Expr: "trigger"},
	})
	if err != nil {
		t.Fatal(err)
	}
	res := m.Evaluate("this message contains trigger word")
	if !res.Matched || res.Tag != TagSlur {
		t.Fatalf("expected slur to win over custom, got %+v", res)
	}
}

func TestEvaluateDeclarationOrderTieBreak(t *testing.T) {
	m := NewMatcher()
	err := m.Update([]Source{
		{Name: "first", Tag: "slur", Expr: "zzz"},
		{Name: "second", Tag: "slur", Expr: "zzz"},
	})
	if err != nil {
		t.Fatal(err)
	}
	res := m.Evaluate("zzz appears here")
	if res.PatternName != "first" {
		t.Fatalf("expected first-declared pattern to win a tie, got %s", res.PatternName)
	}
}

func TestEvaluateCaseInsensitiveByDefault(t *testing.T) {
	m := NewMatcher()
	if err := m.Update([]Source{{Name: "p", Tag: "custom", Expr: "shout"}}); err != nil {
		t.Fatal(err)
	}
	if !m.Evaluate("SHOUT louder").Matched {
		t.Fatal("expected case-insensitive match")
	}
}

func TestEvaluateCaseSensitiveOverride(t *testing.T) {
	m := NewMatcher()
	if err := m.Update([]Source{{Name: "p", Tag: "custom", Expr: "Shout", CaseSensitive: true}}); err != nil {
		t.Fatal(err)
	}
	if m.Evaluate("shout louder").Matched {
		t.Fatal("expected case-sensitive pattern to not match lowercase")
	}
	if !m.Evaluate("Shout louder").Matched {
		t.Fatal("expected case-sensitive pattern to match exact case")
	}
}

func TestUpdateCompileErrorKeepsPriorSet(t *testing.T) {
	m := NewMatcher()
	if err := m.Update([]Source{{Name: "good", Tag: "slur", Expr: "badword"}}); err != nil {
		t.Fatal(err)
	}
	err := m.Update([]Source{{Name: "bad", Tag: "slur", Expr: "(["}})
	if err == nil {
		t.Fatal("expected compile error")
	}
	var compileErr *CompileError
	if !asCompileError(err, &compileErr) {
		t.Fatalf("expected *CompileError, got %T", err)
	}
	// Prior set must still be active.
	if !m.Evaluate("contains badword here").Matched {
		t.Fatal("expected prior pattern set to remain active after failed update")
	}
}

func asCompileError(err error, target **CompileError) bool {
	ce, ok := err.(*CompileError)
	if ok {
		*target = ce
	}
	return ok
}

func TestEvaluateDefaultSeverityByTag(t *testing.T) {
	m := NewMatcher()
	if err := m.Update([]Source{{Name: "p", Tag: "slur", Expr: "xslur"}}); err != nil {
		t.Fatal(err)
	}
	res := m.Evaluate("an xslur appears")
	if res.Severity != 1.0 {
		t.Fatalf("expected default slur severity 1.0, got %v", res.Severity)
	}
}

func TestEvaluateSeverityOverride(t *testing.T) {
	m := NewMatcher()
	if err := m.Update([]Source{{Name: "p", Tag: "slur", Expr: "xslur", SeverityOverride: ptr(0.42)}}); err != nil {
		t.Fatal(err)
	}
	res := m.Evaluate("an xslur appears")
	if res.Severity != 0.42 {
		t.Fatalf("expected overridden severity 0.42, got %v", res.Severity)
	}
}

func TestMatcherConcurrentEvaluateAndUpdate(t *testing.T) {
	m := NewMatcher()
	if err := m.Update([]Source{{Name: "p", Tag: "slur", Expr: "badword"}}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					m.Evaluate("some badword content")
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		_ = m.Update([]Source{{Name: "p", Tag: "slur", Expr: "badword"}})
	}
	close(stop)
	wg.Wait()
}
