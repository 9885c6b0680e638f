package scenario

import "testing"

func newTestEvaluator(vars map[string]any) *Evaluator {
	c := NewContext()
	for k, v := range vars {
		c.Set(k, v, ScopeScenario)
	}
	return NewEvaluator(c)
}

func TestEvaluateComparisons(t *testing.T) {
	ev := newTestEvaluator(map[string]any{
		"age":     25,
		"balance": float64(150),
		"name":    "alice",
	})

	cases := []struct {
		expr string
		want bool
	}{
		{"age > 18 and balance >= 100", true},
		{"age > 30 or balance >= 100", true},
		{"age > 30 and balance >= 100", false},
		{"not age > 30", true},
		{"age == 25", true},
		{"age != 25", false},
		{"name == 'alice'", true},
		{"name == 'bob'", false},
		{"age <= 25 and age >= 25", true},
		{"(age > 30 or age < 26) and balance > 0", true},
	}
	for _, tc := range cases {
		if got := ev.Evaluate(tc.expr, nil); got != tc.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvaluateMembership(t *testing.T) {
	ev := newTestEvaluator(map[string]any{
		"roles": []any{"admin", "user"},
		"name":  "alice",
	})

	cases := []struct {
		expr string
		want bool
	}{
		{"'admin' in roles", true},
		{"'root' in roles", false},
		{"'root' not in roles", true},
		{"'lic' in name", true},
		{"'admin' in ['admin', 'viewer']", true},
	}
	for _, tc := range cases {
		if got := ev.Evaluate(tc.expr, nil); got != tc.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvaluateLen(t *testing.T) {
	ev := newTestEvaluator(map[string]any{
		"items": []any{1, 2, 3},
		"token": "abcdef",
	})
	if !ev.Evaluate("len(items) == 3", nil) {
		t.Error("len(items) == 3 should hold")
	}
	if !ev.Evaluate("len(token) > 5", nil) {
		t.Error("len(token) > 5 should hold")
	}
}

func TestEvaluateResponseReferences(t *testing.T) {
	ev := newTestEvaluator(nil)
	response := map[string]any{
		"status": "active",
		"count":  float64(3),
		"user":   map[string]any{"verified": true},
		"tags":   []any{"a", "b"},
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"response.status == 'active'", true},
		{"response.count > 2", true},
		{"response.user.verified == true", true},
		{"response.missing == null", true},
		{"'a' in response.tags", true},
		{"len(response.tags) == 2", true},
	}
	for _, tc := range cases {
		if got := ev.Evaluate(tc.expr, response); got != tc.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvaluateVariableMarkers(t *testing.T) {
	ev := newTestEvaluator(map[string]any{"expected": "ok", "n": 5})
	if !ev.Evaluate("${expected} == 'ok'", nil) {
		t.Error("${expected} == 'ok' should hold")
	}
	if !ev.Evaluate("${n} < 10", nil) {
		t.Error("${n} < 10 should hold")
	}
}

func TestEvaluateMalformedNeverRaises(t *testing.T) {
	ev := newTestEvaluator(nil)
	for _, expr := range []string{
		"", ")((", "foo == ", "1 ===== 2", "len(", "'unterminated",
	} {
		if ev.Evaluate(expr, nil) {
			t.Errorf("Evaluate(%q) = true, want false", expr)
		}
	}
}

func TestEvaluateBareKeywords(t *testing.T) {
	ev := newTestEvaluator(nil)
	for expr, want := range map[string]bool{
		"true":  true,
		"1":     true,
		"false": false,
		"0":     false,
		"null":  false,
		"what":  false,
	} {
		if got := ev.Evaluate(expr, nil); got != want {
			t.Errorf("Evaluate(%q) = %v, want %v", expr, got, want)
		}
	}
}

func TestManualFallback(t *testing.T) {
	ev := newTestEvaluator(nil)
	// "and and" breaks the full parser; the single-operator fallback
	// still sees "200 == 200".
	if !ev.manualEvaluate("200 == 200") {
		t.Error("manual fallback failed on 200 == 200")
	}
	if ev.manualEvaluate("200 == 404") {
		t.Error("manual fallback passed 200 == 404")
	}
	if !ev.manualEvaluate("'x' in ['x', 'y']") {
		t.Error("manual fallback failed list membership")
	}
}
