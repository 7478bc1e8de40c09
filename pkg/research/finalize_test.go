package research

import "testing"

func TestFinalize(t *testing.T) {
	sources := []string{
		"* A : https://a.example\n* B : https://b.example",
		"",
		"* B : https://b.example\n* C : https://c.example\nplain note",
	}

	got := Finalize(sources, "The summary.")
	want := "## Summary\nThe summary.\n\n### Sources:\n" +
		"* [A](https://a.example)\n" +
		"* [B](https://b.example)\n" +
		"* [C](https://c.example)\n" +
		"plain note"
	if got != want {
		t.Errorf("Finalize() =\n%q\nwant\n%q", got, want)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	sources := []string{"* A : https://a.example", "* A : https://a.example\n* B : https://b.example"}
	first := Finalize(sources, "summary")
	second := Finalize(sources, "summary")
	if first != second {
		t.Errorf("Finalize() not deterministic:\n%q\n%q", first, second)
	}
	if len(sources) != 2 || sources[0] != "* A : https://a.example" {
		t.Errorf("Finalize() mutated its input: %v", sources)
	}
}

func TestFinalizeEmpty(t *testing.T) {
	if got := Finalize(nil, "s"); got != "## Summary\ns\n\n### Sources:\n" {
		t.Errorf("Finalize(nil) = %q", got)
	}
}

func TestCitation(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"* Title : https://x.example", "* [Title](https://x.example)"},
		{"* A : B : https://x.example", "* [A : B](https://x.example)"},
		{"no separator", "no separator"},
		{"* Dangling : ", "* Dangling : "},
	}

	for _, tt := range tests {
		if got := citation(tt.line); got != tt.want {
			t.Errorf("citation(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}
