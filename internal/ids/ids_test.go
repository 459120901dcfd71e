package ids

import "testing"

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(PrefixWorkItem, "Fix typo", 0)
	b := Generate(PrefixWorkItem, "Fix typo", 0)
	if a != b {
		t.Fatalf("Generate is not deterministic: %s != %s", a, b)
	}
	if Prefix(a) != PrefixWorkItem {
		t.Fatalf("expected prefix %s, got %s", PrefixWorkItem, Prefix(a))
	}
}

func TestGenerateSaltChangesCandidate(t *testing.T) {
	a := Generate(PrefixWorkItem, "Fix typo", 0)
	b := Generate(PrefixWorkItem, "Fix typo", 1)
	if a == b {
		t.Fatalf("expected different candidates for different salts")
	}
}

func TestGenerateUniqueSkipsTaken(t *testing.T) {
	taken := map[string]bool{}
	first := GenerateUnique(PrefixWorkItem, "Fix typo", func(id string) bool { return taken[id] })
	taken[first] = true
	second := GenerateUnique(PrefixWorkItem, "Fix typo", func(id string) bool { return taken[id] })
	if first == second {
		t.Fatalf("expected GenerateUnique to avoid a taken id")
	}
}

func TestCanonicalizeLegacyPrefixes(t *testing.T) {
	cases := map[string]string{
		"bni-abcd": "bn-abcd",
		"bnd-1234": "bn-1234",
		"bn-abcd":  "bn-abcd",
		"bnq-abcd": "bnq-abcd",
	}
	for in, want := range cases {
		if got := Canonicalize(in); got != want {
			t.Errorf("Canonicalize(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestIsLegacy(t *testing.T) {
	if !IsLegacy("bni-abcd") || !IsLegacy("bnd-abcd") {
		t.Fatalf("expected legacy prefixes to be detected")
	}
	if IsLegacy("bn-abcd") {
		t.Fatalf("did not expect bn- to be legacy")
	}
}
