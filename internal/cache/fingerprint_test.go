package cache

import "testing"

func TestFingerprintCanonicalisesQuery(t *testing.T) {
	a := Fingerprint("Units Sold  Last Month", "d1", nil, nil)
	b := Fingerprint("  units sold last month\n", "d1", nil, nil)
	if a != b {
		t.Fatal("whitespace/case variants produced different fingerprints")
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint width = %d, want 64 hex chars", len(a))
	}
}

func TestFingerprintSeparatesTenants(t *testing.T) {
	a := Fingerprint("units sold", "d1", nil, nil)
	b := Fingerprint("units sold", "d2", nil, nil)
	if a == b {
		t.Fatal("tenants share a fingerprint")
	}
}

func TestFingerprintContextWhitelist(t *testing.T) {
	ctx := map[string]any{"role": "gm", "theme": "dark"}

	// By default context is ignored entirely.
	a := Fingerprint("units sold", "d1", ctx, nil)
	b := Fingerprint("units sold", "d1", nil, nil)
	if a != b {
		t.Fatal("non-whitelisted context changed the fingerprint")
	}

	// A whitelisted key participates; keys off the list still do not.
	c1 := Fingerprint("units sold", "d1", ctx, []string{"role"})
	c2 := Fingerprint("units sold", "d1", map[string]any{"role": "gm", "theme": "light"}, []string{"role"})
	if c1 != c2 {
		t.Fatal("off-whitelist key leaked into the fingerprint")
	}
	c3 := Fingerprint("units sold", "d1", map[string]any{"role": "sales"}, []string{"role"})
	if c1 == c3 {
		t.Fatal("whitelisted key ignored")
	}
}
