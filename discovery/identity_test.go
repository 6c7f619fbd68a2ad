package discovery

import "testing"

func TestUDPID_ReversedBE8MatchesKnownVector(t *testing.T) {
	got, err := UDPID(123456789, IdentityVariantReversedBE8)
	if err != nil {
		t.Fatalf("UDPID: %v", err)
	}
	const want = "c0df1eef309df487f3061c8189f35c79"
	if got != want {
		t.Fatalf("UDPID(123456789, ReversedBE8) = %q, want %q", got, want)
	}
}

func TestUDPID_DeterministicAndWellFormed(t *testing.T) {
	for _, variant := range []IdentityVariant{IdentityVariantReversedBE8, IdentityVariantLow6BE, IdentityVariantLow6LE} {
		got, err := UDPID(123456789, variant)
		if err != nil {
			t.Fatalf("variant %d: UDPID: %v", variant, err)
		}
		if len(got) != 32 {
			t.Fatalf("variant %d: len(id) = %d, want 32", variant, len(got))
		}
		again, err := UDPID(123456789, variant)
		if err != nil {
			t.Fatalf("variant %d: UDPID (second call): %v", variant, err)
		}
		if got != again {
			t.Fatalf("variant %d: UDPID not deterministic: %q vs %q", variant, got, again)
		}
		for _, c := range got {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
				t.Fatalf("variant %d: id %q contains non-lowercase-hex character %q", variant, got, c)
			}
		}
	}
}

func TestUDPID_VariantsDiffer(t *testing.T) {
	a, _ := UDPID(123456789, IdentityVariantReversedBE8)
	b, _ := UDPID(123456789, IdentityVariantLow6BE)
	c, _ := UDPID(123456789, IdentityVariantLow6LE)
	if a == b || b == c || a == c {
		t.Fatalf("expected all three variants to differ, got a=%q b=%q c=%q", a, b, c)
	}
}

func TestUDPID_UnknownVariant(t *testing.T) {
	if _, err := UDPID(1, IdentityVariant(99)); err == nil {
		t.Fatal("expected error for unknown identity variant")
	}
}
