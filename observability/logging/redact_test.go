package logging

import "testing"

func TestMaskFieldRedactsAccounts(t *testing.T) {
	attr := MaskField("maker", "alice.near")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("maker not redacted: %s", attr.Value.String())
	}
	attr = MaskField("orderId", "0xabc")
	if attr.Value.String() != "0xabc" {
		t.Fatalf("orderId redacted: %s", attr.Value.String())
	}
	attr = MaskField("secret", "")
	if attr.Value.String() != "" {
		t.Fatalf("empty value rewritten: %s", attr.Value.String())
	}
}

func TestRedactionAllowlistSorted(t *testing.T) {
	keys := RedactionAllowlist()
	if len(keys) == 0 {
		t.Fatal("allowlist empty")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("allowlist not sorted at %d: %s >= %s", i, keys[i-1], keys[i])
		}
	}
	if !IsAllowlisted("PoolId") {
		t.Fatal("case-insensitive lookup failed")
	}
}
