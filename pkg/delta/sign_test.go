package delta

import "testing"

func TestSignDeterministic(t *testing.T) {
	a := Sign("secret", "POST", "1700000000", "/v2/orders", `{"size":1}`)
	b := Sign("secret", "POST", "1700000000", "/v2/orders", `{"size":1}`)
	if a != b {
		t.Fatal("same inputs produced different signatures")
	}
	if len(a) != 64 {
		t.Fatalf("signature length %d, expected 64 hex chars", len(a))
	}
}

func TestSignSensitiveToEveryInput(t *testing.T) {
	base := Sign("secret", "GET", "1700000000", "/live", "")
	variants := []string{
		Sign("other", "GET", "1700000000", "/live", ""),
		Sign("secret", "POST", "1700000000", "/live", ""),
		Sign("secret", "GET", "1700000001", "/live", ""),
		Sign("secret", "GET", "1700000000", "/v2/orders", ""),
		Sign("secret", "GET", "1700000000", "/live", "x"),
	}
	for i, v := range variants {
		if v == base {
			t.Fatalf("variant %d did not change the signature", i)
		}
	}
}
