package types

import "testing"

func TestJSONMapValueAndScan(t *testing.T) {
	original := JSONMap{"id": "pi_123", "amount": float64(1000)}
	raw, err := original.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var decoded JSONMap
	if err := decoded.Scan(raw); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if decoded["id"] != "pi_123" || decoded["amount"] != float64(1000) {
		t.Fatalf("unexpected decoded map %+v", decoded)
	}

	if err := decoded.Scan(`{"status":"succeeded"}`); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if decoded["status"] != "succeeded" {
		t.Fatalf("unexpected status %v", decoded["status"])
	}

	if err := decoded.Scan(nil); err != nil || decoded != nil {
		t.Fatalf("expected nil map after scanning NULL, got %+v err=%v", decoded, err)
	}

	var empty JSONMap
	if v, err := empty.Value(); err != nil || v != nil {
		t.Fatalf("nil map should store NULL, got %v err=%v", v, err)
	}

	if err := decoded.Scan(42); err == nil {
		t.Fatal("expected unsupported scan type error")
	}
}
