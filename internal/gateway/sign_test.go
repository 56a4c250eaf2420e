package gateway

import "testing"

func TestApproveSignature(t *testing.T) {
	got := approveSignature("AUTH-TOKEN-1", "1700000000000")
	want := "badcdba0eeb9cd55ce5cc76ec6e6c8621e9ce5cea541459067364354fd999408"

	if got != want {
		t.Errorf("approveSignature() = %s, want %s", got, want)
	}
}

func TestApproveVerification(t *testing.T) {
	got := approveVerification("AUTH-TOKEN-1", "SKEY", "1700000000000")
	want := "8eb0664f94ec8d806534ddb6e14d7ea3c4cde3fdc9e4604a5838165d3c0b53be"

	if got != want {
		t.Errorf("approveVerification() = %s, want %s", got, want)
	}
}

func TestRefundHash(t *testing.T) {
	got := refundHash("apiKey", "MID01", "20240101120000", `{"tid":"T1"}`)
	want := "13a1147ab5430b7cb99fa5d99e9be1b1a9c4f09a1e1d18d343dbb721bf6da35cad7fa4b997e159aa8575e54f494f3f58c52c590cae66b5bb2269e1dc785c6b40"

	if got != want {
		t.Errorf("refundHash() = %s, want %s", got, want)
	}
}
