package utils

import "testing"

func TestWebhookRateScriptCompiles(t *testing.T) {
	// Compile-time smoke test: script should be initialized.
	if webhookRateScript == nil {
		t.Fatalf("expected script to be initialized")
	}
}

func TestWebhookRateCountRejectsBadArgs(t *testing.T) {
	if _, err := WebhookRateCount(nil, nil, "k", 0); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
