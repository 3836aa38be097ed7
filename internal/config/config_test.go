package config

import (
	"testing"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENCRYPTION_KEY", "12345678901234567890123456789012")
	t.Setenv("A_API_KEY", "a-api-key")
	t.Setenv("A_SECRET", "a-secret")
	t.Setenv("B_API_KEY", "b-api-key")
	t.Setenv("B_SECRET", "b-secret")
	t.Setenv("B_PASSPHRASE", "b-passphrase")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load([]string{"A", "B"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Trading.OrderType != "market" {
		t.Errorf("OrderType default: got %q, want market", cfg.Trading.OrderType)
	}
	if cfg.Position.Leverage != 1 {
		t.Errorf("Leverage default: got %d, want 1", cfg.Position.Leverage)
	}
	if cfg.Trading.AdaptiveThresholds {
		t.Error("AdaptiveThresholds should default to false")
	}
	if cfg.Trading.StopLossPct != 5.0 {
		t.Errorf("StopLossPct default: got %v, want 5.0", cfg.Trading.StopLossPct)
	}
}

func TestLoadRejectsMissingEncryptionKey(t *testing.T) {
	setValidEnv(t)
	t.Setenv("ENCRYPTION_KEY", "")

	if _, err := Load([]string{"A", "B"}); err == nil {
		t.Fatal("expected error for missing ENCRYPTION_KEY")
	}
}

func TestLoadRejectsWrongLengthEncryptionKey(t *testing.T) {
	setValidEnv(t)
	t.Setenv("ENCRYPTION_KEY", "too-short")

	if _, err := Load([]string{"A", "B"}); err == nil {
		t.Fatal("expected error for ENCRYPTION_KEY not exactly 32 bytes")
	}
}

func TestLoadRejectsSingleVenue(t *testing.T) {
	setValidEnv(t)

	if _, err := Load([]string{"A"}); err == nil {
		t.Fatal("expected error when fewer than 2 venues are configured")
	}
}

func TestLoadRejectsMissingVenueCredentials(t *testing.T) {
	setValidEnv(t)
	t.Setenv("B_SECRET", "")

	if _, err := Load([]string{"A", "B"}); err == nil {
		t.Fatal("expected error for venue missing its secret")
	}
}

func TestLoadRejectsInvalidOrderType(t *testing.T) {
	setValidEnv(t)
	t.Setenv("ORDER_TYPE", "stop")

	if _, err := Load([]string{"A", "B"}); err == nil {
		t.Fatal("expected error for unsupported order_type")
	}
}

func TestVenueCredentialsRoundTripThroughEncryption(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load([]string{"A", "B"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	key, err := cfg.DerivedEncryptionKey()
	if err != nil {
		t.Fatalf("DerivedEncryptionKey failed: %v", err)
	}

	apiKey, secret, passphrase, err := cfg.Venues["B"].Decrypt(key)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if apiKey != "b-api-key" || secret != "b-secret" || passphrase != "b-passphrase" {
		t.Errorf("decrypted credentials mismatch: got (%q, %q, %q)", apiKey, secret, passphrase)
	}

	if cfg.Venues["B"].APIKeyEncrypted == "b-api-key" {
		t.Error("APIKeyEncrypted must not equal the plaintext credential")
	}
}

func TestVenueWithoutPassphraseDecryptsEmpty(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load([]string{"A", "B"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	key, err := cfg.DerivedEncryptionKey()
	if err != nil {
		t.Fatalf("DerivedEncryptionKey failed: %v", err)
	}

	_, _, passphrase, err := cfg.Venues["A"].Decrypt(key)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if passphrase != "" {
		t.Errorf("expected empty passphrase for venue A, got %q", passphrase)
	}
}

func TestOrderbookDepthPerVenueOverride(t *testing.T) {
	setValidEnv(t)
	t.Setenv("A_ORDERBOOK_DEPTH", "5")

	cfg, err := Load([]string{"A", "B"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Feed.OrderbookDepths["A"] != 5 {
		t.Errorf("A depth override: got %d, want 5", cfg.Feed.OrderbookDepths["A"])
	}
	if cfg.Feed.OrderbookDepths["B"] != 50 {
		t.Errorf("B depth default: got %d, want 50", cfg.Feed.OrderbookDepths["B"])
	}
}
