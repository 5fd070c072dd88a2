package config

import (
	"testing"
	"time"
)

func TestParseAddressList(t *testing.T) {
	got := parseAddressList(" 0x52908400098527886e0f7030069857d2e4169ee7 , not-an-address,,0x8617E340B3D01FA5F11F306F4090FD50E238070D")
	want := []string{
		"0x52908400098527886E0F7030069857D2E4169EE7",
		"0x8617E340B3D01FA5F11F306F4090FD50E238070D",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("address %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestIsOperator(t *testing.T) {
	cfg := &Config{OperatorAddresses: []string{"0x52908400098527886E0F7030069857D2E4169EE7"}}

	if !cfg.IsOperator("0x52908400098527886e0f7030069857d2e4169ee7") {
		t.Error("lowercase operator address not recognised")
	}
	if cfg.IsOperator("0x8617E340B3D01FA5F11F306F4090FD50E238070D") {
		t.Error("non-operator recognised as operator")
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("REGISTRATION_TIMEOUT_SECONDS", "45")
	t.Setenv("CHAIN_CONFIRMATIONS", "3")
	t.Setenv("LOCK_TTL_SECONDS", "bogus")

	cfg := Load()
	if cfg.RegistrationTimeout != 45*time.Second {
		t.Errorf("RegistrationTimeout = %s", cfg.RegistrationTimeout)
	}
	if cfg.ChainConfirmations != 3 {
		t.Errorf("ChainConfirmations = %d", cfg.ChainConfirmations)
	}
	if cfg.LockTTL != 60*time.Second {
		t.Errorf("LockTTL should fall back to default, got %s", cfg.LockTTL)
	}
}
