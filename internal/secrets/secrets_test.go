package secrets

import (
	"errors"
	"testing"
)

func TestVault_GetAndCredentials(t *testing.T) {
	t.Setenv(KeyOrgID, "org-1")
	t.Setenv(KeyAPIToken, "tok-1")

	v, err := NewVault(EnvLoader(KeyOrgID, KeyAPIToken))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	if got := v.Get(KeyOrgID); got != "org-1" {
		t.Errorf("Get(org) = %q", got)
	}
	creds := v.Credentials()
	if creds.OrgID != "org-1" || creds.APIToken != "tok-1" {
		t.Errorf("credentials = %+v", creds)
	}
}

func TestVault_ReloadSwapsValues(t *testing.T) {
	t.Setenv(KeyAPIToken, "tok-old")

	v, err := NewVault(EnvLoader(KeyAPIToken))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	t.Setenv(KeyAPIToken, "tok-new")
	if err := v.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := v.Get(KeyAPIToken); got != "tok-new" {
		t.Errorf("token after reload = %q, want tok-new", got)
	}
}

func TestVault_FailedReloadKeepsValues(t *testing.T) {
	calls := 0
	loader := func() (map[string]string, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("source unavailable")
		}
		return map[string]string{KeyAPIToken: "tok-1"}, nil
	}

	v, err := NewVault(loader)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	if err := v.Reload(); err == nil {
		t.Fatal("Reload should fail")
	}
	if got := v.Get(KeyAPIToken); got != "tok-1" {
		t.Errorf("token after failed reload = %q, want tok-1 preserved", got)
	}
}

func TestVault_MissingKeysAreEmpty(t *testing.T) {
	v, err := NewVault(EnvLoader("AGENTDECK_DOES_NOT_EXIST"))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	if got := v.Get("AGENTDECK_DOES_NOT_EXIST"); got != "" {
		t.Errorf("missing key = %q, want empty", got)
	}
}
