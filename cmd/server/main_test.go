package main

import (
	"testing"

	"tillpoint/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []config.Config{
		{AuthSecret: "short", ManagerPIN: "739154"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: ""},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "12a456"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "123456"},
	}
	for _, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("expected config %+v to be rejected", cfg)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidatePINStrength(t *testing.T) {
	weak := []string{"000000", "777777", "123456", "987654", "345678", "112233", "12345678"}
	for _, pin := range weak {
		if err := validatePINStrength(pin); err == nil {
			t.Fatalf("expected %s to be rejected", pin)
		}
	}
	strong := []string{"739154", "802613", "4719305"}
	for _, pin := range strong {
		if err := validatePINStrength(pin); err != nil {
			t.Fatalf("expected %s to pass, got %v", pin, err)
		}
	}
}
