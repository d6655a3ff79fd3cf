package main

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader("hunter2hunter2\n"))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"hash-password"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2hunter2")); err != nil {
		t.Errorf("printed hash does not verify: %v", err)
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetIn(strings.NewReader("\n"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"hash-password"})
	if err := cmd.Execute(); err == nil {
		t.Error("expected empty password to be rejected")
	}
}

func TestOperatorTokenCommand(t *testing.T) {
	t.Setenv("FILES_OPERATOR_SECRET", "0123456789abcdef0123456789abcdef")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"operator-token", "--subject", "bot"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if parts := strings.Split(strings.TrimSpace(out.String()), "."); len(parts) != 3 {
		t.Errorf("expected a JWT, got %q", out.String())
	}
}
