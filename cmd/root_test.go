package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestRootRegistersCommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"server", "evaluate", "status", "book", "slots", "migrate", "keys", "hash-password", "version"} {
		c, _, err := root.Find([]string{name})
		if err != nil || c.Name() != name {
			t.Fatalf("command %q not registered: %v", name, err)
		}
	}
}

func TestHashPassword(t *testing.T) {
	c := newHashPasswordCmd()
	var out bytes.Buffer
	c.SetIn(strings.NewReader("s3cret\n"))
	c.SetOut(&out)
	c.SetArgs([]string{})
	if err := c.Execute(); err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(out.String())
	hash := strings.TrimSuffix(strings.TrimPrefix(line, "export ADMIN_PASSWORD_HASH='"), "'")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Fatalf("hash %q does not match: %v", hash, err)
	}

	c = newHashPasswordCmd()
	c.SetIn(strings.NewReader(""))
	c.SetOut(&out)
	c.SetArgs([]string{})
	if err := c.Execute(); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestResolveWeek(t *testing.T) {
	if w, err := resolveWeek("2025-W04", time.UTC); err != nil || w != "2025-W04" {
		t.Fatalf("explicit week = %q, %v", w, err)
	}
	if _, err := resolveWeek("next", time.UTC); err == nil {
		t.Fatal("expected error")
	}
	if w, err := resolveWeek("", time.UTC); err != nil || w == "" {
		t.Fatalf("current week = %q, %v", w, err)
	}
}
