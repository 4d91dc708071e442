package main

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestRunAdminHelp(t *testing.T) {
	for _, args := range [][]string{nil, {"help"}, {"--help"}} {
		if err := runAdmin(args); err != nil {
			t.Errorf("runAdmin(%v): %v", args, err)
		}
	}
}

func TestRunAdminUnknown(t *testing.T) {
	err := runAdmin([]string{"reset-everything"})
	if err == nil || !strings.Contains(err.Error(), "unknown admin command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRunAdminMigrateRejectsDirection(t *testing.T) {
	err := runAdmin([]string{"migrate", "sideways"})
	if err == nil || !strings.Contains(err.Error(), "unknown migrate direction") {
		t.Fatalf("expected direction error, got %v", err)
	}
}

func TestRunAdminMigrateRejectsSteps(t *testing.T) {
	err := runAdmin([]string{"migrate", "--steps", "0", "down"})
	if err == nil || !strings.Contains(err.Error(), "--steps") {
		t.Fatalf("expected steps error, got %v", err)
	}
}

func TestHashKeyFlag(t *testing.T) {
	t.Setenv("NEURONFEED_CONTROL_BCRYPT_COST", "4")

	out := captureStdout(t, func() {
		if err := runAdmin([]string{"hash-key", "--config", t.TempDir() + "/none.yaml", "--key", "s3cret"}); err != nil {
			t.Fatalf("hash-key: %v", err)
		}
	})

	hash := strings.TrimSpace(out)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Fatalf("printed hash does not match key: %v", err)
	}
	if cost, _ := bcrypt.Cost([]byte(hash)); cost != 4 {
		t.Errorf("expected configured cost 4, got %d", cost)
	}
}
