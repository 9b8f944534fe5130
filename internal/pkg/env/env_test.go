package env

import (
	"os"
	"testing"
)

func TestSetupEnvFileMissingFileIsNotFatal(t *testing.T) {
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(oldWD) })

	SetupEnvFile()
	if Env == nil {
		t.Fatalf("expected Env map to be initialized without a .env file")
	}
}

func TestGetEnvFallsThroughToProcessEnv(t *testing.T) {
	Env = map[string]string{}
	t.Setenv("PLANSYNC_TEST_KEY", "from-os")

	if got := GetEnv("PLANSYNC_TEST_KEY", "def"); got != "from-os" {
		t.Fatalf("expected OS env value, got %q", got)
	}
	if got := GetEnv("PLANSYNC_TEST_MISSING", "def"); got != "def" {
		t.Fatalf("expected default, got %q", got)
	}
}

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	Env = map[string]string{"PLANSYNC_TEST_KEY": "from-file"}
	defer func() { Env = nil }()
	t.Setenv("PLANSYNC_TEST_KEY", "from-os")

	if got := GetEnv("PLANSYNC_TEST_KEY", "def"); got != "from-file" {
		t.Fatalf("expected file value to win, got %q", got)
	}
}

func TestIsDev(t *testing.T) {
	Env = map[string]string{"APP_ENV": "dev"}
	defer func() { Env = nil }()

	if !IsDev() {
		t.Fatalf("expected dev environment")
	}
	Env["APP_ENV"] = "prod"
	if IsDev() {
		t.Fatalf("expected non-dev environment")
	}
}
