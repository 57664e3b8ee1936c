package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotenv_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("NISAB_DOTENV_PROBE=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("NISAB_DOTENV_PROBE", "")
	os.Unsetenv("NISAB_DOTENV_PROBE")

	loadDotenv()

	if got := os.Getenv("NISAB_DOTENV_PROBE"); got != "from-file" {
		t.Errorf("expected value from env file, got %q", got)
	}
}

func TestLoadDotenv_ExistingWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("NISAB_DOTENV_PROBE=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("NISAB_DOTENV_PROBE", "from-env")

	loadDotenv()

	if got := os.Getenv("NISAB_DOTENV_PROBE"); got != "from-env" {
		t.Errorf("existing variable should win, got %q", got)
	}
}

func TestLoadDotenv_Disabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("NISAB_DOTENV_DISABLED=1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("NO_DOTENV", "1")

	loadDotenv()

	if _, ok := os.LookupEnv("NISAB_DOTENV_DISABLED"); ok {
		t.Error("NO_DOTENV=1 should skip loading")
		os.Unsetenv("NISAB_DOTENV_DISABLED")
	}
}
