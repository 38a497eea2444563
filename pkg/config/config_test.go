package config

import (
	"os"
	"path/filepath"
	"testing"
)

type serviceConfig struct {
	URL     string `split_words:"true" default:"http://localhost:9999"`
	Retries int    `split_words:"true" default:"3"`
	APIKey  string `envconfig:"API_KEY"`
}

func TestNewAppliesDefaultsAndOverrides(t *testing.T) {
	t.Setenv("CFGTEST_URL", "http://broker:8080")
	t.Setenv("CFGTEST_API_KEY", "k-1")

	conf, err := New[serviceConfig]("cfgtest")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if conf.URL != "http://broker:8080" {
		t.Fatalf("url = %q", conf.URL)
	}
	if conf.Retries != 3 {
		t.Fatalf("retries = %d, want default", conf.Retries)
	}
	if conf.APIKey != "k-1" {
		t.Fatalf("api key = %q", conf.APIKey)
	}
}

func TestMustNewPanicsOnMissingRequired(t *testing.T) {
	type strict struct {
		Token string `split_words:"true" required:"true"`
	}

	defer func() {
		if recover() == nil {
			t.Fatal("missing required variable did not panic")
		}
	}()
	MustNew[strict]("cfgstrict")
}

func TestSeedFromFileKeepsRealEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "SEEDTEST_URL=http://from-file:1\nSEEDTEST_MODE=file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("SEEDTEST_MODE", "real")
	os.Unsetenv("SEEDTEST_URL")
	t.Cleanup(func() { os.Unsetenv("SEEDTEST_URL") })

	if err := seedFromFile(path); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if got := os.Getenv("SEEDTEST_URL"); got != "http://from-file:1" {
		t.Fatalf("url = %q, want file value", got)
	}
	if got := os.Getenv("SEEDTEST_MODE"); got != "real" {
		t.Fatalf("mode = %q, real environment must win over the file", got)
	}
}

func TestSeedFromFileMissingPath(t *testing.T) {
	if err := seedFromFile(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Fatal("missing file did not error")
	}
}
