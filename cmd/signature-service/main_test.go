package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	httpApp "github.com/munistream/signature/internal/app/http"
)

// baseArgs points config and dotenv at files that do not exist so the
// defaults (memory storage) apply.
func baseArgs(t *testing.T) []string {
	dir := t.TempDir()
	return []string{"--config", filepath.Join(dir, "absent.yaml"), "--env-file", filepath.Join(dir, "absent.env")}
}

// OK path: Start returns nil, main must not call osExit.
func TestMain_Serve_OK(t *testing.T) {
	origStart, origExit, origArgs := httpStart, osExit, os.Args
	defer func() { httpStart, osExit, os.Args = origStart, origExit, origArgs }()

	os.Args = append([]string{"app", "serve", "--addr=:0", "-t"}, baseArgs(t)...)

	called := false
	httpStart = func(ctx context.Context, addr string, deps httpApp.Deps, test bool) error {
		if deps.Service == nil {
			t.Fatal("nil service passed to httpStart")
		}
		if addr != ":0" || !test {
			t.Fatalf("addr=%q test=%v", addr, test)
		}
		called = true
		return nil
	}
	osExit = func(int) { t.Fatal("should not exit on OK path") }

	main()
	if !called {
		t.Fatal("expected httpStart to be called")
	}
}

// Error path: Start returns error, main must call osExit(1).
func TestMain_Serve_Error_Exits(t *testing.T) {
	origStart, origExit, origArgs := httpStart, osExit, os.Args
	defer func() { httpStart, osExit, os.Args = origStart, origExit, origArgs }()

	os.Args = append([]string{"app", "serve"}, baseArgs(t)...)
	httpStart = func(context.Context, string, httpApp.Deps, bool) error {
		return errors.New("boom")
	}
	code := -1
	osExit = func(c int) { code = c }

	main()
	if code != 1 {
		t.Fatalf("exit code=%d", code)
	}
}

func TestMain_UnknownCommand_Exits(t *testing.T) {
	origExit, origArgs := osExit, os.Args
	defer func() { osExit, os.Args = origExit, origArgs }()

	os.Args = []string{"app", "nope"}
	exited := false
	osExit = func(int) { exited = true }

	main()
	if !exited {
		t.Fatal("expected osExit on unknown command")
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, baseArgs(t)...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCleanupCmd(t *testing.T) {
	out, err := run(t, "", "cleanup")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if !strings.Contains(out, "removed 0 expired records") {
		t.Fatalf("out=%q", out)
	}
}

func TestCertIssue_Sign_Verify(t *testing.T) {
	dir := t.TempDir()
	key, cert := filepath.Join(dir, "key.pem"), filepath.Join(dir, "cert.pem")

	if _, err := run(t, "", "cert", "issue", "--cn", "Jane Citizen", "--algorithm", "ECDSA-SHA256", "--key-out", key, "--cert-out", cert); err != nil {
		t.Fatalf("issue: %v", err)
	}
	out, err := run(t, "", "cert", "validate", cert)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Fatalf("validate output: %s", out)
	}

	payload := `{"signable_data": {"b": 2, "a": 1.0}}`
	envJSON, err := run(t, payload, "sign", "--key", key, "--cert", cert, "--algorithm", "ECDSA-SHA256", "--payload", "-")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	envPath := filepath.Join(dir, "envelope.json")
	if err := os.WriteFile(envPath, []byte(envJSON), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err = run(t, `{"a": 1.0, "b": 2}`, "verify", "--payload", "-", "--envelope", envPath)
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"overall_valid": true`) {
		t.Fatalf("verify output: %s", out)
	}

	// 1 instead of 1.0 changes the canonical bytes
	_, err = run(t, `{"a": 1, "b": 2}`, "verify", "--payload", "-", "--envelope", envPath)
	if !errors.Is(err, errVerificationFailed) {
		t.Fatalf("tampered verify err=%v", err)
	}
}

func TestSign_RequiresIdentity(t *testing.T) {
	if _, err := run(t, "{}", "sign"); err == nil {
		t.Fatal("expected error without key material")
	}
}

func TestVerify_RequiresInputs(t *testing.T) {
	if _, err := run(t, "", "verify"); err == nil {
		t.Fatal("expected error without inputs")
	}
	if _, err := run(t, "", "verify", "--instance", "wf-1", "--field", "sig"); err == nil {
		t.Fatal("expected not found for unknown record")
	}
}

func TestCertValidate_Garbage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "junk.pem")
	if err := os.WriteFile(p, []byte("not a certificate!"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "", "cert", "validate", p); err == nil {
		t.Fatal("expected error")
	}
}
