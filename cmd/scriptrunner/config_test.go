package main

import (
	"io"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func executeCmd(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()

	out, buf := testWriter()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetContext(out.WithContext(t.Context()))

	if err := cmd.Execute(); err != nil {
		t.Fatalf("%s should succeed: %v", cmd.Name(), err)
	}

	return buf.String()
}

func TestConfigGet_FromEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv("SCRIPTRUNNER_RUNNER_MAX_CONCURRENT", "7")

	got := executeCmd(t, newConfigGetCmd(), "runner.max_concurrent")

	if got != "runner.max_concurrent = 7\n" {
		t.Errorf("output = %q", got)
	}
}

func TestConfigGet_Unset(t *testing.T) {
	isolateEnv(t)

	got := executeCmd(t, newConfigGetCmd(), "no.such.key")

	if got != "no.such.key is not set\n" {
		t.Errorf("output = %q", got)
	}
}

func TestConfigSet_ThenList(t *testing.T) {
	isolateEnv(t)

	got := executeCmd(t, newConfigSetCmd(), "catalog.path", "/srv/ops/scripts.toml")
	if got != "✓ Set catalog.path = /srv/ops/scripts.toml\n" {
		t.Errorf("set output = %q", got)
	}

	list := executeCmd(t, newConfigListCmd())

	for _, want := range []string{
		"catalog.path = /srv/ops/scripts.toml\n",
		"runner.max_concurrent = 5\n",
		"runner.interpreter = bash\n",
		"Config file: ",
	} {
		if !strings.Contains(list, want) {
			t.Errorf("list output missing %q:\n%s", want, list)
		}
	}
}

func TestConfigGet_JSON(t *testing.T) {
	isolateEnv(t)
	t.Setenv("SCRIPTRUNNER_RUNNER_INTERPRETER", "sh")

	out, buf := testWriter()
	out.JSON = true

	cmd := newConfigGetCmd()
	cmd.SetArgs([]string{"runner.interpreter"})
	cmd.SetOut(io.Discard)
	cmd.SetContext(out.WithContext(t.Context()))

	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	if got := buf.String(); got != "{\n  \"runner.interpreter\": \"sh\"\n}\n" {
		t.Errorf("output = %q", got)
	}
}

func TestConfigSet_UnknownKeyWarns(t *testing.T) {
	isolateEnv(t)

	got := executeCmd(t, newConfigSetCmd(), "runner.max_concurent", "3")

	if !strings.Contains(got, "⚠ runner.max_concurent is not a scriptrunner setting") {
		t.Errorf("output = %q", got)
	}
}
