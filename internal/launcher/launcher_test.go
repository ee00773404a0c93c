//go:build unix

package launcher

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cruft-ninja/script-runner/internal/credential"
)

const fakeSudo = `#!/bin/sh
if [ "$1" = "-n" ] && [ "$2" = "true" ]; then
  [ -f "$FAKE_SUDO_DIR/cached" ] && exit 0
  exit 1
fi
mode=""
while [ $# -gt 0 ]; do
  case "$1" in
    -S) mode=stdin; shift ;;
    -n) mode=cached; shift ;;
    -p) shift 2 ;;
    --) shift; break ;;
    *) break ;;
  esac
done
if [ "$mode" = stdin ]; then
  IFS= read -r pw
  printf '%s' "$pw" > "$FAKE_SUDO_DIR/received"
  if [ "$pw" != "$FAKE_SUDO_PASSWORD" ]; then
    echo "Sorry, try again." >&2
    exit 1
  fi
fi
exec "$@"
`

func requireBash(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("bash"); err != nil {
		t.Skipf("bash not available: %v", err)
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o700))

	return path
}

// installFakeSudo writes the fake elevation command and returns its path.
func installFakeSudo(t *testing.T, cached bool) (sudo, stateDir string) {
	t.Helper()

	stateDir = t.TempDir()
	sudo = writeScript(t, stateDir, "fake-sudo", fakeSudo)

	t.Setenv("FAKE_SUDO_DIR", stateDir)
	t.Setenv("FAKE_SUDO_PASSWORD", "secret123")

	if cached {
		require.NoError(t, os.WriteFile(filepath.Join(stateDir, "cached"), nil, 0o600))
	}

	return sudo, stateDir
}

type result struct {
	out, err []string
	code     int
}

func drain(t *testing.T, p *Process) result {
	t.Helper()

	res, err := collect(p)
	require.NoError(t, err)

	return res
}

// collect reads both streams to EOF, then waits for the exit code.
func collect(p *Process) (result, error) {
	var (
		res result
		wg  sync.WaitGroup
	)

	read := func(r io.Reader, dst *[]string) {
		defer wg.Done()

		data, _ := io.ReadAll(r)
		for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
			if line != "" {
				*dst = append(*dst, line)
			}
		}
	}

	wg.Add(2)

	go read(p.Stdout, &res.out)
	go read(p.Stderr, &res.err)

	wg.Wait()

	code, err := p.Wait()
	res.code = code

	return res, err
}

func TestExists(t *testing.T) {
	require.NoError(t, Exists("/bin/sh"))

	err := Exists("/no/such/script")
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "/no/such/script")
}

func TestLaunch_NativeBinaries(t *testing.T) {
	l := New(Options{})

	for _, tt := range []struct {
		path string
		code int
	}{
		{"/bin/true", 0},
		{"/bin/false", 1},
	} {
		t.Run(filepath.Base(tt.path), func(t *testing.T) {
			if _, err := os.Stat(tt.path); err != nil {
				t.Skipf("%s not available", tt.path)
			}

			p, err := l.Launch(context.Background(), Request{Path: tt.path}, nil)
			require.NoError(t, err)
			require.Equal(t, []string{tt.path}, p.Argv)

			res := drain(t, p)
			require.Equal(t, tt.code, res.code)
		})
	}
}

func TestLaunch_ScriptThroughInterpreter(t *testing.T) {
	requireBash(t)

	dir := t.TempDir()
	path := writeScript(t, dir, "mixed.sh", "echo \"cwd=$(pwd -P)\"\necho oops >&2\necho done\nexit 3\n")

	p, err := New(Options{}).Launch(context.Background(), Request{Path: path}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"bash", path}, p.Argv)
	require.Positive(t, p.PID())

	res := drain(t, p)

	resolvedDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	require.Equal(t, 3, res.code)
	require.Equal(t, []string{"cwd=" + resolvedDir, "done"}, res.out)
	require.Equal(t, []string{"oops"}, res.err)
}

func TestLaunch_SignalExitCode(t *testing.T) {
	requireBash(t)

	path := writeScript(t, t.TempDir(), "selfkill.sh", "kill -TERM $$\n")

	p, err := New(Options{}).Launch(context.Background(), Request{Path: path}, nil)
	require.NoError(t, err)

	require.Equal(t, -15, drain(t, p).code)
}

func TestLaunch_MissingInterpreter(t *testing.T) {
	path := writeScript(t, t.TempDir(), "x.sh", "echo hi\n")

	_, err := New(Options{Interpreter: "definitely-not-a-shell"}).Launch(context.Background(), Request{Path: path}, nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAborted)
}

func TestLaunch_ElevatedWithCredential(t *testing.T) {
	requireBash(t)

	sudo, state := installFakeSudo(t, false)
	path := writeScript(t, t.TempDir(), "whoami.sh", "echo elevated\n")

	asked := 0
	creds := credential.RequesterFunc(func(_ context.Context, p credential.Prompt) (credential.Secret, bool) {
		asked++
		require.Equal(t, "Who", p.Label)

		return credential.NewSecret("secret123"), true
	})

	l := New(Options{ElevationCommand: sudo})
	require.False(t, l.ElevationCached(context.Background()))

	p, err := l.Launch(context.Background(), Request{
		Path:      path,
		NeedsSudo: true,
		Prompt:    credential.Prompt{Identity: path, Label: "Who"},
	}, creds)
	require.NoError(t, err)

	require.Equal(t, 1, asked)
	require.Equal(t, []string{sudo, "-S", "-p", "", "--", "bash", path}, p.Argv)
	require.NotContains(t, p.CommandLine(), "secret123")

	res := drain(t, p)
	require.Equal(t, 0, res.code)
	require.Equal(t, []string{"elevated"}, res.out)

	received, err := os.ReadFile(filepath.Join(state, "received"))
	require.NoError(t, err)
	require.Equal(t, "secret123", string(received))
}

func TestLaunch_ElevatedCachedSkipsPrompt(t *testing.T) {
	requireBash(t)

	sudo, _ := installFakeSudo(t, true)
	path := writeScript(t, t.TempDir(), "ok.sh", "echo fine\n")

	creds := credential.RequesterFunc(func(context.Context, credential.Prompt) (credential.Secret, bool) {
		t.Error("credential requested although grant is cached")
		return credential.Secret{}, false
	})

	p, err := New(Options{ElevationCommand: sudo}).Launch(context.Background(), Request{Path: path, NeedsSudo: true}, creds)
	require.NoError(t, err)
	require.Equal(t, []string{sudo, "-n", "--", "bash", path}, p.Argv)
	require.Equal(t, 0, drain(t, p).code)
}

func TestLaunch_ElevationCancelled(t *testing.T) {
	sudo, _ := installFakeSudo(t, false)
	marker := filepath.Join(t.TempDir(), "ran")
	path := writeScript(t, t.TempDir(), "touch.sh", "touch "+marker+"\n")

	creds := credential.RequesterFunc(func(context.Context, credential.Prompt) (credential.Secret, bool) {
		return credential.Secret{}, false
	})

	p, err := New(Options{ElevationCommand: sudo}).Launch(context.Background(), Request{Path: path, NeedsSudo: true}, creds)
	require.ErrorIs(t, err, ErrAborted)
	require.Nil(t, p)

	_, statErr := os.Stat(marker)
	require.True(t, errors.Is(statErr, os.ErrNotExist), "script must not run after cancel")
}

func TestLaunch_WrongCredentialFails(t *testing.T) {
	requireBash(t)

	sudo, _ := installFakeSudo(t, false)
	path := writeScript(t, t.TempDir(), "x.sh", "echo never\n")

	creds := credential.RequesterFunc(func(context.Context, credential.Prompt) (credential.Secret, bool) {
		return credential.NewSecret("wrong"), true
	})

	p, err := New(Options{ElevationCommand: sudo}).Launch(context.Background(), Request{Path: path, NeedsSudo: true}, creds)
	require.NoError(t, err)

	res := drain(t, p)
	require.Equal(t, 1, res.code)
	require.Empty(t, res.out)
	require.Equal(t, []string{"Sorry, try again."}, res.err)
}

func TestProcess_TerminateKillsGroup(t *testing.T) {
	requireBash(t)

	path := writeScript(t, t.TempDir(), "sleepy.sh", "echo started\nsleep 30\necho unreachable\n")

	p, err := New(Options{}).Launch(context.Background(), Request{Path: path}, nil)
	require.NoError(t, err)

	done := make(chan result, 1)
	go func() {
		res, _ := collect(p)
		done <- res
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, p.Terminate())

	select {
	case res := <-done:
		require.Equal(t, -15, res.code)
		require.NotContains(t, res.out, "unreachable")
	case <-time.After(10 * time.Second):
		t.Fatal("process group survived Terminate")
	}
}

func TestIsNativeExecutable(t *testing.T) {
	dir := t.TempDir()

	script := writeScript(t, dir, "a.sh", "#!/bin/sh\necho hi\n")
	require.False(t, isNativeExecutable(script))

	elf := writeScript(t, dir, "fake-elf", "\x7fELF\x02\x01\x01")
	require.True(t, isNativeExecutable(elf))

	short := writeScript(t, dir, "short", "ab")
	require.False(t, isNativeExecutable(short))

	require.False(t, isNativeExecutable(filepath.Join(dir, "missing")))
}

func TestProcess_WaitIgnoresBackgroundChild(t *testing.T) {
	requireBash(t)

	path := writeScript(t, t.TempDir(), "spawn.sh", "sleep 30 &\necho started\nexit 4\n")

	p, err := New(Options{}).Launch(context.Background(), Request{Path: path}, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = p.Terminate() })

	exited := make(chan int, 1)
	go func() {
		code, _ := p.Wait()
		exited <- code
	}()

	select {
	case code := <-exited:
		require.Equal(t, 4, code)
	case <-time.After(10 * time.Second):
		t.Fatal("Wait blocked on the background child")
	}

	read := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(p.Stdout)
		read <- err
	}()

	require.NoError(t, p.CloseOutput())

	select {
	case err := <-read:
		if err != nil {
			require.ErrorIs(t, err, os.ErrClosed)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("CloseOutput did not unblock the reader")
	}
}
