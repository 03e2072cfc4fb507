package commands

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/muster/internal/printer"
	"github.com/dyluth/muster/pkg/ledger"
	"github.com/dyluth/muster/pkg/queue"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

const testInstance = "test-instance"

// resetFlags restores every flag under cmd to its default, so commands can be
// executed repeatedly within one test binary.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// isolateEnv keeps the developer's MUSTER_* settings and working directory
// out of command tests.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MUSTER_CONFIG", filepath.Join(t.TempDir(), "muster.yml"))
	for _, name := range []string{"MUSTER_SCHEMAS", "MUSTER_INSTANCE_NAME", "MUSTER_REDIS_URL"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

// execute runs the CLI with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, string, error) {
	return executeWithInput(t, "", args...)
}

func executeWithInput(t *testing.T, input string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	oldOut, oldErr := printer.Stdout, printer.Stderr
	printer.Stdout, printer.Stderr = &stdout, &stderr
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(input))
	t.Cleanup(func() {
		printer.Stdout, printer.Stderr = oldOut, oldErr
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
	})

	rootCmd.SetArgs(args)
	err := Execute()
	return stdout.String(), stderr.String(), err
}

// startStore starts miniredis and returns the flags that point the CLI at it,
// plus a queue on the same store for setup and assertions.
func startStore(t *testing.T, opts ...queue.Option) ([]string, *queue.Queue, *ledger.Ledger) {
	t.Helper()
	isolateEnv(t)

	mr := miniredis.RunT(t)
	l := ledger.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { l.Close() })

	q, err := queue.New(l, testInstance, opts...)
	require.NoError(t, err)

	flags := []string{"--name", testInstance, "--redis-url", "redis://" + mr.Addr()}
	return flags, q, l
}

func withFlags(flags []string, args ...string) []string {
	return append(append([]string{}, args...), flags...)
}
