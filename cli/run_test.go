package cli

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func ExampleConfig() {
	var stdout, stderr bytes.Buffer
	stdin := strings.NewReader(`<library><book title="Go"/><book title="XML"/></library>`)
	code := (&Config{
		Stdin:  stdin,
		Stdout: &stdout,
		Stderr: &stderr,
	}).Run([]string{"testdata/titles.yaml"})

	if code != 0 {
		log.Fatalf("exit code: got %v, expected: 0", code)
	}

	if stderr.Len() > 0 {
		log.Fatalf("stderr: got %q, expected empty", stderr.String())
	}

	fmt.Print(stdout.String())

	// Output:
	// Go
	// XML
}

func TestConfigStdin(t *testing.T) {
	testCases := []struct {
		name   string
		stdin  io.Reader
		output string
	}{
		{
			name:   "set",
			stdin:  strings.NewReader(`<library><book title="Go"/></library>`),
			output: "Go\n",
		},
		{
			name:   "unset",
			stdin:  nil,
			output: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			code := (&Config{
				Stdin:  tc.stdin,
				Stdout: &out,
			}).Run([]string{"testdata/titles.yaml"})

			if code != 0 {
				t.Errorf("exit code: got %v, expected: 0", code)
			}

			if diff := cmp.Diff(tc.output, out.String()); diff != "" {
				t.Error("standard output:\n" + diff)
			}
		})
	}
}

func TestConfigStderrSet(t *testing.T) {
	var stderr bytes.Buffer
	code := (&Config{
		Stderr: &stderr,
	}).Run([]string{"--not-a-real-flag"})

	if code == 0 {
		t.Errorf("exit code: got %v, expected != 0", code)
	}

	if !strings.Contains(stderr.String(), "unknown flag") {
		t.Errorf(`stderr output: must contain "unknown flag", got %q`, stderr.String())
	}
}

func TestConfigStreamsUnset(t *testing.T) {
	testCases := []struct {
		name   string
		stream **os.File
		args   []string
	}{
		{"stdout", &os.Stdout, []string{"testdata/titles.yaml"}},
		{"stderr", &os.Stderr, []string{"--not-a-real-flag"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// the command must not fall back to the process streams
			defer func(f *os.File) { *tc.stream = f }(*tc.stream)
			f, err := os.CreateTemp(t.TempDir(), tc.name)
			if err != nil {
				t.Fatalf("create temporary %s: %v", tc.name, err)
			}
			*tc.stream = f

			(&Config{
				Stdin: strings.NewReader(`<library><book title="Go"/></library>`),
			}).Run(tc.args)

			if err := f.Close(); err != nil {
				t.Fatalf("close temporary %s: %v", tc.name, err)
			}
			out, err := os.ReadFile(f.Name())
			if err != nil {
				t.Fatalf("read temporary %s: %v", tc.name, err)
			}
			if len(out) > 0 {
				t.Errorf("expected os.%s to be empty, got %q", tc.name, out)
			}
		})
	}
}

func TestConfigRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	var out bytes.Buffer
	code := (&Config{
		Stdout:     &out,
		Registerer: reg,
	}).Run([]string{"-n", "--var", "n", "100", "testdata/sum.yaml"})
	if code != 0 {
		t.Fatalf("exit code: got %v, expected: 0", code)
	}
	if diff := cmp.Diff("5050\n", out.String()); diff != "" {
		t.Error("standard output:\n" + diff)
	}

	expected := `
# HELP goxq_tail_calls_total Number of user function calls run by the trampoline of their caller.
# TYPE goxq_tail_calls_total counter
goxq_tail_calls_total 100
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "goxq_tail_calls_total"); err != nil {
		t.Error(err)
	}
}
