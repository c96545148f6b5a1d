package cli

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func init() {
	os.Setenv("NO_COLOR", "")
	os.Setenv("GOXQ_COLORS", "")
}

func TestCliRun(t *testing.T) {
	f, err := os.Open("test.yaml")
	require.NoError(t, err)
	defer f.Close()
	errorReplacer := strings.NewReplacer(
		name+": ", "",
		"testdata\\", "testdata/",
	)

	var testCases []struct {
		Name     string
		Args     []string
		Input    string
		Env      []string
		Expected string
		Error    string
		ExitCode int `yaml:"exit_code"`
	}
	require.NoError(t, yaml.NewDecoder(f).Decode(&testCases))

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			defer func() { assert.Nil(t, recover()) }()
			var outStream, errStream strings.Builder
			cli := cli{
				inStream:  strings.NewReader(tc.Input),
				outStream: &outStream,
				errStream: &errStream,
			}
			for _, env := range tc.Env {
				k, v, _ := strings.Cut(env, "=")
				defer func(v string) { os.Setenv(k, v) }(os.Getenv(k))
				os.Setenv(k, v)
			}
			code := cli.run(tc.Args)
			if tc.Error == "" {
				assert.Equal(t, tc.ExitCode, code)
				assert.Equal(t, tc.Expected, outStream.String())
				assert.Equal(t, "", errStream.String())
			} else {
				errStr := errStream.String()
				if tc.ExitCode != 0 {
					assert.Equal(t, tc.ExitCode, code)
				} else {
					assert.Equal(t, exitCodeDefaultErr, code)
				}
				assert.Equal(t, tc.Expected, outStream.String())
				assert.Contains(t, errorReplacer.Replace(errStr), strings.TrimSpace(tc.Error))
				assert.Equal(t, true, strings.HasSuffix(errStr, "\n"), errStr)
				assert.Equal(t, false, strings.HasSuffix(errStr, "\n\n"), errStr)
			}
		})
	}
}

func TestCliExplain(t *testing.T) {
	var outStream, errStream strings.Builder
	cli := cli{
		inStream:  strings.NewReader(""),
		outStream: &outStream,
		errStream: &errStream,
	}
	code := cli.run([]string{"--explain", "testdata/sum.yaml"})
	require.Equal(t, exitCodeOK, code, errStream.String())
	out := outStream.String()
	assert.Contains(t, out, "declare function local:sum#2 as item()* (tail recursive)")
	assert.Contains(t, out, "call local:sum#2 self-tail")
	assert.Contains(t, out, "\nmain\n")
}

func TestCliDebugLog(t *testing.T) {
	var outStream, errStream strings.Builder
	cli := cli{
		inStream:  strings.NewReader(""),
		outStream: &outStream,
		errStream: &errStream,
	}
	code := cli.run([]string{"--debug", "-n", "--var", "n", "3", "testdata/sum.yaml"})
	require.Equal(t, exitCodeOK, code, errStream.String())
	assert.Equal(t, "6\n", outStream.String())
	assert.Contains(t, errStream.String(), "tail recursive function")
	assert.Contains(t, errStream.String(), "DEBUG")
}

func TestCliStats(t *testing.T) {
	var outStream, errStream strings.Builder
	cli := cli{
		inStream:  strings.NewReader(""),
		outStream: &outStream,
		errStream: &errStream,
	}
	code := cli.run([]string{"--stats", "-n", "--var", "n", "1000", "testdata/sum.yaml"})
	require.Equal(t, exitCodeOK, code, errStream.String())
	assert.Equal(t, "500500\n", outStream.String())
	assert.Contains(t, errStream.String(), "tail calls: 1000, max depth: 1,")
}
