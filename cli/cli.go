package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/itchyny/goxq"
)

const name = "goxq"

const version = "0.1.0"

var revision = "HEAD"

const (
	exitCodeOK = iota
	_
	exitCodeFlagParseErr
	exitCodeCompileErr
	_
	exitCodeDefaultErr
)

type cli struct {
	inStream   io.Reader
	outStream  io.Writer
	errStream  io.Writer
	registerer prometheus.Registerer
}

type flagopts struct {
	Variables map[string]string `long:"var" description:"set an external variable"`
	NullInput bool              `short:"n" long:"null-input" description:"evaluate without a context item"`
	Explain   bool              `long:"explain" description:"print the compiled program"`
	Push      bool              `long:"push" description:"evaluate through the push protocol"`
	Config    string            `long:"config" description:"read options from a YAML file"`
	MaxDepth  *int              `long:"max-depth" config:"max-depth" description:"limit the depth of nested function calls"`
	Timezone  string            `long:"timezone" config:"timezone" description:"set the implicit timezone"`
	Collation string            `long:"collation" config:"collation" description:"set the default collation URI"`
	Stats     bool              `long:"stats" description:"print evaluation counters to stderr"`
	Debug     bool              `long:"debug" config:"debug" description:"log compilation decisions"`
	Color     bool              `short:"C" long:"color" description:"colorize output"`
	NoColor   bool              `short:"M" long:"no-color" description:"disable colored output"`
	Version   bool              `short:"v" long:"version" description:"display version information"`
	Help      bool              `short:"h" long:"help" description:"display this help information"`
}

func (cli *cli) run(args []string) int {
	if err := cli.runInternal(args); err != nil {
		if e, ok := err.(*exitError); !ok || !e.quiet {
			fmt.Fprintf(cli.errStream, "%s: %s\n", name, err)
		}
		if err, ok := err.(interface{ ExitCode() int }); ok {
			return err.ExitCode()
		}
		return exitCodeDefaultErr
	}
	return exitCodeOK
}

func (cli *cli) runInternal(args []string) error {
	var opts flagopts
	args, err := parseFlags(args, &opts)
	if err != nil {
		return usageError(err)
	}
	if opts.Help {
		fmt.Fprintf(cli.outStream, `%[1]s - evaluate expression programs over XML documents

Version: %s (rev: %s/%s)

Synopsis:
  %% %[1]s program.yaml input.xml
  %% cat input.xml | %[1]s program.yaml

Usage:
  %[1]s [OPTIONS] PROGRAM [FILES...]

`,
			name, version, revision, runtime.Version())
		fmt.Fprintln(cli.outStream, formatFlags(&opts))
		return nil
	}
	if opts.Version {
		fmt.Fprintf(cli.outStream, "%s %s (rev: %s/%s)\n", name, version, revision, runtime.Version())
		return nil
	}
	if len(args) == 0 {
		return usageError(errors.New("missing program file"))
	}
	conf, err := loadConfig(&opts)
	if err != nil {
		return usageError(err)
	}
	if err := setColors(conf.GetString("colors")); err != nil {
		return usageError(err)
	}
	logger := cli.newLogger(conf.GetBool("debug"))
	defer logger.Sync()

	fname := args[0]
	src, err := os.ReadFile(fname)
	if err != nil {
		return errors.Wrapf(err, "read program")
	}
	p, err := goxq.LoadProgram(fname, bytes.NewReader(src))
	if err != nil {
		return &compileError{fname, string(src), err}
	}
	options := []goxq.CompilerOption{
		goxq.WithLogger(logger),
		goxq.WithMaxCallDepth(conf.GetInt("max-depth")),
	}
	if cli.registerer != nil {
		options = append(options, goxq.WithMetrics(goxq.NewMetrics(cli.registerer)))
	}
	if tz := conf.GetString("timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return usageError(errors.Wrap(err, "invalid timezone"))
		}
		options = append(options, goxq.WithImplicitTimezone(loc))
	}
	if uri := conf.GetString("collation"); uri != "" {
		coll, err := goxq.ParseCollation(uri)
		if err != nil {
			return usageError(err)
		}
		options = append(options, goxq.WithCollation(coll))
	}
	code, err := goxq.Compile(p, options...)
	if err != nil {
		return &compileError{fname, string(src), err}
	}
	if opts.Explain {
		return goxq.Explain(cli.outStream, code)
	}
	values, err := variableValues(p.Externals(), opts.Variables)
	if err != nil {
		return usageError(err)
	}

	enc := goxq.NewEncoder(cli.outStream)
	if cli.colored(&opts) {
		enc.SetColors(colors)
	}
	var iter inputIter
	switch {
	case opts.NullInput:
		iter = newNullInputIter()
	case len(args) > 1:
		iter = newFilesInputIter(args[1:])
	default:
		iter = newSingleInputIter(cli.inStream, "<stdin>")
	}
	defer iter.Close()
	ctx := context.Background()
	var evalErr error
	for {
		item, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(cli.errStream, "%s: %s\n", name, err)
			evalErr = reportedError(err)
			continue
		}
		if err := cli.evaluate(ctx, code, item, values, opts.Push, enc); err != nil {
			fmt.Fprintf(cli.errStream, "%s: error: %s\n", name, err)
			evalErr = reportedError(err)
		}
	}
	if opts.Stats {
		s := code.Stats()
		fmt.Fprintf(cli.errStream, "calls: %d, tail calls: %d, max depth: %d, groups: %d\n",
			s.Calls, s.TailCalls, s.MaxDepth, s.Groups)
	}
	return evalErr
}

func (cli *cli) evaluate(ctx context.Context, code *goxq.Code, item goxq.Item, values []goxq.Sequence, push bool, enc *goxq.Encoder) error {
	if push {
		out := goxq.NewSequenceOutputter()
		if err := code.Process(ctx, item, out, values...); err != nil {
			return err
		}
		for _, v := range out.Items() {
			if err := cli.print(enc, v); err != nil {
				return err
			}
		}
		return nil
	}
	iter := code.RunWithContext(ctx, item, values...)
	for {
		v, err := iter.Next()
		if err != nil {
			return err
		}
		if v == nil {
			return nil
		}
		if err := cli.print(enc, v); err != nil {
			return err
		}
	}
}

func (cli *cli) print(enc *goxq.Encoder, v goxq.Item) error {
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := cli.outStream.Write([]byte{'\n'})
	return err
}

// loadConfig layers the flags over the GOXQ_* environment variables and
// the configuration file.
func loadConfig(opts *flagopts) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("GOXQ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("max-depth", goxq.DefaultMaxCallDepth)
	v.SetDefault("timezone", "")
	v.SetDefault("collation", "")
	v.SetDefault("colors", "")
	v.SetDefault("debug", false)
	if opts.Config != "" {
		v.SetConfigFile(opts.Config)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", opts.Config)
		}
	}
	overrideConfig(v, opts)
	return v, nil
}

func (cli *cli) newLogger(debug bool) *zap.Logger {
	if !debug {
		return zap.NewNop()
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(cli.errStream),
		zapcore.DebugLevel,
	)
	return zap.New(core, zap.Development())
}

func (cli *cli) colored(opts *flagopts) bool {
	switch {
	case opts.NoColor:
		return false
	case opts.Color:
		return true
	case os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb":
		return false
	}
	f, ok := cli.outStream.(interface{ Fd() uintptr })
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
