package cli

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// flag is a field of the options struct described by its tags: long and
// short name, description, and the configuration key it overrides.
type flag struct {
	long, short string
	desc        string
	config      string
	value       reflect.Value
}

func flagsOf(opts any) []*flag {
	val := reflect.ValueOf(opts).Elem()
	typ := val.Type()
	flags := make([]*flag, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag
		flags = append(flags, &flag{
			long:   tag.Get("long"),
			short:  tag.Get("short"),
			desc:   tag.Get("description"),
			config: tag.Get("config"),
			value:  val.Field(i),
		})
	}
	return flags
}

// arity is the number of arguments following the flag.
func (f *flag) arity() int {
	switch f.value.Kind() {
	case reflect.Bool:
		return 0
	case reflect.Map:
		return 2
	default:
		return 1
	}
}

func (f *flag) set(args []string) error {
	switch f.value.Kind() {
	case reflect.Bool:
		f.value.SetBool(true)
	case reflect.String:
		f.value.SetString(args[0])
	case reflect.Ptr:
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid argument for flag `--%s': %w", f.long, err)
		}
		f.value.Set(reflect.New(f.value.Type().Elem()))
		f.value.Elem().SetInt(int64(v))
	case reflect.Map:
		if f.value.IsNil() {
			f.value.Set(reflect.MakeMap(f.value.Type()))
		}
		f.value.SetMapIndex(reflect.ValueOf(args[0]), reflect.ValueOf(args[1]))
	}
	return nil
}

// parseFlags sets the fields of opts from args and returns the remaining
// arguments. Boolean short flags may be clustered as in -nC, and a long
// flag taking one argument accepts the --name=value form.
func parseFlags(args []string, opts any) ([]string, error) {
	longs, shorts := map[string]*flag{}, map[string]*flag{}
	for _, f := range flagsOf(opts) {
		if f.long != "" {
			longs[f.long] = f
		}
		if f.short != "" {
			shorts[f.short] = f
		}
	}
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var f *flag
		switch {
		case arg == "--":
			return append(rest, args[i+1:]...), nil
		case strings.HasPrefix(arg, "--"):
			name, value, ok := strings.Cut(arg[2:], "=")
			if f = longs[name]; f == nil {
				return nil, fmt.Errorf("unknown flag `--%s'", name)
			}
			if ok {
				if f.arity() != 1 {
					return nil, fmt.Errorf("flag `--%s' cannot have an argument", name)
				}
				if err := f.set([]string{value}); err != nil {
					return nil, err
				}
				continue
			}
		case len(arg) > 1 && arg[0] == '-':
			for j := 1; j < len(arg); j++ {
				if f = shorts[arg[j:j+1]]; f == nil {
					return nil, fmt.Errorf("unknown flag `-%s'", arg[j:j+1])
				}
				if f.arity() > 0 && j < len(arg)-1 {
					return nil, fmt.Errorf("flag `-%s' needs an argument", f.short)
				}
				if f.arity() == 0 {
					f.value.SetBool(true)
				}
			}
			if f.arity() == 0 {
				continue
			}
		default:
			rest = append(rest, arg)
			continue
		}
		n := f.arity()
		if i+n >= len(args) {
			if n == 1 {
				return nil, fmt.Errorf("expected argument for flag `--%s'", f.long)
			}
			return nil, fmt.Errorf("expected %d arguments for flag `--%s'", n, f.long)
		}
		if err := f.set(args[i+1 : i+1+n]); err != nil {
			return nil, err
		}
		i += n
	}
	return rest, nil
}

// overrideConfig sets the configuration keys of the flags given on the
// command line, so they take precedence over files and the environment.
func overrideConfig(v *viper.Viper, opts any) {
	for _, f := range flagsOf(opts) {
		if f.config == "" || f.value.IsZero() {
			continue
		}
		val := f.value
		if val.Kind() == reflect.Ptr {
			val = val.Elem()
		}
		v.Set(f.config, val.Interface())
	}
}

func formatFlags(opts any) string {
	flags := flagsOf(opts)
	var sb strings.Builder
	sb.WriteString("Command Options:\n")
	for i, f := range flags {
		if i == len(flags)-1 {
			sb.WriteString("\nHelp Option:\n")
		}
		sb.WriteString("  ")
		start := sb.Len()
		if f.short != "" {
			sb.WriteString("-" + f.short + ", ")
		} else {
			sb.WriteString("    ")
		}
		sb.WriteString("--" + f.long)
		switch f.value.Kind() {
		case reflect.Bool:
		case reflect.Map:
			sb.WriteString(" name value")
		default:
			sb.WriteString("=")
		}
		if pad := 26 - (sb.Len() - start); pad > 0 {
			sb.WriteString(strings.Repeat(" ", pad))
		} else {
			sb.WriteString(" ")
		}
		sb.WriteString(f.desc)
		if f.config != "" {
			sb.WriteString(" (GOXQ_" + strings.ToUpper(strings.ReplaceAll(f.config, "-", "_")) + ")")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
