package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

const versionString = "0.3.0"

type cliOptions struct {
	configPath string
	file       string
	imports    importList
	jsonOut    bool
	verbose    bool
	version    bool
	command    string
	args       []string
}

// importList collects repeated -import flags. It stays nil when the flag is
// never given so that the document keeps the imports it already has.
type importList []string

func (l *importList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, "; ")
}

func (l *importList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

func parseOptions(args []string, errOut io.Writer) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("pycomplete", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprintln(errOut, "usage: pycomplete [flags] <command> [args]")
		fmt.Fprintln(errOut)
		fmt.Fprintln(errOut, "commands:")
		for _, name := range commandNames() {
			fmt.Fprintf(errOut, "  %-12s %s\n", name, commands[name].summary)
		}
		fmt.Fprintln(errOut)
		fmt.Fprintln(errOut, "flags:")
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.configPath, "config", "", "Path to config file (default: nearest pycomplete.toml)")
	fs.StringVar(&opts.file, "file", "", "Source file whose namespace answers lookups")
	fs.Var(&opts.imports, "import", "Import statement to run before a lookup (repeatable)")
	fs.BoolVar(&opts.jsonOut, "json", false, "Print results as JSON")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	rest := fs.Args()
	if len(rest) > 0 {
		opts.command = rest[0]
		opts.args = rest[1:]
	}
	if opts.version {
		return opts, nil
	}
	if opts.command == "" {
		fs.Usage()
		return cliOptions{}, errUsage
	}
	if _, ok := commands[opts.command]; !ok {
		fmt.Fprintf(errOut, "unknown command %q\n", opts.command)
		fs.Usage()
		return cliOptions{}, errUsage
	}
	return opts, nil
}
