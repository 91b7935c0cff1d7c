package main

import (
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/pthm/hxclient"
)

type sealOptions struct {
	binding hxclient.Binding
	attrs   string
}

func parseSealArgs(args []string) (sealOptions, error) {
	var opts sealOptions
	var swap string
	fs := pflag.NewFlagSet("seal", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.binding.Event, "event", "click", "events that trigger the request")
	fs.StringVar(&swap, "swap", "", "how the response is applied")
	fs.BoolVar(&opts.binding.Sensitive, "sensitive", false, "encrypt instead of sign")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.binding.Swap = hxclient.SwapMode(swap)

	switch fs.NArg() {
	case 0:
	case 1:
		opts.attrs = fs.Arg(0)
	default:
		return opts, errors.New("attributes given more than once")
	}
	return opts, nil
}

// parseAttrs reads request attributes written as a YAML or JSON mapping.
func parseAttrs(src string) (hxclient.Attributes, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	var attrs map[string]any
	if err := yaml.Unmarshal([]byte(src), &attrs); err != nil {
		return nil, fmt.Errorf("parse attributes: %w", err)
	}
	return hxclient.Attributes(attrs), nil
}

// runSeal prints the binding attributes for an element, ready to paste into
// markup.
func runSeal(args []string, out io.Writer) error {
	opts, err := parseSealArgs(args)
	if err != nil {
		return err
	}
	key := os.Getenv(keyEnv)
	if key == "" {
		return fmt.Errorf("$%s is not set", keyEnv)
	}
	codec, err := hxclient.NewCodec([]byte(key))
	if err != nil {
		return err
	}

	if opts.binding.Attrs, err = parseAttrs(opts.attrs); err != nil {
		return err
	}
	attrs, err := hxclient.BindAttrs(codec, opts.binding)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf(`%s="%s"`, name, html.EscapeString(fmt.Sprint(attrs[name])))
	}
	_, err = fmt.Fprintln(out, strings.Join(parts, " "))
	return err
}
