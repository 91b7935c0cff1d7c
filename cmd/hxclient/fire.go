package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/pthm/hxclient"
	"github.com/pthm/hxclient/lib/dom"
	"github.com/pthm/hxclient/lib/loop"
	"github.com/pthm/hxclient/lib/transport"
)

type fireOptions struct {
	base      *url.URL
	target    string
	event     string
	settings  string
	timeout   time.Duration
	verbosity int
	page      string
}

func parseFireArgs(args []string) (fireOptions, error) {
	var opts fireOptions
	var base string
	fs := pflag.NewFlagSet("fire", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&base, "base", "", "server the request URLs are resolved against")
	fs.StringVar(&opts.target, "target", "", "element to fire the event on")
	fs.StringVar(&opts.event, "event", "click", "event name")
	fs.StringVar(&opts.settings, "settings", "", "YAML settings file")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "give up after this long")
	fs.CountVarP(&opts.verbosity, "verbose", "v", "debug (-v) or trace (-vv) logging")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	switch fs.NArg() {
	case 0:
		return opts, errors.New("no page given")
	case 1:
		opts.page = fs.Arg(0)
	default:
		return opts, errors.New("more than one page given")
	}
	if base == "" {
		return opts, errors.New("--base is required")
	}
	if opts.event == "" {
		return opts, errors.New("--event must not be empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return opts, fmt.Errorf("--base: %w", err)
	}
	opts.base = u
	return opts, nil
}

// runFire loads a page, binds its annotated elements, fires one event and
// writes the page to out once every resulting request has completed.
func runFire(args []string, out io.Writer) error {
	opts, err := parseFireArgs(args)
	if err != nil {
		return err
	}
	log, flush, err := newLogger(opts.verbosity)
	if err != nil {
		return err
	}
	defer flush()

	settings := hxclient.DefaultSettings()
	if opts.settings != "" {
		if settings, err = hxclient.LoadSettings(opts.settings); err != nil {
			return err
		}
	}

	f, err := os.Open(opts.page)
	if err != nil {
		return err
	}
	doc, err := dom.Parse(f)
	f.Close()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	l := loop.New(loop.WithLogger(log))
	idle := make(chan struct{}, 1)
	signal := func() {
		select {
		case idle <- struct{}{}:
		default:
		}
	}

	clientOpts := []hxclient.Option{
		hxclient.WithSettings(settings),
		hxclient.WithLogger(log),
		hxclient.WithTransport(transport.NewHTTP(
			transport.WithBaseURL(opts.base),
			transport.WithContext(gctx),
			transport.WithLogger(log),
		)),
		hxclient.WithIdle(signal),
	}
	if key := os.Getenv(keyEnv); key != "" {
		codec, err := hxclient.NewCodec([]byte(key))
		if err != nil {
			return err
		}
		clientOpts = append(clientOpts, hxclient.WithCodec(codec))
	}
	c := hxclient.New(l, doc, clientOpts...)

	g.Go(func() error {
		if err := l.Run(runCtx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		defer stop()

		bound := make(chan error, 1)
		l.Post(func() {
			c.Start()
			n, err := c.BindDocument()
			log.V(1).Info("Bound page", "bindings", n)
			bound <- err
		})
		select {
		case err := <-bound:
			if err != nil {
				return err
			}
		case <-gctx.Done():
			return gctx.Err()
		}

		var ref dom.Ref
		if opts.target != "" {
			ref = dom.ID(opts.target)
		}
		c.Fire(ref, opts.event, nil)
		// Fire posts its delivery first; nothing queued afterwards means the
		// event started no request.
		l.Post(func() {
			if c.Queue().Idle() {
				signal()
			}
		})

		select {
		case <-idle:
		case <-gctx.Done():
			return fmt.Errorf("waiting for requests: %w", gctx.Err())
		}
		c.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	_, err = io.WriteString(out, doc.String()+"\n")
	return err
}
