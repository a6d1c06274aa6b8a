package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

var errInvalidArgs = errors.New("bench: invalid arguments")

type benchOptions struct {
	url     string
	subject string
	msgs    int
	size    int
	pubs    int
	subs    int
	timeout time.Duration
}

type result struct {
	Published  int
	Received   int
	Subs       int
	Size       int
	PubElapsed time.Duration
	SubElapsed time.Duration
}

// NewRootCmd returns the base root command.
func NewRootCmd() *cobra.Command {
	opts := benchOptions{}

	cmd := &cobra.Command{
		Use:           "vlnats-bench",
		Short:         "Publish/subscribe load generator for NATS servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			res, err := run(ctx, &opts, cmd.ErrOrStderr())
			if res != nil {
				summary(cmd.OutOrStdout(), res)
			}

			return err
		},
	}

	cmd.Flags().StringVarP(&opts.url, "url", "u", "nats://127.0.0.1:4222", "server url")
	cmd.Flags().StringVarP(&opts.subject, "subject", "s", "bench", "subject to publish to")
	cmd.Flags().IntVarP(&opts.msgs, "msgs", "n", 100000, "number of messages to publish")
	cmd.Flags().IntVar(&opts.size, "size", 128, "payload size in bytes")
	cmd.Flags().IntVar(&opts.pubs, "pubs", 1, "number of publishers")
	cmd.Flags().IntVar(&opts.subs, "subs", 1, "number of subscribers")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "i/o timeout")

	return cmd
}

func run(ctx context.Context, opts *benchOptions, out io.Writer) (*result, error) {
	if opts.msgs <= 0 || opts.pubs <= 0 || opts.subs < 0 || opts.size < 0 || opts.timeout <= 0 {
		return nil, errInvalidArgs
	}

	var clients []*client
	var lock sync.Mutex

	connect := func(name string) (*client, error) {
		c, err := dial(opts.url, name, opts.timeout)
		if err != nil {
			return nil, err
		}

		lock.Lock()
		clients = append(clients, c)
		lock.Unlock()

		return c, nil
	}

	defer func() {
		for _, c := range clients {
			_ = c.close()
		}
	}()

	subs := make([]*client, 0, opts.subs)

	for i := 0; i < opts.subs; i++ {
		c, err := connect("bench-sub-" + strconv.Itoa(i))
		if err != nil {
			return nil, err
		}

		if err = c.subscribe(opts.subject, "", 1); err != nil {
			return nil, err
		}

		if err = c.roundTrip(nil); err != nil {
			return nil, err
		}

		subs = append(subs, c)
	}

	pubs := make([]*client, 0, opts.pubs)

	for i := 0; i < opts.pubs; i++ {
		c, err := connect("bench-pub-" + strconv.Itoa(i))
		if err != nil {
			return nil, err
		}

		pubs = append(pubs, c)
	}

	progress := mpb.New(mpb.WithOutput(out), mpb.WithWidth(60))

	newBar := func(name string) *mpb.Bar {
		return progress.AddBar(int64(opts.msgs),
			mpb.PrependDecorators(
				decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DidentRight}),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)
	}

	pubBar := newBar("pub")

	subBars := make([]*mpb.Bar, len(subs))
	for i := range subs {
		subBars[i] = newBar("sub#" + strconv.Itoa(i))
	}

	res := &result{
		Subs: len(subs),
		Size: opts.size,
	}

	published := atomic.NewInt64(0)
	received := atomic.NewInt64(0)

	group, gctx := errgroup.WithContext(ctx)

	// unblock readers and writers on failure or interrupt
	stop := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			lock.Lock()
			for _, c := range clients {
				_ = c.close()
			}
			lock.Unlock()
		case <-stop:
		}
	}()

	start := time.Now()

	var subElapsed atomic.Duration

	for i, c := range subs {
		c := c
		i := i
		bar := subBars[i]

		group.Go(func() error {
			n, err := c.receive(opts.msgs, func() {
				bar.Increment()
			})

			received.Add(int64(n))

			if err != nil {
				complete(bar)
				return errors.Wrapf(err, "subscriber %d", i)
			}

			d := time.Since(start)
			for {
				cur := subElapsed.Load()
				if d <= cur || subElapsed.CompareAndSwap(cur, d) {
					break
				}
			}

			return nil
		})
	}

	payload := make([]byte, opts.size)
	for i := range payload {
		payload[i] = 'a' + byte(i%26)
	}

	var pubWg sync.WaitGroup

	for i, c := range pubs {
		c := c
		i := i
		count := opts.msgs / opts.pubs
		if i == 0 {
			count += opts.msgs % opts.pubs
		}

		pubWg.Add(1)
		group.Go(func() error {
			defer pubWg.Done()

			for j := 0; j < count; j++ {
				if err := c.publish(opts.subject, payload); err != nil {
					complete(pubBar)
					return errors.Wrapf(err, "publisher %d", i)
				}

				published.Inc()
				pubBar.Increment()
			}

			if err := c.roundTrip(nil); err != nil {
				complete(pubBar)
				return errors.Wrapf(err, "publisher %d", i)
			}

			return nil
		})
	}

	pubWg.Wait()
	res.PubElapsed = time.Since(start)

	err := group.Wait()
	close(stop)

	progress.Wait()

	res.Published = int(published.Load())
	res.Received = int(received.Load())
	res.SubElapsed = subElapsed.Load()

	return res, err
}

// complete marks bar done at its current value so progress does not wait for it
func complete(bar *mpb.Bar) {
	bar.SetTotal(0, true)
}

func rate(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}

	return float64(n) / d.Seconds()
}

func summary(out io.Writer, res *result) {
	title := color.New(color.FgCyan, color.Bold)
	_, _ = title.Fprintln(out, "NATS bench summary")

	pubRate := rate(res.Published, res.PubElapsed)

	fmt.Fprintf(out, "  pub: %s msgs in %s, %s msgs/sec, %s\n",
		color.GreenString(strconv.Itoa(res.Published)),
		res.PubElapsed.Round(time.Millisecond),
		color.GreenString("%.0f", pubRate),
		color.GreenString("%s/sec", humanBytes(pubRate*float64(res.Size))))

	if res.Subs == 0 {
		return
	}

	expected := res.Published * res.Subs

	received := color.GreenString(strconv.Itoa(res.Received))
	if res.Received < expected {
		received = color.RedString("%d of %d", res.Received, expected)
	}

	subRate := rate(res.Received, res.SubElapsed)

	fmt.Fprintf(out, "  sub: %s msgs in %s, %s msgs/sec, %s\n",
		received,
		res.SubElapsed.Round(time.Millisecond),
		color.GreenString("%.0f", subRate),
		color.GreenString("%s/sec", humanBytes(subRate*float64(res.Size))))
}

func humanBytes(v float64) string {
	units := []string{"B", "KB", "MB", "GB"}

	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}

	return fmt.Sprintf("%.2f %s", v, units[i])
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err) // nolint: errcheck
		os.Exit(1)
	}
}
