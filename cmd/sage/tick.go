package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sage/internal/app"
	"sage/internal/broadcast"
	"sage/internal/config"
	"sage/internal/subscriber"
	"sage/internal/transport"
)

func newTickCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one broadcast cycle now and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var (
				rep broadcast.Report
				err error
			)
			if dryRun {
				rep, err = dryTick(ctx, cmd.OutOrStdout())
			} else {
				rep, err = liveTick(ctx)
			}
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), rep)
			if rep.Failed > 0 || rep.FetchFailed > 0 {
				return fmt.Errorf("tick finished with %d fetch and %d delivery failures", rep.FetchFailed, rep.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print messages instead of sending them (no bot token needed)")
	return cmd
}

func liveTick(ctx context.Context) (broadcast.Report, error) {
	a, err := app.New(ctx, cfgPath, config.SecretsFromEnv())
	if err != nil {
		return broadcast.Report{}, err
	}
	defer a.Stop(context.Background())
	return a.TickOnce(ctx)
}

func dryTick(ctx context.Context, out io.Writer) (broadcast.Report, error) {
	cfg, err := loadConfig()
	if err != nil {
		return broadcast.Report{}, err
	}
	sec := config.SecretsFromEnv()
	log := cliLogger()

	client, err := app.NewCatalogClient(cfg, sec, log)
	if err != nil {
		return broadcast.Report{}, fmt.Errorf("%w (set %s)", err, config.EnvCatalogToken)
	}
	st, err := app.OpenStore(ctx, cfg, sec, log)
	if err != nil {
		return broadcast.Report{}, err
	}
	defer st.Close()

	cache := subscriber.NewCache(st, 0, log)
	if err := cache.Refresh(ctx); err != nil {
		return broadcast.Report{}, err
	}
	sched := broadcast.New(broadcast.Config{}, broadcast.Deps{
		Reader:  cache,
		Fetcher: client,
		Sender:  &printSender{out: out},
		Log:     log,
	})
	return sched.Tick(ctx), nil
}

// printSender writes messages to out instead of a chat.
type printSender struct {
	mu  sync.Mutex
	out io.Writer
	n   int
}

func (p *printSender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	fmt.Fprintf(p.out, "--- to %s\n%s\n", to, text)
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: p.n}, nil
}

func printReport(out io.Writer, rep broadcast.Report) {
	if rep.Skipped {
		fmt.Fprintf(out, "tick %s skipped: %s\n", rep.ID, rep.SkipReason)
		return
	}
	fmt.Fprintf(out, "tick %s: %d categories, %d sent, %d failed, %d fetch failures (%s)\n",
		rep.ID, len(rep.Categories), rep.Sent, rep.Failed, rep.FetchFailed, rep.Duration.Round(time.Millisecond))
	for _, c := range rep.Categories {
		switch {
		case c.Skipped:
			fmt.Fprintf(out, "  %s: no destinations\n", c.Category)
		case c.FetchErr != nil:
			fmt.Fprintf(out, "  %s: fetch failed: %v\n", c.Category, c.FetchErr)
		default:
			fmt.Fprintf(out, "  %s: %q by %s\n", c.Category, c.Quote.Title, c.Quote.Author)
			for _, d := range c.Delivery {
				if d.Err != nil {
					fmt.Fprintf(out, "    %s: %v\n", d.Destination, d.Err)
				}
			}
		}
	}
}
