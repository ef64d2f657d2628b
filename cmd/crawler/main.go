package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/phenodcc/crawler/internal/config"
	"github.com/phenodcc/crawler/internal/notify"
	"github.com/phenodcc/crawler/internal/session"
	"github.com/phenodcc/crawler/internal/tracker"
)

var app *cli.App

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	flags := config.DefaultFlags()

	app = cli.NewApp()
	app.Name = "phenodcc-crawler"
	app.Usage = "phenodcc multi-source XML ingestion crawler"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "a", Value: flags.NumDownloaders, Usage: "number of parallel downloaders"},
		cli.IntFlag{Name: "m", Value: flags.MaxRetries, Usage: "per-source retry count"},
		cli.IntFlag{Name: "t", Value: flags.PoolSize, Usage: "discovery/extraction pool size"},
		cli.IntFlag{Name: "p", Value: flags.PeriodHours, Usage: "periodic run delay in hours; 0 = one-shot"},
		cli.StringFlag{Name: "d", Value: flags.DataDir, Usage: "local data directory"},
		cli.StringFlag{Name: "r", Value: "", Usage: "email address for run report"},
		cli.StringFlag{Name: "c", Value: "", Usage: "crawler properties file (required)"},
		cli.StringFlag{Name: "s", Value: "", Usage: "serializer properties file"},
		cli.StringFlag{Name: "v", Value: "", Usage: "XML validator properties file"},
		cli.StringFlag{Name: "x", Value: "", Usage: "XML validation-resources properties file"},
		cli.StringFlag{Name: "o", Value: "", Usage: "context-builder properties file"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	flags := config.Flags{
		NumDownloaders:          c.Int("a"),
		MaxRetries:              c.Int("m"),
		PoolSize:                c.Int("t"),
		PeriodHours:             c.Int("p"),
		DataDir:                 c.String("d"),
		ReportEmail:             c.String("r"),
		CrawlerProps:            c.String("c"),
		SerializerProps:         c.String("s"),
		ValidatorProps:          c.String("v"),
		ValidationResourceProps: c.String("x"),
		ContextBuilderProps:     c.String("o"),
	}
	if err := config.ValidateFlags(flags); err != nil {
		return fail(err)
	}

	crawlerProps, err := config.LoadCrawlerProperties(flags.CrawlerProps)
	if err != nil {
		return fail(err)
	}

	db, err := tracker.Open(crawlerProps.TrackerDSN, nil)
	if err != nil {
		return fail(fmt.Errorf("open tracker: %w", err))
	}
	defer db.Close()
	store := tracker.NewStore(db)

	orch := session.New(store, session.Config{Flags: flags, Crawler: crawlerProps})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("cmd/crawler: received %s, finishing the in-flight tick then exiting", sig)
		cancel()
	}()

	// A report is only ever sent for a one-shot run; periodic mode never
	// mails one, even after its final tick.
	if flags.PeriodHours <= 0 {
		result, err := runOnce(ctx, orch)
		if err != nil {
			return fail(err)
		}
		if result != nil && flags.ReportEmail != "" {
			if err := notify.Send(store, result.Session.ID, crawlerProps.SMTPAddr, "crawler@phenodcc.org", flags.ReportEmail); err != nil {
				log.Printf("cmd/crawler: report email failed: %v", err)
			}
		}
		return nil
	}

	ticker := time.NewTicker(time.Duration(flags.PeriodHours) * time.Hour)
	defer ticker.Stop()
	for {
		if _, err := runOnce(ctx, orch); err != nil {
			log.Printf("cmd/crawler: tick failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, orch *session.Orchestrator) (*session.Result, error) {
	result, err := orch.RunOnce(ctx)
	if err != nil {
		if err == session.ErrTickSkipped {
			log.Println("cmd/crawler: previous tick still running, skipped")
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func fail(err error) error {
	if err == nil {
		return nil
	}
	return cli.NewExitError(err.Error(), 1)
}
