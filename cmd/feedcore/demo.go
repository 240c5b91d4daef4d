package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gorawrfeed "github.com/Keksclan/goRawrFeed"
	"github.com/Keksclan/goRawrFeed/errkind"
	"github.com/Keksclan/goRawrFeed/virtual"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	demoTrace    bool
	demoPosts    int
	demoFailRate float64
)

// demoCmd represents the demo command
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a simulated timeline session",
	Long: `Fetch a simulated home timeline through the cache, dedupe, retry and
breaker pipeline, lay it out with the virtualizer, load its images through
the bounded queue, and persist a draft through the debounced store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		opts := []gorawrfeed.Option{gorawrfeed.WithConfig(cfg)}
		if demoTrace {
			exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(cmd.ErrOrStderr()))
			if err != nil {
				return fmt.Errorf("failed to create trace exporter: %w", err)
			}
			tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
			defer func() { _ = tp.Shutdown(context.Background()) }()
			opts = append(opts, gorawrfeed.WithTracerProvider(tp))
		}

		core, err := gorawrfeed.New(opts...)
		if err != nil {
			return err
		}
		defer core.Close()
		core.Start()

		return runDemo(cmd.Context(), cmd, core)
	},
}

func init() {
	demoCmd.Flags().BoolVar(&demoTrace, "trace", false, "print fetch spans to stderr")
	demoCmd.Flags().IntVar(&demoPosts, "posts", 40, "number of posts in the simulated timeline")
	demoCmd.Flags().Float64Var(&demoFailRate, "fail-rate", 0.3, "probability that an upstream call fails with 503")
}

type post struct {
	ID     string
	Author string
	Text   string
	Images []float64
}

// upstream simulates a flaky feed API.
type upstream struct {
	calls    atomic.Int32
	failRate float64
}

func (u *upstream) timeline(n int) gorawrfeed.Fetcher[[]post] {
	return func(ctx context.Context) ([]post, error) {
		u.calls.Add(1)
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if rand.Float64() < u.failRate {
			return nil, errkind.HTTPError(503, "upstream overloaded")
		}
		posts := make([]post, n)
		for i := range posts {
			p := post{
				ID:     strconv.Itoa(1000 + i),
				Author: fmt.Sprintf("user%d", i%7),
				Text:   fmt.Sprintf("post number %d %s", i, strings.Repeat("rawr ", i%23)),
			}
			for j := range i % 3 {
				p.Images = append(p.Images, 0.75+0.5*float64(j))
			}
			posts[i] = p
		}
		return posts, nil
	}
}

func runDemo(ctx context.Context, cmd *cobra.Command, core *gorawrfeed.Core) error {
	out := cmd.OutOrStdout()
	up := &upstream{failRate: demoFailRate}

	feed, err := gorawrfeed.NewResource[[]post](core, gorawrfeed.ResourceConfig[[]post]{Name: "feed"})
	if err != nil {
		return err
	}

	// Several views open at once and ask for the same timeline.
	var wg sync.WaitGroup
	results := make([][]post, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = feed.Fetch(ctx, "feed:home", up.timeline(demoPosts))
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			c := errkind.Classify(err)
			fmt.Fprintf(out, "timeline failed (%s): %s\n", c.Kind, c.Message)
			return nil
		}
	}
	posts := results[0]
	fmt.Fprintf(out, "fetched %d posts with %d upstream call(s) for 4 concurrent views\n", len(posts), up.calls.Load())

	if _, err := feed.Fetch(ctx, "feed:home", up.timeline(demoPosts)); err == nil {
		fmt.Fprintf(out, "second fetch served from cache, upstream calls still %d\n", up.calls.Load())
	}

	est := virtual.DefaultPostEstimate()
	v := virtual.New(virtual.Options{
		Count: len(posts),
		EstimateSize: est.For(func(i int) virtual.Post {
			p := virtual.Post{Text: posts[i].Text}
			for _, ar := range posts[i].Images {
				p.Media = append(p.Media, virtual.Media{AspectRatio: ar})
			}
			return p
		}),
		ItemKey:      func(i int) string { return posts[i].ID },
		ViewportSize: 800,
	})
	items := v.VirtualItems()
	fmt.Fprintf(out, "virtual list: total height %.0fpx, rendering %d of %d rows\n", v.TotalSize(), len(items), v.Count())

	var loaded atomic.Int32
	var imgs sync.WaitGroup
	for _, it := range items {
		for range posts[it.Index].Images {
			imgs.Add(1)
			core.LoadImage(ctx, func(ctx context.Context) error {
				defer imgs.Done()
				time.Sleep(5 * time.Millisecond)
				loaded.Add(1)
				return nil
			})
		}
	}
	imgs.Wait()
	fmt.Fprintf(out, "loaded %d images, at most %d at a time\n", loaded.Load(), core.Images().MaxConcurrent())

	st := core.Store()
	key := st.Prefix() + "draft"
	for i, text := range []string{"h", "he", "hel", "hello feed"} {
		st.Set(key, map[string]any{"text": text, "timestamp": float64(time.Now().UnixMilli() + int64(i))})
	}
	st.ForceFlush()
	var draft map[string]any
	if st.Get(key, &draft) {
		fmt.Fprintf(out, "persisted draft %q after debounced writes\n", draft["text"])
	}
	return nil
}
