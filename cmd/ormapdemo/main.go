// Command ormapdemo exercises two in-process OR-Map replicas and one pair
// of OR-Set replicas end to end: local mutation, publish-buffer draining via
// Dump/Process, concurrent-write convergence, and tombstone flush. It opens
// no listener and speaks to no transport: the map replicas converge by
// handing each other Dump snapshots directly, and the set replicas by
// passing the captured gzip publish messages to Process, standing in for
// whatever carries bytes between real peers.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wehriam/observed-remove-level/ormap"
	"github.com/wehriam/observed-remove-level/orset"
	"github.com/wehriam/observed-remove-level/store"
)

func main() {
	maxAge := flag.Duration("max-age", ormap.DefaultMaxAge, "tombstone age before flush eligibility")
	bufferPublishing := flag.Duration("buffer-publishing", -1, "how long local operations coalesce before publish; negative publishes immediately")
	flag.Parse()

	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	log := zap.Must(logConfig.Build())
	defer log.Sync()
	log = log.Named("ormapdemo")

	ctx := context.Background()
	opts := ormap.Options{
		MaxAge:           *maxAge,
		BufferPublishing: *bufferPublishing,
		Logger:           log.Named("ormap"),
	}

	runMapDemo(ctx, log, opts)
	runSetDemo(ctx, log, opts)
}

// runMapDemo walks through two replicas diverging on a key and converging
// on whichever insertion carries the larger id, then deleting the key and
// flushing the resulting tombstone once it ages out.
func runMapDemo(ctx context.Context, log *zap.Logger, opts ormap.Options) {
	log.Info("--- ormap demo ---")

	alice := ormap.New[string](store.NewMemory(), opts)
	bob := ormap.New[string](store.NewMemory(), opts)
	defer alice.Shutdown(ctx)
	defer bob.Shutdown(ctx)
	if err := <-alice.Ready(); err != nil {
		log.Fatal("alice not ready", zap.Error(err))
	}
	if err := <-bob.Ready(); err != nil {
		log.Fatal("bob not ready", zap.Error(err))
	}

	if _, err := alice.Set(ctx, "favorite-color", "teal"); err != nil {
		log.Fatal("alice set", zap.Error(err))
	}
	if _, err := bob.Set(ctx, "favorite-color", "crimson"); err != nil {
		log.Fatal("bob set", zap.Error(err))
	}

	aliceDump, err := alice.Dump()
	if err != nil {
		log.Fatal("alice dump", zap.Error(err))
	}
	bobDump, err := bob.Dump()
	if err != nil {
		log.Fatal("bob dump", zap.Error(err))
	}

	if err := alice.Process(ctx, ormap.Batch[string]{Insertions: bobDump.Live, Deletions: bobDump.Tombstones}, true); err != nil {
		log.Fatal("alice process bob's dump", zap.Error(err))
	}
	if err := bob.Process(ctx, ormap.Batch[string]{Insertions: aliceDump.Live, Deletions: aliceDump.Tombstones}, true); err != nil {
		log.Fatal("bob process alice's dump", zap.Error(err))
	}

	av, _, _ := alice.Get("favorite-color")
	bv, _, _ := bob.Get("favorite-color")
	log.Info("converged", zap.String("alice", av), zap.String("bob", bv))

	if err := alice.Delete(ctx, "favorite-color"); err != nil {
		log.Fatal("alice delete", zap.Error(err))
	}
	removed, err := alice.Flush()
	if err != nil {
		log.Fatal("alice flush", zap.Error(err))
	}
	log.Info("flushed before max-age elapsed", zap.Int("removed", removed))

	time.Sleep(opts.MaxAge + 10*time.Millisecond)
	removed, err = alice.Flush()
	if err != nil {
		log.Fatal("alice flush", zap.Error(err))
	}
	log.Info("flushed after max-age elapsed", zap.Int("removed", removed))
}

// runSetDemo walks an OR-Set through the same shape of exchange, this time
// over the gzip wire format Publish actually produces.
func runSetDemo(ctx context.Context, log *zap.Logger, baseOpts ormap.Options) {
	log.Info("--- orset demo ---")

	var published [][]byte
	alice := orset.New[string](store.NewMemory(), orset.Options{
		MaxAge:           baseOpts.MaxAge,
		BufferPublishing: baseOpts.BufferPublishing,
		Observer:         publishCapture{capture: func(b []byte) { published = append(published, b) }},
		Logger:           log.Named("orset-alice"),
	})
	bob := orset.New[string](store.NewMemory(), orset.Options{
		MaxAge: baseOpts.MaxAge,
		Logger: log.Named("orset-bob"),
	})
	defer alice.Shutdown(ctx)
	defer bob.Shutdown(ctx)
	if err := <-alice.Ready(); err != nil {
		log.Fatal("alice not ready", zap.Error(err))
	}
	if err := <-bob.Ready(); err != nil {
		log.Fatal("bob not ready", zap.Error(err))
	}

	for _, v := range []string{"go", "rust", "go"} {
		if _, err := alice.Add(ctx, v); err != nil {
			log.Fatal("alice add", zap.Error(err), zap.String("value", v))
		}
	}
	if err := alice.Remove(ctx, "rust"); err != nil {
		log.Fatal("alice remove", zap.Error(err))
	}

	for _, msg := range published {
		if err := bob.Process(ctx, msg, true); err != nil {
			log.Fatal("bob process", zap.Error(err))
		}
	}

	size, _ := bob.Size()
	has, _ := bob.Has("go")
	log.Info("bob converged", zap.Int("size", size), zap.Bool("has-go", has))
	fmt.Println("ormapdemo: done")
}

type publishCapture struct {
	capture func([]byte)
}

func (p publishCapture) OnPublish(batch any) {
	if b, ok := batch.([]byte); ok {
		p.capture(b)
	}
}
func (publishCapture) OnSet(string, any, any, bool) {}
func (publishCapture) OnDelete(string, any)         {}
func (publishCapture) OnAffirm(string, any)         {}
func (publishCapture) OnError(error)                {}

var _ ormap.Observer = publishCapture{}
