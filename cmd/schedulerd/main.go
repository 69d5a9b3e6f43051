// Command schedulerd runs the task scheduler as a standalone process:
// it wires a store backend, the scheduler core, leader election, the
// dashboard hub, and Prometheus metrics together and drives the update
// loop once this process is elected leader.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/meilidex/searchcore/internal/config"
	"github.com/meilidex/searchcore/internal/coordination"
	"github.com/meilidex/searchcore/internal/dashboard"
	"github.com/meilidex/searchcore/internal/incident"
	"github.com/meilidex/searchcore/internal/observability"
	"github.com/meilidex/searchcore/internal/scheduler"
	"github.com/meilidex/searchcore/internal/store"
	"github.com/meilidex/searchcore/internal/tasks"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// noopPerformer stands in for the real downstream performer, which is
// outside this core's scope (spec.md names it an external
// collaborator). It marks every task Succeeded so the loop can be
// exercised end to end without a real index engine attached.
type noopPerformer struct{}

func (noopPerformer) ProcessBatch(b scheduler.Batch) scheduler.Batch {
	now := time.Now()
	for i := range b.Tasks {
		b.Tasks[i].Events = append(b.Tasks[i].Events, tasks.Event{Kind: tasks.EventSucceeded, Timestamp: now})
	}
	return b
}

func (noopPerformer) ProcessJob(scheduler.Job) {}

func main() {
	configPath := flag.String("config", os.Getenv("SCHEDULERD_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("schedulerd: loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	taskStore, coord, closeStore := buildStore(ctx, cfg)
	defer closeStore()

	sched := scheduler.New(taskStore, cfg.SchedulerConfig())
	sched.SetIncidentRecorder(incident.NewRecorder(cfg.IncidentCapacity))

	hub := dashboard.New(sched, cfg.DashboardInterval())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if rs, ok := taskStore.(*store.RedisStore); ok {
		g.Go(func() error {
			wake := rs.Subscribe(gctx)
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-wake:
					sched.Notify()
				}
			}
		})
	}

	if coord != nil {
		elector := coordination.New(coord, cfg.Leader.NodeID, cfg.LeaderTTL())
		elector.SetCallbacks(
			func(leaderCtx context.Context) {
				log.Printf("schedulerd: %s elected leader, resyncing before starting update loop", cfg.Leader.NodeID)
				if err := sched.Resync(leaderCtx); err != nil {
					log.Printf("schedulerd: resync failed, not starting update loop: %v", err)
					return
				}
				scheduler.UpdateLoop(leaderCtx, sched, noopPerformer{})
			},
			func() {
				log.Printf("schedulerd: %s lost leadership", cfg.Leader.NodeID)
			},
		)
		g.Go(func() error {
			elector.Run(gctx)
			return nil
		})
	} else {
		log.Printf("schedulerd: running standalone (no coordinator backend), resyncing before driving update loop directly")
		g.Go(func() error {
			if err := sched.Resync(gctx); err != nil {
				return fmt.Errorf("initial resync: %w", err)
			}
			scheduler.UpdateLoop(gctx, sched, noopPerformer{})
			return nil
		})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/dashboard/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("schedulerd: websocket upgrade failed: %v", err)
			return
		}
		hub.Register(conn)
	})

	srv := &http.Server{Addr: ":8090", Handler: mux}
	g.Go(func() error {
		log.Printf("schedulerd: listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	observability.LeaderStatus.Set(0)

	if err := g.Wait(); err != nil {
		log.Fatalf("schedulerd: exited with error: %v", err)
	}
}

// buildStore constructs the configured TaskStore and, when the
// backend also implements store.Coordinator, returns it for leader
// election too. closeStore always releases backend resources.
func buildStore(ctx context.Context, cfg config.Config) (store.TaskStore, store.Coordinator, func()) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		pg, err := store.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			log.Fatalf("schedulerd: connecting to postgres: %v", err)
		}
		return pg, nil, func() { pg.Close() }

	case config.StoreRedis:
		rs, err := store.NewRedisStore(ctx, cfg.Store.RedisAddr, "", cfg.Store.RedisDB)
		if err != nil {
			log.Fatalf("schedulerd: connecting to redis: %v", err)
		}
		return rs, rs, func() { rs.Close() }

	default:
		log.Printf("schedulerd: using in-memory store (no cross-process durability)")
		return store.NewMemoryStore(), nil, func() {}
	}
}
