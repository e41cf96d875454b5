package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trainhub/internal/config"
	"trainhub/internal/metrics"
	"trainhub/internal/notify"
	"trainhub/internal/queue"
	"trainhub/internal/store"
	"trainhub/internal/training"
)

// Worker consumes signature-request events, hands them to the notification
// collaborator, and sweeps stale signature requests on an interval.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	var trainingStore training.Store
	if cfg.StoreBackend == "postgres" {
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer db.Close()
		trainingStore = training.NewPostgresStore(db.Client)
	} else {
		// Without a shared store the sweep only sees this process's state;
		// the API process handles expiry lazily in that setup.
		trainingStore = training.NewMemoryStore()
	}
	svc := training.NewService(trainingStore, cfg.SignatureTTL)

	redisClient := store.NewRedis(cfg.RedisAddr)
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "trainhub:signatures")
	}

	notifier := notify.New(cfg.NotifyServiceURL, cfg.NotifySkip)
	if !cfg.NotifySkip {
		if err := notifier.Health(ctx); err != nil {
			log.Printf("WARNING: notify service not available: %v", err)
			log.Println("Worker will retry delivery when events arrive")
		} else {
			log.Println("Notify service connected")
		}
	}

	go sweepExpiry(ctx, svc, cfg.ExpirySweepInterval)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for signature events...")
	for msg := range messages {
		if msg.Type != training.EventSignatureRequested {
			continue
		}

		var evt training.SignatureRequestedEvent
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("bad signature event payload: %v", err)
			continue
		}

		log.Printf("notifying %d participant(s) for session %s period %s", len(evt.Participants), evt.SessionID, evt.Period)
		if err := notifier.SendSignatureRequest(ctx, evt); err != nil {
			log.Printf("notify dispatch failed for request %s: %v", evt.RequestID, err)
			continue
		}
		log.Printf("request %s dispatched", evt.RequestID)
	}

	log.Println("worker stopped")
}

func sweepExpiry(ctx context.Context, svc *training.Service, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.ExpireStale(ctx)
			if err != nil {
				log.Printf("expiry sweep failed: %v", err)
				continue
			}
			if n > 0 {
				metrics.RequestsExpired.Add(float64(n))
				log.Printf("expired %d signature request(s)", n)
			}
		}
	}
}
