package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"magic-collection-be/internal/bootstrap"
	"magic-collection-be/internal/config"
	"magic-collection-be/internal/server"
	"magic-collection-be/internal/tracer"
	"magic-collection-be/pkg/database"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(cfg.App.OtelEnabled)

	// 3. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 4. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)

	// 5. Start Background Services
	// Subscribing before the server listens: gochannel drops messages nobody is subscribed to.
	queueCtx, stopQueue := context.WithCancel(context.Background())
	if err := container.PersistenceQueue.Consume(queueCtx); err != nil {
		log.Panicf("Unable to start persistence queue: %v", err)
	}

	// 6. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		if err := srv.Run(); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// 7. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop accepting, abort live relays, then close the queue once handlers are done.
	if err := container.Shutdown(ctx, srv.Shutdown); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	stopQueue()
	if err := shutdownTracer(ctx); err != nil {
		log.Printf("Tracer shutdown error: %v", err)
	}
}
