package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"voice-qa-be/internal/bootstrap"
	"voice-qa-be/internal/config"
	"voice-qa-be/internal/server"
	"voice-qa-be/internal/tracer"
	"voice-qa-be/pkg/database"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	shutdownTracer := tracer.InitTracer(cfg.Telemetry)
	defer shutdownTracer(context.Background())

	// 2. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(ctx, gormDB, cfg)
	defer container.Close()

	if cfg.Pipeline.FailInterruptedOnStart {
		n, err := container.Coordinator.FailInterrupted(ctx)
		if err != nil {
			log.Printf("Failed to clean up interrupted items: %v", err)
		} else if n > 0 {
			log.Printf("Marked %d interrupted items as failed", n)
		}
	}

	// 4. Start the job consumer before serving; the in-process queue drops jobs with no subscriber.
	if err := container.ConsumerService.Consume(ctx); err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down: closing HTTP listener...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}
	}()

	// 6. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}

	// 7. Drain pipelines
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
	defer cancel()
	if err := container.Coordinator.Shutdown(drainCtx); err != nil {
		log.Printf("Pipelines cancelled at shutdown: %v", err)
	}
	log.Println("Shutdown complete")
}
