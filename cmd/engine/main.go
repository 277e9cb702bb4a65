// Command engine trains the recommendation models at startup and then
// follows the rating feed until interrupted. Serving surfaces embed the
// App from their own binaries.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mercat/varejo/internal/app"
	"github.com/mercat/varejo/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	feedDone := make(chan error, 1)
	go func() {
		feedDone <- application.ConsumeRatingFeed(ctx)
	}()

	application.Logger.Info("Recommendation engine started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-feedDone:
		if err != nil {
			application.Logger.WithError(err).Error("Rating feed stopped")
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Engine exited")
}
