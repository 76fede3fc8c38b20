// Command sweeper is a scheduled Lambda that deletes expired rooms and pins
// from the shared Firestore backend.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"

	"github.com/tactical-map/backend/internal/config"
	"github.com/tactical-map/backend/internal/storage"
	"github.com/tactical-map/backend/internal/sweep"
)

type handler struct {
	sweeper *sweep.Sweeper
}

// handle is invoked by the CloudWatch schedule.
func (h *handler) handle(ctx context.Context, event events.CloudWatchEvent) error {
	fmt.Printf("[Sweep] Triggered by CloudWatch event %s\n", event.ID)

	report, err := h.sweeper.Run(ctx)
	if err != nil {
		fmt.Printf("[Sweep] Scheduled sweep failed: %v\n", err)
		return err
	}

	fmt.Printf("[Sweep] Completed: %d rooms, %d pins, %d meta docs\n", report.Rooms, report.Pins, report.Meta)
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using system environment variables")
	}

	cfg := config.FromEnvironment()
	if !cfg.FirebaseEnabled() {
		fmt.Println("Firebase credentials are required for the sweeper")
		os.Exit(1)
	}

	fb, err := storage.NewFirebase(context.Background(), cfg.Firebase.CredentialsJSON)
	if err != nil {
		fmt.Printf("Failed to initialize firebase: %v\n", err)
		os.Exit(1)
	}
	store := storage.NewFirestoreStore(fb.Firestore, cfg.Firebase.AppID)

	h := &handler{sweeper: sweep.New(nil, time.Now, store)}
	lambda.Start(h.handle)
}
