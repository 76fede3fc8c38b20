package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Firebase bundles the clients of one Firebase Admin app.
type Firebase struct {
	Firestore *firestore.Client
	Auth      *auth.Client
}

// NewFirebase initializes the Firebase Admin SDK from a service account JSON document.
func NewFirebase(ctx context.Context, credentialsJSON string) (*Firebase, error) {
	if credentialsJSON == "" {
		return nil, fmt.Errorf("firebase credentials are not set")
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON([]byte(credentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		fs.Close()
		return nil, fmt.Errorf("creating auth client: %w", err)
	}

	fmt.Printf("[Firestore] Firestore and Auth clients initialized\n")
	return &Firebase{Firestore: fs, Auth: authClient}, nil
}
