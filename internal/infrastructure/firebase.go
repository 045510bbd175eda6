// Package infrastructure provides Firebase client setup.
//
// One firebase.App backs both the Firestore client and the FCM client so
// they share credentials and project configuration.
package infrastructure

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"koinonia.app/notifier/internal/config"
	"koinonia.app/notifier/internal/pkg/logger"
)

// FirebaseClients contains the clients built from one Firebase app.
type FirebaseClients struct {
	App       *firebase.App
	Firestore *firestore.Client
	Messaging *messaging.Client
}

// NewFirebaseClients initializes the Firebase app and its clients.
//
// When cfg.EmulatorHost is set it is exported as FIRESTORE_EMULATOR_HOST,
// which the Firestore client reads at construction time.
func NewFirebaseClients(ctx context.Context, cfg config.FirebaseConfig) (*FirebaseClients, error) {
	if cfg.EmulatorHost != "" {
		if err := os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.EmulatorHost); err != nil {
			return nil, fmt.Errorf("set emulator host: %w", err)
		}
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore client: %w", err)
	}

	msg, err := app.Messaging(ctx)
	if err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("init messaging client: %w", err)
	}

	logger.Info("Firebase clients initialized",
		zap.String("project_id", cfg.ProjectID),
		zap.Bool("firestore_emulator", cfg.EmulatorHost != ""),
		zap.Bool("credentials_file", cfg.CredentialsFile != ""),
	)

	return &FirebaseClients{
		App:       app,
		Firestore: fs,
		Messaging: msg,
	}, nil
}

// Close releases the Firestore connection. The messaging client holds no
// long-lived connection.
func (c *FirebaseClients) Close() {
	if c == nil || c.Firestore == nil {
		return
	}
	if err := c.Firestore.Close(); err != nil {
		logger.Warn("Firestore client close failed", zap.Error(err))
	}
}
