// Copyright 2025 Certen Protocol
//
// Package firestore mirrors key-block handover telemetry to Firestore
// so an operator dashboard can show uploader (component G) sync
// status in real time, without reading uploader logs or querying the
// Postgres audit table in pkg/database. Grounded on the teacher's
// Firebase Admin SDK client wrapper: same enabled/no-op toggle, same
// lazy app + client construction, stripped of everything the teacher
// synced that this service has no equivalent of.
package firestore

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// Client wraps the Firestore client with an enabled/no-op toggle, the
// same pattern the teacher used so callers never need to branch on
// whether telemetry is configured.
type Client struct {
	app       *firebase.App
	firestore *gcpfirestore.Client
	projectID string
	logger    *log.Logger
	enabled   bool
	mu        sync.RWMutex
}

// ClientConfig configures the Firestore client, mirroring
// config.TelemetryConfig.
type ClientConfig struct {
	ProjectID       string
	CredentialsFile string
	Enabled         bool
	Logger          *log.Logger
}

// NewClient builds a Client. When cfg.Enabled is false, every
// operation on the returned client is a no-op — useful for local
// development and for tests that construct an uploader without
// standing up a Firebase project.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[firestore] ", log.LstdFlags)
	}

	client := &Client{
		projectID: cfg.ProjectID,
		logger:    cfg.Logger,
		enabled:   cfg.Enabled,
	}

	if !cfg.Enabled {
		cfg.Logger.Println("firestore telemetry disabled - running in no-op mode")
		return client, nil
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firestore: project id is required when telemetry is enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: init firebase app: %w", err)
	}
	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client: %w", err)
	}

	client.app = app
	client.firestore = fsClient
	cfg.Logger.Printf("firestore telemetry client initialized for project %s", cfg.ProjectID)
	return client, nil
}

// Close releases the underlying Firestore connection, if any was opened.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firestore != nil {
		return c.firestore.Close()
	}
	return nil
}

// IsEnabled reports whether telemetry is actually wired up.
func (c *Client) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Collection returns a reference to a Firestore collection, or nil if
// telemetry is disabled.
func (c *Client) Collection(path string) *gcpfirestore.CollectionRef {
	if !c.IsEnabled() || c.firestore == nil {
		return nil
	}
	return c.firestore.Collection(path)
}
