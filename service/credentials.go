package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/bigquery"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// CredentialsEnvVar is the variable the Google SDKs read the key path from.
const CredentialsEnvVar = "GOOGLE_APPLICATION_CREDENTIALS"

var ErrCredentialsNotFound = errors.New(CredentialsEnvVar + " - Not Found")

// CredentialsHint is printed when no credentials could be resolved.
const CredentialsHint = "You have not set the required " + CredentialsEnvVar + " environment variable.\n" +
	"Pass --credentials <path to json key> or run this in your shell environment:\n" +
	"export " + CredentialsEnvVar + "=<path to json key>"

// Credentials is the resolved authentication source for both clients.
type Credentials struct {
	// File is empty when Application Default Credentials are used.
	File      string
	ProjectID string
}

// ClientOptions returns the options shared by the BigQuery and Storage clients.
func (c Credentials) ClientOptions() []option.ClientOption {
	if c.File == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(c.File)}
}

// ResolveCredentials picks the credentials file (explicit path first, then the
// environment) and determines the project ID. Without a file it fails with
// ErrCredentialsNotFound unless allowDefault permits ADC.
func ResolveCredentials(ctx context.Context, path, projectID string, allowDefault bool) (Credentials, error) {
	if path == "" {
		path = os.Getenv(CredentialsEnvVar)
	}

	var creds *google.Credentials
	switch {
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return Credentials{}, fmt.Errorf("%w: %v", ErrCredentialsNotFound, err)
		}
		if projectID == "" {
			creds, err = google.CredentialsFromJSON(ctx, data, bigquery.Scope)
			if err != nil {
				return Credentials{}, fmt.Errorf("failed to parse credentials %s: %w", path, err)
			}
		}
	case allowDefault:
		if projectID == "" {
			var err error
			creds, err = google.FindDefaultCredentials(ctx, bigquery.Scope)
			if err != nil {
				return Credentials{}, fmt.Errorf("failed to find default credentials: %w", err)
			}
		}
	default:
		return Credentials{}, ErrCredentialsNotFound
	}

	if projectID == "" {
		slog.InfoContext(ctx, "GCP_PROJECT_ID not set, attempting to detect from credentials...")
		if creds == nil || creds.ProjectID == "" {
			return Credentials{}, fmt.Errorf("GCP_PROJECT_ID is not set and could not be detected from credentials")
		}
		projectID = creds.ProjectID
		slog.InfoContext(ctx, "Detected Project ID", "project_id", projectID)
	}
	return Credentials{File: path, ProjectID: projectID}, nil
}
