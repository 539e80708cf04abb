// Package secret resolves gcpsm:// credential references against Google
// Cloud Secret Manager.
package secret

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// ErrEmptySecret is returned when a secret version has no payload.
var ErrEmptySecret = errors.New("secret value is empty")

type accessFunc func(ctx context.Context, name string) ([]byte, error)

// Manager fetches secret values from Secret Manager. It satisfies
// config.SecretResolver.
type Manager struct {
	client    *secretmanager.Client
	projectID string
	access    accessFunc
}

// NewManager creates a Secret Manager client using application default
// credentials. projectID is used to expand bare secret names.
func NewManager(ctx context.Context, projectID string) (*Manager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("secret manager: create client: %w", err)
	}
	m := &Manager{client: client, projectID: projectID}
	m.access = func(ctx context.Context, name string) ([]byte, error) {
		resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		if err != nil {
			return nil, err
		}
		return resp.GetPayload().GetData(), nil
	}
	return m, nil
}

// ResourceName expands ref into a full secret version name. Accepted forms:
//
//	name                          -> projects/<project>/secrets/name/versions/latest
//	name/versions/3               -> projects/<project>/secrets/name/versions/3
//	projects/p/secrets/name       -> projects/p/secrets/name/versions/latest
//	projects/p/secrets/name/versions/3
func ResourceName(projectID, ref string) (string, error) {
	ref = strings.Trim(ref, "/")
	if ref == "" {
		return "", errors.New("secret manager: empty secret reference")
	}
	if !strings.HasPrefix(ref, "projects/") {
		if projectID == "" {
			return "", fmt.Errorf("secret manager: %q needs a project (set GCP_PROJECT)", ref)
		}
		ref = fmt.Sprintf("projects/%s/secrets/%s", projectID, ref)
	}
	if !strings.Contains(ref, "/versions/") {
		ref += "/versions/latest"
	}
	return ref, nil
}

// Resolve returns the value of the secret referenced by ref.
func (m *Manager) Resolve(ctx context.Context, ref string) (string, error) {
	name, err := ResourceName(m.projectID, ref)
	if err != nil {
		return "", err
	}
	data, err := m.access(ctx, name)
	if err != nil {
		return "", fmt.Errorf("secret manager: access %s: %w", name, err)
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return "", fmt.Errorf("secret manager: %s: %w", name, ErrEmptySecret)
	}
	return val, nil
}

func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
