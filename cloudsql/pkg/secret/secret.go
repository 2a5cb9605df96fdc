// Copyright 2022 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package secret retrieves connection credentials stored in Google Secret
// Manager, such as the SSL certificate bundle of a Cloud SQL connection.
package secret

import (
	"context"
	"fmt"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"github.com/googleapis/gax-go/v2"
	secretmanagerpb "google.golang.org/genproto/googleapis/cloud/secretmanager/v1"
)

const secretVersionName = "projects/%s/secrets/%s/versions/%s"

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Test hook.
var newClient = func(ctx context.Context) (accessClient, error) {
	return secretmanager.NewClient(ctx)
}

// Accessor fetches one Secret Manager payload and caches it for the
// lifetime of a task execution. Safe for concurrent use.
type Accessor struct {
	project string
	secret  string
	version string

	mu      sync.Mutex
	payload []byte
}

// NewAccessor returns an accessor for the given secret. An empty version
// means the latest enabled version.
func NewAccessor(project, secretID, version string) *Accessor {
	if version == "" {
		version = "latest"
	}
	return &Accessor{
		project: project,
		secret:  secretID,
		version: version,
	}
}

// Get returns the decrypted payload of the secret, fetching it at most once.
func (a *Accessor) Get(ctx context.Context) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.payload != nil {
		return a.payload, nil
	}

	client, err := newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create a Secret Manager client: %v", err)
	}
	defer client.Close()

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf(secretVersionName, a.project, a.secret, a.version),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access secret version: %v", err)
	}

	a.payload = result.Payload.Data
	return a.payload, nil
}

// Clear drops the cached payload. Best effort: the garbage collector owns
// the actual memory.
func (a *Accessor) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.payload = nil
}
