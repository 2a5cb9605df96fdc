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

// Package admin wraps the Cloud SQL Admin API for the pipeline tasks.
//
// Mutating calls block until the returned server-side operation reaches a
// terminal state, with one exception: ExportInstance hands the operation
// name back to the caller so exports can be awaited out of process.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/compute/metadata"
	"golang.org/x/oauth2"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"
	sqladmin "google.golang.org/api/sqladmin/v1beta4"
	"k8s.io/klog/v2"
)

const cloneContextKind = "sql#cloneContext"

// Config controls hook construction.
type Config struct {
	// Project the hook operates in. Empty resolves to the GCE metadata
	// project when running on GCE.
	Project string
	// ImpersonationChain is an optional ordered list of service accounts.
	// The last entry is the principal API calls execute as; the preceding
	// entries are the delegation chain granting access to it.
	ImpersonationChain []string
	// Endpoint overrides the API endpoint. Used by tests together with an
	// unauthenticated client.
	Endpoint string
	// TokenSource overrides credential discovery.
	TokenSource oauth2.TokenSource
}

// Service issues Cloud SQL Admin calls for one project.
type Service struct {
	svc     *sqladmin.Service
	project string
}

// Test hook, swapped to avoid minting real impersonated credentials.
var newImpersonatedTokenSource = impersonate.CredentialsTokenSource

// New builds a Service from cfg. The returned close function exists for
// symmetry with connection-backed hooks and never fails.
func New(ctx context.Context, cfg Config) (*Service, func() error, error) {
	project, err := resolveProject(cfg.Project)
	if err != nil {
		return nil, nil, err
	}

	var opts []option.ClientOption
	switch {
	case cfg.Endpoint != "":
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	case cfg.TokenSource != nil:
		opts = append(opts, option.WithTokenSource(cfg.TokenSource))
	case len(cfg.ImpersonationChain) > 0:
		ts, err := impersonatedTokenSource(ctx, cfg.ImpersonationChain)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, option.WithTokenSource(ts))
	}

	svc, err := sqladmin.NewService(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create a Cloud SQL Admin client: %v", err)
	}
	return &Service{svc: svc, project: project}, func() error { return nil }, nil
}

func resolveProject(project string) (string, error) {
	if project != "" {
		return project, nil
	}
	if metadata.OnGCE() {
		p, err := metadata.ProjectID()
		if err != nil {
			return "", fmt.Errorf("failed to resolve the default project from the metadata server: %v", err)
		}
		klog.InfoS("resolved default project from metadata", "project", p)
		return p, nil
	}
	return "", errors.New("the required parameter 'project_id' is empty")
}

func impersonatedTokenSource(ctx context.Context, chain []string) (oauth2.TokenSource, error) {
	target := chain[len(chain)-1]
	ts, err := newImpersonatedTokenSource(ctx, impersonate.CredentialsConfig{
		TargetPrincipal: target,
		Delegates:       chain[:len(chain)-1],
		Scopes:          []string{sqladmin.CloudPlatformScope},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to impersonate %q: %v", target, err)
	}
	return ts, nil
}

// Project returns the project the hook was bound to.
func (s *Service) Project() string {
	return s.project
}

// DecodeBody bridges a validated request body into the typed API struct via
// its JSON form.
func DecodeBody(body map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode the request body: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("the request body does not match the API schema: %v", err)
	}
	return nil
}

// GetInstance fetches one instance.
func (s *Service) GetInstance(ctx context.Context, instance string) (*sqladmin.DatabaseInstance, error) {
	return s.svc.Instances.Get(s.project, instance).Context(ctx).Do()
}

// InstanceExists maps a 404 on the instance get to false. Any other failure
// propagates unchanged.
func (s *Service) InstanceExists(ctx context.Context, instance string) (bool, error) {
	if _, err := s.GetInstance(ctx, instance); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateInstance creates an instance and waits for the operation to finish.
func (s *Service) CreateInstance(ctx context.Context, body *sqladmin.DatabaseInstance) error {
	op, err := s.svc.Instances.Insert(s.project, body).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to create instance %q: %v", body.Name, err)
	}
	return s.WaitForOperation(ctx, op.Name)
}

// PatchInstance applies a partial instance update and waits.
func (s *Service) PatchInstance(ctx context.Context, instance string, body *sqladmin.DatabaseInstance) error {
	op, err := s.svc.Instances.Patch(s.project, instance, body).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to patch instance %q: %v", instance, err)
	}
	return s.WaitForOperation(ctx, op.Name)
}

// DeleteInstance deletes an instance and waits.
func (s *Service) DeleteInstance(ctx context.Context, instance string) error {
	op, err := s.svc.Instances.Delete(s.project, instance).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to delete instance %q: %v", instance, err)
	}
	return s.WaitForOperation(ctx, op.Name)
}

// CloneInstance clones instance into destination and waits. cloneContext
// carries optional API clone settings (binary log coordinates, point in
// time, allocated IP range); kind and destination are set here.
func (s *Service) CloneInstance(ctx context.Context, instance, destination string, cloneContext map[string]interface{}) error {
	cc := &sqladmin.CloneContext{}
	if len(cloneContext) > 0 {
		if err := DecodeBody(cloneContext, cc); err != nil {
			return err
		}
	}
	cc.Kind = cloneContextKind
	cc.DestinationInstanceName = destination

	op, err := s.svc.Instances.Clone(s.project, instance, &sqladmin.InstancesCloneRequest{CloneContext: cc}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clone instance %q to %q: %v", instance, destination, err)
	}
	return s.WaitForOperation(ctx, op.Name)
}

// ExportInstance starts an export and returns the operation name without
// waiting. Completion is observed either by WaitForOperation (synchronous
// callers) or by the export watcher (deferred callers).
func (s *Service) ExportInstance(ctx context.Context, instance string, req *sqladmin.InstancesExportRequest) (string, error) {
	op, err := s.svc.Instances.Export(s.project, instance, req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to export instance %q: %v", instance, err)
	}
	klog.InfoS("started export", "instance", instance, "operation", op.Name)
	return op.Name, nil
}

// ImportInstance imports data into an instance and waits.
func (s *Service) ImportInstance(ctx context.Context, instance string, req *sqladmin.InstancesImportRequest) error {
	op, err := s.svc.Instances.Import(s.project, instance, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to import into instance %q: %v", instance, err)
	}
	return s.WaitForOperation(ctx, op.Name)
}

// GetDatabase fetches one database of an instance.
func (s *Service) GetDatabase(ctx context.Context, instance, database string) (*sqladmin.Database, error) {
	return s.svc.Databases.Get(s.project, instance, database).Context(ctx).Do()
}

// DatabaseExists maps a 404 on the database get to false.
func (s *Service) DatabaseExists(ctx context.Context, instance, database string) (bool, error) {
	if _, err := s.GetDatabase(ctx, instance, database); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateDatabase creates a database inside an instance and waits.
func (s *Service) CreateDatabase(ctx context.Context, instance string, body *sqladmin.Database) error {
	op, err := s.svc.Databases.Insert(s.project, instance, body).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to create database %q in instance %q: %v", body.Name, instance, err)
	}
	return s.WaitForOperation(ctx, op.Name)
}

// PatchDatabase applies a partial database update and waits.
func (s *Service) PatchDatabase(ctx context.Context, instance, database string, body *sqladmin.Database) error {
	op, err := s.svc.Databases.Patch(s.project, instance, database, body).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to patch database %q in instance %q: %v", database, instance, err)
	}
	return s.WaitForOperation(ctx, op.Name)
}

// DeleteDatabase removes a database from an instance and waits.
func (s *Service) DeleteDatabase(ctx context.Context, instance, database string) error {
	op, err := s.svc.Databases.Delete(s.project, instance, database).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to delete database %q from instance %q: %v", database, instance, err)
	}
	return s.WaitForOperation(ctx, op.Name)
}
