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

// Package tasks implements the Cloud SQL pipeline tasks: instance and
// database lifecycle, data export and import, and query execution.
//
// A task validates its request body before any remote call, skips work
// that is already done (create on an existing resource, delete on an
// absent one), delegates the API calls to the admin hook and records
// console links for the run. Remote failures other than the 404s the
// existence checks absorb propagate unchanged.
package tasks

import (
	"context"
	"errors"

	sqladmin "google.golang.org/api/sqladmin/v1beta4"

	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/admin"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/pipeline"
)

// Admin is the slice of the Cloud SQL admin surface the tasks drive.
type Admin interface {
	Project() string
	InstanceExists(ctx context.Context, instance string) (bool, error)
	GetInstance(ctx context.Context, instance string) (*sqladmin.DatabaseInstance, error)
	CreateInstance(ctx context.Context, body *sqladmin.DatabaseInstance) error
	PatchInstance(ctx context.Context, instance string, body *sqladmin.DatabaseInstance) error
	DeleteInstance(ctx context.Context, instance string) error
	CloneInstance(ctx context.Context, instance, destination string, cloneContext map[string]interface{}) error
	DatabaseExists(ctx context.Context, instance, database string) (bool, error)
	CreateDatabase(ctx context.Context, instance string, body *sqladmin.Database) error
	PatchDatabase(ctx context.Context, instance, database string, body *sqladmin.Database) error
	DeleteDatabase(ctx context.Context, instance, database string) error
	ExportInstance(ctx context.Context, instance string, req *sqladmin.InstancesExportRequest) (string, error)
	ImportInstance(ctx context.Context, instance string, req *sqladmin.InstancesImportRequest) error
	GetOperation(ctx context.Context, name string) (*sqladmin.Operation, error)
	WaitForOperation(ctx context.Context, name string) error
}

// AdminFactory builds the admin hook for one task execution. The returned
// close function releases the hook once the task is done with it.
type AdminFactory func(ctx context.Context) (Admin, func() error, error)

// NewAdminFactory binds an AdminFactory to a hook config.
func NewAdminFactory(cfg admin.Config) AdminFactory {
	return func(ctx context.Context) (Admin, func() error, error) {
		svc, closeConn, err := admin.New(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return svc, closeConn, nil
	}
}

// Common carries the fields every Cloud SQL task shares: the target
// instance and the hook factory.
type Common struct {
	// Instance is the Cloud SQL instance ID, without the project ID.
	Instance string
	// Admin builds the hook; see NewAdminFactory.
	Admin AdminFactory
}

func (c *Common) validate() error {
	if c.Instance == "" {
		return errors.New("the required parameter 'instance' is empty")
	}
	if c.Admin == nil {
		return errors.New("the task has no admin factory")
	}
	return nil
}

func closeHook(tc *pipeline.TaskContext, closeConn func() error) {
	if err := closeConn(); err != nil {
		tc.Log.Error(err, "failed to close the admin hook")
	}
}
