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

package tasks

import (
	"context"
	"errors"
	"fmt"

	sqladmin "google.golang.org/api/sqladmin/v1beta4"

	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/admin"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/pipeline"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/validation"
)

// DatabaseCreateTask creates a database inside an instance. Creating a
// database that already exists is a no-op success.
type DatabaseCreateTask struct {
	Common
	// Body is the databases.insert request document.
	Body map[string]interface{}
	// SkipBodyValidation turns off the schema check on Body.
	SkipBodyValidation bool
}

// Execute implements pipeline.Task.
func (t *DatabaseCreateTask) Execute(ctx context.Context, tc *pipeline.TaskContext) error {
	if err := t.validate(); err != nil {
		return err
	}
	if len(t.Body) == 0 {
		return errors.New("the required parameter 'body' is empty")
	}
	if !t.SkipBodyValidation {
		if err := validation.Validate(t.Body, databaseCreateValidation); err != nil {
			return err
		}
	}

	database, _ := t.Body["name"].(string)
	if database == "" {
		tc.Log.Error(nil, "Body doesn't contain 'name'. Cannot check if the database already exists.", "instance", t.Instance)
		return nil
	}

	hook, closeConn, err := t.Admin(ctx)
	if err != nil {
		return err
	}
	defer closeHook(tc, closeConn)

	tc.Links.Persist(pipeline.DatabaseLink(hook.Project(), t.Instance, database))

	exists, err := hook.DatabaseExists(ctx, t.Instance, database)
	if err != nil {
		return err
	}
	if exists {
		tc.Log.Info("Cloud SQL instance already contains the database. Aborting database insert.",
			"instance", t.Instance, "database", database)
		return nil
	}

	body := &sqladmin.Database{}
	if err := admin.DecodeBody(t.Body, body); err != nil {
		return err
	}
	return hook.CreateDatabase(ctx, t.Instance, body)
}

// DatabasePatchTask updates a database resource with patch semantics. The
// database must exist.
type DatabasePatchTask struct {
	Common
	// Database is the name of the database to patch.
	Database string
	// Body is the databases.patch request document.
	Body map[string]interface{}
	// SkipBodyValidation turns off the schema check on Body.
	SkipBodyValidation bool
}

// Execute implements pipeline.Task.
func (t *DatabasePatchTask) Execute(ctx context.Context, tc *pipeline.TaskContext) error {
	if err := t.validate(); err != nil {
		return err
	}
	if t.Database == "" {
		return errors.New("the required parameter 'database' is empty")
	}
	if len(t.Body) == 0 {
		return errors.New("the required parameter 'body' is empty")
	}
	if !t.SkipBodyValidation {
		if err := validation.Validate(t.Body, databasePatchValidation); err != nil {
			return err
		}
	}

	hook, closeConn, err := t.Admin(ctx)
	if err != nil {
		return err
	}
	defer closeHook(tc, closeConn)

	exists, err := hook.DatabaseExists(ctx, t.Instance, t.Database)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("Cloud SQL instance with ID %s does not contain database '%s'. Please specify another database to patch.", t.Instance, t.Database)
	}
	tc.Links.Persist(pipeline.DatabaseLink(hook.Project(), t.Instance, t.Database))

	body := &sqladmin.Database{}
	if err := admin.DecodeBody(t.Body, body); err != nil {
		return err
	}
	return hook.PatchDatabase(ctx, t.Instance, t.Database, body)
}

// DatabaseDeleteTask deletes a database from an instance. Deleting an
// absent database is a no-op success.
type DatabaseDeleteTask struct {
	Common
	// Database is the name of the database to delete.
	Database string
}

// Execute implements pipeline.Task.
func (t *DatabaseDeleteTask) Execute(ctx context.Context, tc *pipeline.TaskContext) error {
	if err := t.validate(); err != nil {
		return err
	}
	if t.Database == "" {
		return errors.New("the required parameter 'database' is empty")
	}

	hook, closeConn, err := t.Admin(ctx)
	if err != nil {
		return err
	}
	defer closeHook(tc, closeConn)

	exists, err := hook.DatabaseExists(ctx, t.Instance, t.Database)
	if err != nil {
		return err
	}
	if !exists {
		tc.Log.Info("Cloud SQL instance does not contain the database. Aborting database delete.",
			"instance", t.Instance, "database", t.Database)
		return nil
	}
	return hook.DeleteDatabase(ctx, t.Instance, t.Database)
}
