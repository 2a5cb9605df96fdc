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
	"time"

	sqladmin "google.golang.org/api/sqladmin/v1beta4"

	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/admin"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/pipeline"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/validation"
)

const defaultExportPollInterval = 10 * time.Second

// ExportTask exports data from an instance to a Cloud Storage bucket as a
// SQL dump or CSV file. Re-running an export with the same URI overwrites
// the file, so the task is idempotent.
//
// Execute blocks until the export operation finishes. Hosts that can park
// a task while an external watcher polls use Start and Resume instead:
// Start returns the pending operation without waiting, and Resume turns
// the watcher's terminal event into the task outcome.
type ExportTask struct {
	Common
	// Body is the instances.export request document.
	Body map[string]interface{}
	// SkipBodyValidation turns off the schema check on Body.
	SkipBodyValidation bool
	// PollInterval paces the watcher between operation polls.
	PollInterval time.Duration
}

var (
	_ pipeline.Task       = &ExportTask{}
	_ pipeline.Deferrable = &ExportTask{}
)

// start validates, records links and fires the export call. On success
// the caller owns closeConn.
func (t *ExportTask) start(ctx context.Context, tc *pipeline.TaskContext) (Admin, func() error, string, error) {
	if err := t.validate(); err != nil {
		return nil, nil, "", err
	}
	if len(t.Body) == 0 {
		return nil, nil, "", errors.New("the required parameter 'body' is empty")
	}
	if !t.SkipBodyValidation {
		if err := validation.Validate(t.Body, exportValidation); err != nil {
			return nil, nil, "", err
		}
	}
	req := &sqladmin.InstancesExportRequest{}
	if err := admin.DecodeBody(t.Body, req); err != nil {
		return nil, nil, "", err
	}

	hook, closeConn, err := t.Admin(ctx)
	if err != nil {
		return nil, nil, "", err
	}
	tc.Links.Persist(pipeline.InstanceLink(hook.Project(), t.Instance))
	if req.ExportContext != nil && req.ExportContext.Uri != "" {
		tc.Links.Persist(pipeline.FileLink(hook.Project(), req.ExportContext.Uri))
	}

	operationName, err := hook.ExportInstance(ctx, t.Instance, req)
	if err != nil {
		closeHook(tc, closeConn)
		return nil, nil, "", err
	}
	return hook, closeConn, operationName, nil
}

// Execute implements pipeline.Task: the synchronous path.
func (t *ExportTask) Execute(ctx context.Context, tc *pipeline.TaskContext) error {
	hook, closeConn, operationName, err := t.start(ctx, tc)
	if err != nil {
		return err
	}
	defer closeHook(tc, closeConn)
	return hook.WaitForOperation(ctx, operationName)
}

// Start implements pipeline.Deferrable: fire the export and hand the
// operation to the host's watcher.
func (t *ExportTask) Start(ctx context.Context, tc *pipeline.TaskContext) (*pipeline.PendingOperation, error) {
	hook, closeConn, operationName, err := t.start(ctx, tc)
	if err != nil {
		return nil, err
	}
	defer closeHook(tc, closeConn)

	interval := t.PollInterval
	if interval <= 0 {
		interval = defaultExportPollInterval
	}
	return &pipeline.PendingOperation{
		Project:       hook.Project(),
		OperationName: operationName,
		PollInterval:  interval,
	}, nil
}

// Resume implements pipeline.Deferrable: the watcher's terminal event
// decides the task outcome.
func (t *ExportTask) Resume(ctx context.Context, tc *pipeline.TaskContext, ev pipeline.Event) error {
	if ev.Status == pipeline.StatusSuccess {
		tc.Log.Info("operation completed successfully", "operation", ev.OperationName)
		return nil
	}
	return fmt.Errorf("export of instance %s failed: %s", t.Instance, ev.Message)
}

// ImportTask imports a SQL dump or CSV file from Cloud Storage into an
// instance.
//
// A CSV import is not idempotent: importing the same file twice duplicates
// the rows. A SQL dump produced by a Cloud SQL export drops tables before
// recreating them, so re-importing one is safe; dumps produced elsewhere
// must guarantee that on the SQL level themselves.
type ImportTask struct {
	Common
	// Body is the instances.import request document.
	Body map[string]interface{}
	// SkipBodyValidation turns off the schema check on Body.
	SkipBodyValidation bool
}

// Execute implements pipeline.Task.
func (t *ImportTask) Execute(ctx context.Context, tc *pipeline.TaskContext) error {
	if err := t.validate(); err != nil {
		return err
	}
	if len(t.Body) == 0 {
		return errors.New("the required parameter 'body' is empty")
	}
	if !t.SkipBodyValidation {
		if err := validation.Validate(t.Body, importValidation); err != nil {
			return err
		}
	}
	req := &sqladmin.InstancesImportRequest{}
	if err := admin.DecodeBody(t.Body, req); err != nil {
		return err
	}

	hook, closeConn, err := t.Admin(ctx)
	if err != nil {
		return err
	}
	defer closeHook(tc, closeConn)

	tc.Links.Persist(pipeline.InstanceLink(hook.Project(), t.Instance))
	if req.ImportContext != nil && req.ImportContext.Uri != "" {
		tc.Links.Persist(pipeline.FileLink(hook.Project(), req.ImportContext.Uri))
	}
	return hook.ImportInstance(ctx, t.Instance, req)
}
