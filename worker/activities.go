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

// Package worker exposes the pipeline tasks and sensors as Temporal
// activities. Each activity builds a TaskContext from the activity's own
// identity, runs one task, and returns the outputs and links the task
// recorded so the workflow can pass them on.
package worker

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	btadmin "github.com/GoogleCloudPlatform/cloud-pipeline-tasks/bigtable/pkg/admin"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/bigtable/sensors"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/admin"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/conn"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/trigger"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/tasks"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/pipeline"
)

// watchHeartbeatInterval paces WatchExport heartbeats so the host notices
// a dead worker well before the operation finishes.
const watchHeartbeatInterval = 10 * time.Second

// Swapped by tests.
var (
	newAdminFactory  = tasks.NewAdminFactory
	newSensorFactory = sensors.NewAdminFactory
)

// Activities bundles the Cloud SQL tasks and the Bigtable sensor behind
// Temporal activity methods. Register the whole struct on a worker; the
// activity type names are the method names.
type Activities struct {
	// AdminConfig seeds the Cloud SQL hook. Requests override Project and
	// ImpersonationChain per call.
	AdminConfig admin.Config
	// BigtableConfig seeds the Bigtable hook the same way.
	BigtableConfig btadmin.Config
	// Registry resolves ExecuteQuery connection names.
	Registry *conn.Registry
}

// taskContext adapts the activity identity and logger to the pipeline
// contract. Outputs and links land in memory recorders the activity reads
// back into its result.
func taskContext(ctx context.Context) (*pipeline.TaskContext, *pipeline.MemoryOutputs, *pipeline.MemoryLinks) {
	info := activity.GetInfo(ctx)
	outputs := &pipeline.MemoryOutputs{}
	links := &pipeline.MemoryLinks{}
	return &pipeline.TaskContext{
		TaskID:  info.ActivityType.Name,
		RunID:   info.WorkflowExecution.ID,
		Log:     newTemporalLogger(activity.GetLogger(ctx)),
		Outputs: outputs,
		Links:   links,
	}, outputs, links
}

func (a *Activities) adminConfig(project string, chain []string) admin.Config {
	cfg := a.AdminConfig
	if project != "" {
		cfg.Project = project
	}
	if len(chain) > 0 {
		cfg.ImpersonationChain = chain
	}
	return cfg
}

func (a *Activities) common(req CommonRequest) tasks.Common {
	return tasks.Common{
		Instance: req.Instance,
		Admin:    newAdminFactory(a.adminConfig(req.Project, req.ImpersonationChain)),
	}
}

func newTaskResult(outputs *pipeline.MemoryOutputs, links *pipeline.MemoryLinks) *TaskResult {
	return &TaskResult{Outputs: outputs.Values(), Links: links.Links()}
}

// CreateInstance creates a Cloud SQL instance and reports its service
// account email. An instance that already exists is left alone.
func (a *Activities) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*CreateInstanceResult, error) {
	tc, outputs, links := taskContext(ctx)
	task := &tasks.InstanceCreateTask{
		Common:             a.common(req.CommonRequest),
		Body:               req.Body,
		SkipBodyValidation: req.SkipBodyValidation,
	}
	if err := task.Execute(ctx, tc); err != nil {
		return nil, err
	}
	res := &CreateInstanceResult{Links: links.Links()}
	if v, ok := outputs.Value(tasks.ServiceAccountEmailKey); ok {
		res.ServiceAccountEmail, _ = v.(string)
	}
	return res, nil
}

// PatchInstance applies a partial settings update to an existing instance.
func (a *Activities) PatchInstance(ctx context.Context, req PatchInstanceRequest) (*TaskResult, error) {
	tc, outputs, links := taskContext(ctx)
	task := &tasks.InstancePatchTask{
		Common: a.common(req.CommonRequest),
		Body:   req.Body,
	}
	if err := task.Execute(ctx, tc); err != nil {
		return nil, err
	}
	return newTaskResult(outputs, links), nil
}

// DeleteInstance deletes an instance. A missing instance is not an error.
func (a *Activities) DeleteInstance(ctx context.Context, req DeleteInstanceRequest) (*TaskResult, error) {
	tc, outputs, links := taskContext(ctx)
	task := &tasks.InstanceDeleteTask{Common: a.common(req.CommonRequest)}
	if err := task.Execute(ctx, tc); err != nil {
		return nil, err
	}
	return newTaskResult(outputs, links), nil
}

// CloneInstance clones an instance into DestinationInstanceName.
func (a *Activities) CloneInstance(ctx context.Context, req CloneInstanceRequest) (*TaskResult, error) {
	tc, outputs, links := taskContext(ctx)
	task := &tasks.InstanceCloneTask{
		Common:                  a.common(req.CommonRequest),
		DestinationInstanceName: req.DestinationInstanceName,
		CloneContext:            req.CloneContext,
	}
	if err := task.Execute(ctx, tc); err != nil {
		return nil, err
	}
	return newTaskResult(outputs, links), nil
}

// CreateDatabase creates a database inside an instance.
func (a *Activities) CreateDatabase(ctx context.Context, req CreateDatabaseRequest) (*TaskResult, error) {
	tc, outputs, links := taskContext(ctx)
	task := &tasks.DatabaseCreateTask{
		Common:             a.common(req.CommonRequest),
		Body:               req.Body,
		SkipBodyValidation: req.SkipBodyValidation,
	}
	if err := task.Execute(ctx, tc); err != nil {
		return nil, err
	}
	return newTaskResult(outputs, links), nil
}

// PatchDatabase patches a database inside an instance.
func (a *Activities) PatchDatabase(ctx context.Context, req PatchDatabaseRequest) (*TaskResult, error) {
	tc, outputs, links := taskContext(ctx)
	task := &tasks.DatabasePatchTask{
		Common:             a.common(req.CommonRequest),
		Database:           req.Database,
		Body:               req.Body,
		SkipBodyValidation: req.SkipBodyValidation,
	}
	if err := task.Execute(ctx, tc); err != nil {
		return nil, err
	}
	return newTaskResult(outputs, links), nil
}

// DeleteDatabase deletes a database. A missing database is not an error.
func (a *Activities) DeleteDatabase(ctx context.Context, req DeleteDatabaseRequest) (*TaskResult, error) {
	tc, outputs, links := taskContext(ctx)
	task := &tasks.DatabaseDeleteTask{
		Common:   a.common(req.CommonRequest),
		Database: req.Database,
	}
	if err := task.Execute(ctx, tc); err != nil {
		return nil, err
	}
	return newTaskResult(outputs, links), nil
}

// ExportData exports instance data to Cloud Storage and blocks until the
// operation finishes. Prefer StartExport/WatchExport/ResumeExport for
// exports long enough to outlive an activity slot.
func (a *Activities) ExportData(ctx context.Context, req TransferRequest) (*TaskResult, error) {
	tc, outputs, links := taskContext(ctx)
	task := &tasks.ExportTask{
		Common:             a.common(req.CommonRequest),
		Body:               req.Body,
		SkipBodyValidation: req.SkipBodyValidation,
	}
	if err := task.Execute(ctx, tc); err != nil {
		return nil, err
	}
	return newTaskResult(outputs, links), nil
}

// ImportData imports a Cloud Storage dump into an instance and blocks
// until the operation finishes.
func (a *Activities) ImportData(ctx context.Context, req TransferRequest) (*TaskResult, error) {
	tc, outputs, links := taskContext(ctx)
	task := &tasks.ImportTask{
		Common:             a.common(req.CommonRequest),
		Body:               req.Body,
		SkipBodyValidation: req.SkipBodyValidation,
	}
	if err := task.Execute(ctx, tc); err != nil {
		return nil, err
	}
	return newTaskResult(outputs, links), nil
}

// StartExport kicks off an export and returns without waiting for it. The
// workflow passes the pending operation to WatchExport and the resulting
// event to ResumeExport.
func (a *Activities) StartExport(ctx context.Context, req TransferRequest) (*StartExportResult, error) {
	tc, _, links := taskContext(ctx)
	task := &tasks.ExportTask{
		Common:             a.common(req.CommonRequest),
		Body:               req.Body,
		SkipBodyValidation: req.SkipBodyValidation,
		PollInterval:       time.Duration(req.PollIntervalSeconds) * time.Second,
	}
	pending, err := task.Start(ctx, tc)
	if err != nil {
		return nil, err
	}
	return &StartExportResult{Pending: *pending, Links: links.Links()}, nil
}

// WatchExport polls a pending operation until it reaches a terminal state,
// heartbeating along the way. Operation failure is carried in the returned
// event; an error return means the watch itself could not proceed and the
// activity may be retried without losing the outcome.
func (a *Activities) WatchExport(ctx context.Context, pending pipeline.PendingOperation) (*pipeline.Event, error) {
	hook, closeConn, err := newAdminFactory(a.adminConfig(pending.Project, nil))(ctx)
	if err != nil {
		return nil, err
	}
	logger := activity.GetLogger(ctx)
	defer func() {
		if err := closeConn(); err != nil {
			logger.Error("failed to close the admin hook", "error", err)
		}
	}()

	watcher := &trigger.Watcher{Admin: hook, PollInterval: pending.PollInterval}
	type outcome struct {
		ev  pipeline.Event
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		ev, err := watcher.Watch(ctx, pending.OperationName)
		done <- outcome{ev: ev, err: err}
	}()

	beat := time.NewTicker(watchHeartbeatInterval)
	defer beat.Stop()
	for {
		select {
		case o := <-done:
			if o.err != nil {
				return nil, o.err
			}
			return &o.ev, nil
		case <-beat.C:
			activity.RecordHeartbeat(ctx, pending.OperationName)
		}
	}
}

// ResumeExport finishes a deferred export: it turns a failure event into an
// activity error and lets a success event complete the workflow step.
func (a *Activities) ResumeExport(ctx context.Context, req ResumeExportRequest) (*TaskResult, error) {
	tc, outputs, links := taskContext(ctx)
	task := &tasks.ExportTask{Common: a.common(req.CommonRequest)}
	if err := task.Resume(ctx, tc, req.Event); err != nil {
		return nil, err
	}
	return newTaskResult(outputs, links), nil
}

// ExecuteQuery runs SQL statements over a named connection from the
// worker's connections file.
func (a *Activities) ExecuteQuery(ctx context.Context, req ExecuteQueryRequest) (*TaskResult, error) {
	tc, outputs, links := taskContext(ctx)
	task := &tasks.QueryTask{
		Conn:       req.Connection,
		Registry:   a.Registry,
		SQL:        req.SQL,
		Parameters: req.Parameters,
		Autocommit: req.Autocommit,
	}
	if err := task.Execute(ctx, tc); err != nil {
		return nil, err
	}
	return newTaskResult(outputs, links), nil
}

// PokeBigtableReplication checks once whether a Bigtable table is fully
// replicated. The workflow schedules the next poke while Ready is false.
func (a *Activities) PokeBigtableReplication(ctx context.Context, req PokeBigtableReplicationRequest) (*PokeResult, error) {
	tc, _, links := taskContext(ctx)
	cfg := a.BigtableConfig
	if req.Project != "" {
		cfg.Project = req.Project
	}
	sensor := &sensors.TableReplicationSensor{
		Instance: req.Instance,
		Table:    req.Table,
		Admin:    newSensorFactory(cfg),
	}
	ready, err := sensor.Poke(ctx, tc)
	if err != nil {
		return nil, err
	}
	return &PokeResult{Ready: ready, Links: links.Links()}, nil
}
