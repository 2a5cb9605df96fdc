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

package worker

import (
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/pipeline"
)

// CommonRequest carries the fields every Cloud SQL activity shares. Project
// and ImpersonationChain override the worker-level hook config per call.
type CommonRequest struct {
	Project            string   `json:"project,omitempty"`
	Instance           string   `json:"instance"`
	ImpersonationChain []string `json:"impersonation_chain,omitempty"`
}

// TaskResult carries what a task recorded for the workflow: outputs keyed
// by name and the console links it persisted.
type TaskResult struct {
	Outputs map[string]interface{} `json:"outputs,omitempty"`
	Links   []pipeline.Link        `json:"links,omitempty"`
}

// CreateInstanceRequest is the input of Activities.CreateInstance.
type CreateInstanceRequest struct {
	CommonRequest
	Body               map[string]interface{} `json:"body"`
	SkipBodyValidation bool                   `json:"skip_body_validation,omitempty"`
}

// CreateInstanceResult reports the created (or already present) instance.
type CreateInstanceResult struct {
	ServiceAccountEmail string          `json:"service_account_email,omitempty"`
	Links               []pipeline.Link `json:"links,omitempty"`
}

// PatchInstanceRequest is the input of Activities.PatchInstance.
type PatchInstanceRequest struct {
	CommonRequest
	Body map[string]interface{} `json:"body"`
}

// DeleteInstanceRequest is the input of Activities.DeleteInstance.
type DeleteInstanceRequest struct {
	CommonRequest
}

// CloneInstanceRequest is the input of Activities.CloneInstance.
type CloneInstanceRequest struct {
	CommonRequest
	DestinationInstanceName string                 `json:"destination_instance_name"`
	CloneContext            map[string]interface{} `json:"clone_context,omitempty"`
}

// CreateDatabaseRequest is the input of Activities.CreateDatabase.
type CreateDatabaseRequest struct {
	CommonRequest
	Body               map[string]interface{} `json:"body"`
	SkipBodyValidation bool                   `json:"skip_body_validation,omitempty"`
}

// PatchDatabaseRequest is the input of Activities.PatchDatabase.
type PatchDatabaseRequest struct {
	CommonRequest
	Database           string                 `json:"database"`
	Body               map[string]interface{} `json:"body"`
	SkipBodyValidation bool                   `json:"skip_body_validation,omitempty"`
}

// DeleteDatabaseRequest is the input of Activities.DeleteDatabase.
type DeleteDatabaseRequest struct {
	CommonRequest
	Database string `json:"database"`
}

// TransferRequest is the shared input of the export and import activities.
// PollIntervalSeconds only matters to StartExport, where it paces the
// watcher.
type TransferRequest struct {
	CommonRequest
	Body                map[string]interface{} `json:"body"`
	SkipBodyValidation  bool                   `json:"skip_body_validation,omitempty"`
	PollIntervalSeconds int                    `json:"poll_interval_seconds,omitempty"`
}

// StartExportResult hands the deferred operation to the workflow so it can
// schedule WatchExport.
type StartExportResult struct {
	Pending pipeline.PendingOperation `json:"pending"`
	Links   []pipeline.Link           `json:"links,omitempty"`
}

// ResumeExportRequest is the input of Activities.ResumeExport: the terminal
// event the watcher delivered for the pending operation.
type ResumeExportRequest struct {
	CommonRequest
	Event pipeline.Event `json:"event"`
}

// ExecuteQueryRequest is the input of Activities.ExecuteQuery. Connection
// names an entry of the worker's connections file.
type ExecuteQueryRequest struct {
	Connection string        `json:"connection"`
	SQL        []string      `json:"sql"`
	Parameters []interface{} `json:"parameters,omitempty"`
	Autocommit bool          `json:"autocommit,omitempty"`
}

// PokeBigtableReplicationRequest is the input of
// Activities.PokeBigtableReplication.
type PokeBigtableReplicationRequest struct {
	Project  string `json:"project,omitempty"`
	Instance string `json:"instance"`
	Table    string `json:"table"`
}

// PokeResult reports one sensor poke. The workflow keeps polling until
// Ready is true.
type PokeResult struct {
	Ready bool            `json:"ready"`
	Links []pipeline.Link `json:"links,omitempty"`
}
