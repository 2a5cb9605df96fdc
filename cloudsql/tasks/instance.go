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

// ServiceAccountEmailKey is the output key under which InstanceCreateTask
// records the instance's service account.
const ServiceAccountEmailKey = "service_account_email"

// InstanceCreateTask creates a Cloud SQL instance. Creating an instance
// that already exists is a no-op success, so reruns are safe.
type InstanceCreateTask struct {
	Common
	// Body is the instances.insert request document.
	Body map[string]interface{}
	// SkipBodyValidation turns off the schema check on Body.
	SkipBodyValidation bool
}

// Execute implements pipeline.Task. It records the instance's service
// account email under ServiceAccountEmailKey for downstream tasks.
func (t *InstanceCreateTask) Execute(ctx context.Context, tc *pipeline.TaskContext) error {
	if err := t.validate(); err != nil {
		return err
	}
	if len(t.Body) == 0 {
		return errors.New("the required parameter 'body' is empty")
	}
	if !t.SkipBodyValidation {
		if err := validation.Validate(t.Body, createInstanceValidation); err != nil {
			return err
		}
	}

	hook, closeConn, err := t.Admin(ctx)
	if err != nil {
		return err
	}
	defer closeHook(tc, closeConn)

	exists, err := hook.InstanceExists(ctx, t.Instance)
	if err != nil {
		return err
	}
	if exists {
		tc.Log.Info("Cloud SQL instance already exists. Aborting create.", "instance", t.Instance)
	} else {
		body := &sqladmin.DatabaseInstance{}
		if err := admin.DecodeBody(t.Body, body); err != nil {
			return err
		}
		if err := hook.CreateInstance(ctx, body); err != nil {
			return err
		}
	}
	tc.Links.Persist(pipeline.InstanceLink(hook.Project(), t.Instance))

	inst, err := hook.GetInstance(ctx, t.Instance)
	if err != nil {
		return err
	}
	tc.Outputs.Record(ServiceAccountEmailKey, inst.ServiceAccountEmailAddress)
	return nil
}

// InstancePatchTask applies a partial settings update to an existing
// instance. Only the fields present in Body change.
type InstancePatchTask struct {
	Common
	// Body is the instances.patch request document.
	Body map[string]interface{}
}

// Execute implements pipeline.Task.
func (t *InstancePatchTask) Execute(ctx context.Context, tc *pipeline.TaskContext) error {
	if err := t.validate(); err != nil {
		return err
	}
	if len(t.Body) == 0 {
		return errors.New("the required parameter 'body' is empty")
	}

	hook, closeConn, err := t.Admin(ctx)
	if err != nil {
		return err
	}
	defer closeHook(tc, closeConn)

	exists, err := hook.InstanceExists(ctx, t.Instance)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("Cloud SQL instance with ID %s does not exist. Please specify another instance to patch.", t.Instance)
	}
	tc.Links.Persist(pipeline.InstanceLink(hook.Project(), t.Instance))

	body := &sqladmin.DatabaseInstance{}
	if err := admin.DecodeBody(t.Body, body); err != nil {
		return err
	}
	return hook.PatchInstance(ctx, t.Instance, body)
}

// InstanceDeleteTask deletes an instance. Deleting an absent instance is a
// no-op success.
type InstanceDeleteTask struct {
	Common
}

// Execute implements pipeline.Task.
func (t *InstanceDeleteTask) Execute(ctx context.Context, tc *pipeline.TaskContext) error {
	if err := t.validate(); err != nil {
		return err
	}

	hook, closeConn, err := t.Admin(ctx)
	if err != nil {
		return err
	}
	defer closeHook(tc, closeConn)

	exists, err := hook.InstanceExists(ctx, t.Instance)
	if err != nil {
		return err
	}
	if !exists {
		tc.Log.Info("Cloud SQL instance does not exist. Aborting delete.", "instance", t.Instance)
		return nil
	}
	return hook.DeleteInstance(ctx, t.Instance)
}

// InstanceCloneTask clones an instance into a new one. The source must
// exist; the clone call itself rejects an existing destination.
type InstanceCloneTask struct {
	Common
	// DestinationInstanceName is the instance ID the clone creates.
	DestinationInstanceName string
	// CloneContext carries optional sql#cloneContext settings such as
	// binary log coordinates or a point in time. Kind and destination are
	// filled in by the hook.
	CloneContext map[string]interface{}
}

// Execute implements pipeline.Task.
func (t *InstanceCloneTask) Execute(ctx context.Context, tc *pipeline.TaskContext) error {
	if err := t.validate(); err != nil {
		return err
	}
	if t.DestinationInstanceName == "" {
		return errors.New("the required parameter 'destination_instance_name' is empty")
	}

	hook, closeConn, err := t.Admin(ctx)
	if err != nil {
		return err
	}
	defer closeHook(tc, closeConn)

	exists, err := hook.InstanceExists(ctx, t.Instance)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("Cloud SQL instance with ID %s does not exist. Please specify another instance to clone.", t.Instance)
	}
	return hook.CloneInstance(ctx, t.Instance, t.DestinationInstanceName, t.CloneContext)
}
