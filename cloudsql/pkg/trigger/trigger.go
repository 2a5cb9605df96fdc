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

// Package trigger watches deferred Cloud SQL operations and turns their
// outcome into pipeline events.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2"
	sqladmin "google.golang.org/api/sqladmin/v1beta4"
	"k8s.io/klog/v2"

	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/admin"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/pipeline"
)

const defaultPollInterval = 10 * time.Second

// Test hook.
var watchSleep = gax.Sleep

// OperationGetter fetches the state of one admin operation.
type OperationGetter interface {
	GetOperation(ctx context.Context, name string) (*sqladmin.Operation, error)
}

// Watcher polls an operation until it finishes. A finished operation
// always yields an event: failures of the operation itself are carried in
// the event, only transport problems and cancellation surface as errors,
// so callers can retry the watch without losing the outcome.
type Watcher struct {
	Admin OperationGetter
	// PollInterval caps the pause between polls.
	PollInterval time.Duration
}

// Watch blocks until the named operation finishes or ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, operationName string) (pipeline.Event, error) {
	watchID := fmt.Sprintf("Watch_%s", uuid.New())
	interval := w.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	bo := gax.Backoff{
		Initial:    time.Second,
		Max:        interval,
		Multiplier: 1.5,
	}
	klog.InfoS("watching operation", "watchID", watchID, "operation", operationName, "pollInterval", interval)

	for {
		op, err := w.Admin.GetOperation(ctx, operationName)
		if err != nil {
			return pipeline.Event{}, fmt.Errorf("failed to fetch operation %q: %v", operationName, err)
		}
		if op.Status == admin.OperationDone {
			if opErr := admin.OperationError(op); opErr != nil {
				klog.InfoS("operation failed", "watchID", watchID, "operation", operationName, "err", opErr)
				return pipeline.Event{
					Status:        pipeline.StatusFailure,
					OperationName: operationName,
					Message:       opErr.Error(),
				}, nil
			}
			klog.InfoS("operation finished", "watchID", watchID, "operation", operationName)
			return pipeline.Event{
				Status:        pipeline.StatusSuccess,
				OperationName: operationName,
			}, nil
		}
		klog.V(1).InfoS("operation still running", "watchID", watchID, "operation", operationName, "status", op.Status)
		if err := watchSleep(ctx, bo.Pause()); err != nil {
			return pipeline.Event{}, err
		}
	}
}
