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

package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	sqladmin "google.golang.org/api/sqladmin/v1beta4"
	"k8s.io/klog/v2"
)

// OperationDone is the terminal status of a Cloud SQL operation.
const OperationDone = "DONE"

// Test hook for the poll pause.
var operationSleep = gax.Sleep

// GetOperation fetches the current state of an operation by name.
func (s *Service) GetOperation(ctx context.Context, name string) (*sqladmin.Operation, error) {
	return s.svc.Operations.Get(s.project, name).Context(ctx).Do()
}

// WaitForOperation polls an operation until it is DONE and returns the
// operation's error payload, if any. The poll cadence backs off from one
// second to twenty.
func (s *Service) WaitForOperation(ctx context.Context, name string) error {
	bo := gax.Backoff{
		Initial:    time.Second,
		Max:        20 * time.Second,
		Multiplier: 1.5,
	}
	for {
		op, err := s.GetOperation(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to poll operation %q: %v", name, err)
		}
		if op.Status == OperationDone {
			return OperationError(op)
		}
		klog.V(1).InfoS("operation still running", "operation", name, "status", op.Status)
		if err := operationSleep(ctx, bo.Pause()); err != nil {
			return err
		}
	}
}

// OperationError extracts the error payload of a terminal operation as one
// error, or nil when the operation succeeded.
func OperationError(op *sqladmin.Operation) error {
	if op.Error == nil || len(op.Error.Errors) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(op.Error.Errors))
	for _, e := range op.Error.Errors {
		if e.Message != "" {
			msgs = append(msgs, e.Message)
			continue
		}
		msgs = append(msgs, e.Code)
	}
	return fmt.Errorf("operation %q failed: %s", op.Name, strings.Join(msgs, "; "))
}
