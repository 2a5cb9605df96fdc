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

// Package sensors implements the Bigtable pipeline sensors.
//
// A sensor reports readiness instead of performing work: the host polls
// Poke until it returns true. A missing instance or table reads as "not
// ready yet" rather than an error, so a pipeline can provision them
// concurrently with the wait.
package sensors

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/bigtable/pkg/admin"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/pipeline"
)

// Admin is the slice of the Bigtable admin surface the sensors poll.
type Admin interface {
	Project() string
	InstanceExists(ctx context.Context, instance string) (bool, error)
	ClusterStates(ctx context.Context, instance, table string) (map[string]admin.ReplicationState, error)
}

// AdminFactory builds the admin hook for one poke. The returned close
// function releases the hook once the poke is done with it.
type AdminFactory func(ctx context.Context) (Admin, func() error, error)

// NewAdminFactory binds an AdminFactory to a hook config.
func NewAdminFactory(cfg admin.Config) AdminFactory {
	return func(ctx context.Context) (Admin, func() error, error) {
		c, err := admin.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	}
}

// TableReplicationSensor waits for a Bigtable table to be fully replicated
// to every cluster of its instance.
type TableReplicationSensor struct {
	// Instance is the Bigtable instance ID, without the project ID.
	Instance string
	// Table is the table ID whose replication is awaited.
	Table string
	// Admin builds the hook; see NewAdminFactory.
	Admin AdminFactory

	linkPersisted bool
}

func (s *TableReplicationSensor) validate() error {
	if s.Instance == "" {
		return errors.New("the required parameter 'instance_id' is empty")
	}
	if s.Table == "" {
		return errors.New("the required parameter 'table_id' is empty")
	}
	if s.Admin == nil {
		return errors.New("the sensor has no admin factory")
	}
	return nil
}

// Poke reports whether the table is replicated on every cluster of the
// instance. Absent dependencies read as false; every lagging cluster is
// logged before the poke yields.
func (s *TableReplicationSensor) Poke(ctx context.Context, tc *pipeline.TaskContext) (bool, error) {
	if err := s.validate(); err != nil {
		return false, err
	}
	hook, closeConn, err := s.Admin(ctx)
	if err != nil {
		return false, err
	}
	defer closeHook(tc, closeConn)

	exists, err := hook.InstanceExists(ctx, s.Instance)
	if err != nil {
		return false, err
	}
	if !exists {
		tc.Log.Info(fmt.Sprintf("Dependency: instance '%s' does not exist.", s.Instance))
		return false, nil
	}

	states, err := hook.ClusterStates(ctx, s.Instance, s.Table)
	if errors.Is(err, admin.ErrTableNotFound) {
		tc.Log.Info(fmt.Sprintf("Dependency: table '%s' does not exist in instance '%s'.", s.Table, s.Instance))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	replicated := true
	for _, cluster := range sortedClusters(states) {
		if states[cluster] != admin.StateReady {
			tc.Log.Info(fmt.Sprintf("Table '%s' is not yet replicated on cluster '%s'.", s.Table, cluster))
			replicated = false
		}
	}
	if !replicated {
		return false, nil
	}

	tc.Log.Info(fmt.Sprintf("Table '%s' is replicated.", s.Table))
	if !s.linkPersisted {
		tc.Links.Persist(pipeline.BigtableTablesLink(hook.Project(), s.Instance))
		s.linkPersisted = true
	}
	return true, nil
}

func sortedClusters(states map[string]admin.ReplicationState) []string {
	clusters := make([]string, 0, len(states))
	for cluster := range states {
		clusters = append(clusters, cluster)
	}
	sort.Strings(clusters)
	return clusters
}

func closeHook(tc *pipeline.TaskContext, closeConn func() error) {
	if err := closeConn(); err != nil {
		tc.Log.Error(err, "failed to close the admin hook")
	}
}
