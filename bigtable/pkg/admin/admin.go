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

// Package admin wraps the slice of the Cloud Bigtable admin API the
// replication sensor polls: instance existence and the per-cluster
// replication state of a table.
package admin

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/compute/metadata"
	"golang.org/x/oauth2/google"
	btapb "google.golang.org/genproto/googleapis/bigtable/admin/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/oauth"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

const (
	adminEndpoint      = "bigtableadmin.googleapis.com:443"
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
)

// ErrTableNotFound reports that the polled table does not exist in the
// instance.
var ErrTableNotFound = errors.New("table not found")

// ReplicationState is the replication state of a table on one cluster.
type ReplicationState int32

const (
	StateNotKnown             ReplicationState = ReplicationState(btapb.Table_ClusterState_STATE_NOT_KNOWN)
	StateInitializing                          = ReplicationState(btapb.Table_ClusterState_INITIALIZING)
	StatePlannedMaintenance                    = ReplicationState(btapb.Table_ClusterState_PLANNED_MAINTENANCE)
	StateUnplannedMaintenance                  = ReplicationState(btapb.Table_ClusterState_UNPLANNED_MAINTENANCE)
	StateReady                                 = ReplicationState(btapb.Table_ClusterState_READY)
	StateReadyOptimizing                       = ReplicationState(btapb.Table_ClusterState_READY_OPTIMIZING)
)

func (s ReplicationState) String() string {
	return btapb.Table_ClusterState_ReplicationState(s).String()
}

// Config controls hook construction.
type Config struct {
	// Project the hook operates in. Empty resolves to the GCE metadata
	// project when running on GCE.
	Project string
	// Endpoint overrides the admin API endpoint.
	Endpoint string
	// Insecure dials without TLS or credentials. Used by tests.
	Insecure bool
}

// Client issues Bigtable admin calls for one project.
type Client struct {
	conn      *grpc.ClientConn
	instances btapb.BigtableInstanceAdminClient
	tables    btapb.BigtableTableAdminClient
	project   string
}

// NewClient dials the Bigtable admin endpoint. The caller owns Close.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	project, err := resolveProject(cfg.Project)
	if err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = adminEndpoint
	}

	var opts []grpc.DialOption
	if cfg.Insecure {
		opts = append(opts, grpc.WithInsecure())
	} else {
		ts, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve credentials for the Bigtable admin client: %v", err)
		}
		opts = append(opts,
			grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, "")),
			grpc.WithPerRPCCredentials(oauth.TokenSource{TokenSource: ts}),
		)
	}

	conn, err := grpc.DialContext(ctx, endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %v", endpoint, err)
	}
	return &Client{
		conn:      conn,
		instances: btapb.NewBigtableInstanceAdminClient(conn),
		tables:    btapb.NewBigtableTableAdminClient(conn),
		project:   project,
	}, nil
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

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Project returns the project the hook was bound to.
func (c *Client) Project() string {
	return c.project
}

func (c *Client) instancePath(instance string) string {
	return fmt.Sprintf("projects/%s/instances/%s", c.project, instance)
}

func (c *Client) tablePath(instance, table string) string {
	return fmt.Sprintf("%s/tables/%s", c.instancePath(instance), table)
}

// InstanceExists maps a NotFound on the instance get to false. Any other
// failure propagates unchanged.
func (c *Client) InstanceExists(ctx context.Context, instance string) (bool, error) {
	req := &btapb.GetInstanceRequest{Name: c.instancePath(instance)}
	if _, err := c.instances.GetInstance(ctx, req); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ClusterStates returns the replication state of the table on every cluster
// serving it. A missing table maps to ErrTableNotFound.
func (c *Client) ClusterStates(ctx context.Context, instance, table string) (map[string]ReplicationState, error) {
	req := &btapb.GetTableRequest{
		Name: c.tablePath(instance, table),
		View: btapb.Table_REPLICATION_VIEW,
	}
	res, err := c.tables.GetTable(ctx, req)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrTableNotFound
		}
		return nil, err
	}
	states := make(map[string]ReplicationState, len(res.ClusterStates))
	for cluster, cs := range res.ClusterStates {
		states[cluster] = ReplicationState(cs.ReplicationState)
	}
	return states, nil
}

// IsNotFound returns true if given error is a NotFound gRPC status.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if s, ok := status.FromError(err); ok {
		return s.Code() == codes.NotFound
	}
	return false
}
