package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	btapb "google.golang.org/genproto/googleapis/bigtable/admin/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type mockInstanceAdmin struct {
	btapb.BigtableInstanceAdminClient

	getInstanceReq *btapb.GetInstanceRequest
	getInstanceErr error
}

func (m *mockInstanceAdmin) GetInstance(ctx context.Context, in *btapb.GetInstanceRequest, opts ...grpc.CallOption) (*btapb.Instance, error) {
	m.getInstanceReq = in
	if m.getInstanceErr != nil {
		return nil, m.getInstanceErr
	}
	return &btapb.Instance{Name: in.Name, State: btapb.Instance_READY}, nil
}

type mockTableAdmin struct {
	btapb.BigtableTableAdminClient

	getTableReq *btapb.GetTableRequest
	table       *btapb.Table
	getTableErr error
}

func (m *mockTableAdmin) GetTable(ctx context.Context, in *btapb.GetTableRequest, opts ...grpc.CallOption) (*btapb.Table, error) {
	m.getTableReq = in
	if m.getTableErr != nil {
		return nil, m.getTableErr
	}
	return m.table, nil
}

func newTestClient(instances btapb.BigtableInstanceAdminClient, tables btapb.BigtableTableAdminClient) *Client {
	return &Client{instances: instances, tables: tables, project: "test-project"}
}

func TestInstanceExists(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    bool
		wantErr bool
	}{
		{
			name: "present",
			want: true,
		},
		{
			name: "absent",
			err:  status.Error(codes.NotFound, "instance not found"),
			want: false,
		},
		{
			name:    "server error propagates",
			err:     status.Error(codes.Internal, "backend unavailable"),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instances := &mockInstanceAdmin{getInstanceErr: tt.err}
			c := newTestClient(instances, &mockTableAdmin{})

			got, err := c.InstanceExists(context.Background(), "bt-instance")
			if (err != nil) != tt.wantErr {
				t.Fatalf("InstanceExists() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("InstanceExists() got = %v, want %v", got, tt.want)
			}
			wantName := "projects/test-project/instances/bt-instance"
			if instances.getInstanceReq.Name != wantName {
				t.Errorf("GetInstance request name got = %q, want %q", instances.getInstanceReq.Name, wantName)
			}
		})
	}
}

func TestClusterStates(t *testing.T) {
	tables := &mockTableAdmin{
		table: &btapb.Table{
			Name: "projects/test-project/instances/bt-instance/tables/events",
			ClusterStates: map[string]*btapb.Table_ClusterState{
				"cluster-a": {ReplicationState: btapb.Table_ClusterState_READY},
				"cluster-b": {ReplicationState: btapb.Table_ClusterState_INITIALIZING},
			},
		},
	}
	c := newTestClient(&mockInstanceAdmin{}, tables)

	got, err := c.ClusterStates(context.Background(), "bt-instance", "events")
	if err != nil {
		t.Fatalf("ClusterStates() error = %v", err)
	}
	want := map[string]ReplicationState{
		"cluster-a": StateReady,
		"cluster-b": StateInitializing,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ClusterStates() mismatch (-want +got):\n%s", diff)
	}

	wantName := "projects/test-project/instances/bt-instance/tables/events"
	if tables.getTableReq.Name != wantName {
		t.Errorf("GetTable request name got = %q, want %q", tables.getTableReq.Name, wantName)
	}
	if tables.getTableReq.View != btapb.Table_REPLICATION_VIEW {
		t.Errorf("GetTable request view got = %v, want REPLICATION_VIEW", tables.getTableReq.View)
	}
}

func TestClusterStatesMissingTable(t *testing.T) {
	tables := &mockTableAdmin{getTableErr: status.Error(codes.NotFound, "table not found")}
	c := newTestClient(&mockInstanceAdmin{}, tables)

	_, err := c.ClusterStates(context.Background(), "bt-instance", "missing")
	if !errors.Is(err, ErrTableNotFound) {
		t.Errorf("ClusterStates() error = %v, want ErrTableNotFound", err)
	}

	tables.getTableErr = status.Error(codes.PermissionDenied, "no access")
	if _, err := c.ClusterStates(context.Background(), "bt-instance", "missing"); errors.Is(err, ErrTableNotFound) || err == nil {
		t.Errorf("ClusterStates() error = %v, want the PermissionDenied status unchanged", err)
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil",
			err:  nil,
			want: false,
		},
		{
			name: "not found status",
			err:  status.Error(codes.NotFound, "nope"),
			want: true,
		},
		{
			name: "other status",
			err:  status.Error(codes.Internal, "broken"),
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("connection refused"),
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound(%v) got = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewClientInsecure(t *testing.T) {
	// The dial is lazy, so an unreachable endpoint builds a usable client.
	c, err := NewClient(context.Background(), Config{Project: "test-project", Endpoint: "localhost:1", Insecure: true})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	if c.Project() != "test-project" {
		t.Errorf("Project() got = %q, want test-project", c.Project())
	}
	if c.instances == nil || c.tables == nil {
		t.Error("NewClient() left admin stubs unset")
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{Insecure: true}); err == nil {
		t.Error("NewClient() with no project error = nil, want error")
	}
}
