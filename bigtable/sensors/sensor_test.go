package sensors

import (
	"context"
	"errors"
	"strings"
	"testing"

	"k8s.io/klog/v2"

	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/bigtable/pkg/admin"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/pipeline"
)

const (
	testProject  = "test-project"
	testInstance = "bt-main"
	testTable    = "events"
)

// fakeAdmin is an in-memory sensors.Admin.
type fakeAdmin struct {
	instanceExists bool
	instanceErr    error
	states         map[string]admin.ReplicationState
	statesErr      error

	closed int
}

func (f *fakeAdmin) Project() string { return testProject }

func (f *fakeAdmin) InstanceExists(ctx context.Context, instance string) (bool, error) {
	return f.instanceExists, f.instanceErr
}

func (f *fakeAdmin) ClusterStates(ctx context.Context, instance, table string) (map[string]admin.ReplicationState, error) {
	if f.statesErr != nil {
		return nil, f.statesErr
	}
	return f.states, nil
}

func (f *fakeAdmin) factory() AdminFactory {
	return func(context.Context) (Admin, func() error, error) {
		return f, func() error { f.closed++; return nil }, nil
	}
}

func testContext() *pipeline.TaskContext {
	return pipeline.NewTaskContext("sensor", "run-1", klog.NewKlogr())
}

func persistedLinks(tc *pipeline.TaskContext) []pipeline.Link {
	return tc.Links.(*pipeline.MemoryLinks).Links()
}

func newSensor(f *fakeAdmin) *TableReplicationSensor {
	return &TableReplicationSensor{Instance: testInstance, Table: testTable, Admin: f.factory()}
}

func TestPokeReadiness(t *testing.T) {
	tests := []struct {
		name  string
		admin *fakeAdmin
		want  bool
	}{
		{
			name:  "instance absent",
			admin: &fakeAdmin{instanceExists: false},
			want:  false,
		},
		{
			name:  "table absent",
			admin: &fakeAdmin{instanceExists: true, statesErr: admin.ErrTableNotFound},
			want:  false,
		},
		{
			name: "one cluster lagging",
			admin: &fakeAdmin{instanceExists: true, states: map[string]admin.ReplicationState{
				"cluster-a": admin.StateReady,
				"cluster-b": admin.StateInitializing,
			}},
			want: false,
		},
		{
			name: "all clusters ready",
			admin: &fakeAdmin{instanceExists: true, states: map[string]admin.ReplicationState{
				"cluster-a": admin.StateReady,
				"cluster-b": admin.StateReady,
			}},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSensor(tt.admin)
			tc := testContext()
			got, err := s.Poke(context.Background(), tc)
			if err != nil {
				t.Fatalf("Poke() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Poke() got = %v, want %v", got, tt.want)
			}
			if tt.admin.closed != 1 {
				t.Errorf("hook closed %d times, want 1", tt.admin.closed)
			}
			wantLinks := 0
			if tt.want {
				wantLinks = 1
			}
			if got := persistedLinks(tc); len(got) != wantLinks {
				t.Errorf("persisted %d links, want %d", len(got), wantLinks)
			}
		})
	}
}

func TestPokePersistsLinkOnce(t *testing.T) {
	f := &fakeAdmin{instanceExists: true, states: map[string]admin.ReplicationState{
		"cluster-a": admin.StateReady,
	}}
	s := newSensor(f)
	tc := testContext()

	for i := 0; i < 3; i++ {
		got, err := s.Poke(context.Background(), tc)
		if err != nil || !got {
			t.Fatalf("Poke() #%d got = %v, %v, want true, nil", i+1, got, err)
		}
	}

	links := persistedLinks(tc)
	if len(links) != 1 {
		t.Fatalf("persisted %d links, want exactly 1", len(links))
	}
	want := pipeline.BigtableTablesLink(testProject, testInstance)
	if links[0] != want {
		t.Errorf("persisted link = %v, want %v", links[0], want)
	}
}

func TestPokeErrorsPropagate(t *testing.T) {
	tests := []struct {
		name  string
		admin *fakeAdmin
	}{
		{
			name:  "instance get fails",
			admin: &fakeAdmin{instanceErr: errors.New("rpc error: code = Internal")},
		},
		{
			name:  "cluster states fail",
			admin: &fakeAdmin{instanceExists: true, statesErr: errors.New("rpc error: code = PermissionDenied")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSensor(tt.admin)
			if _, err := s.Poke(context.Background(), testContext()); err == nil {
				t.Error("Poke() error = nil, want the admin error")
			}
		})
	}
}

func TestPokeArgumentErrors(t *testing.T) {
	f := &fakeAdmin{instanceExists: true}
	tests := []struct {
		name    string
		sensor  *TableReplicationSensor
		wantErr string
	}{
		{
			name:    "no instance",
			sensor:  &TableReplicationSensor{Table: testTable, Admin: f.factory()},
			wantErr: "the required parameter 'instance_id' is empty",
		},
		{
			name:    "no table",
			sensor:  &TableReplicationSensor{Instance: testInstance, Admin: f.factory()},
			wantErr: "the required parameter 'table_id' is empty",
		},
		{
			name:    "no factory",
			sensor:  &TableReplicationSensor{Instance: testInstance, Table: testTable},
			wantErr: "the sensor has no admin factory",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.sensor.Poke(context.Background(), testContext())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Poke() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
