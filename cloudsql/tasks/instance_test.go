package tasks

import (
	"context"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	sqladmin "google.golang.org/api/sqladmin/v1beta4"
	"k8s.io/klog/v2"

	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/tasks/mocks"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/pipeline"
)

const (
	testProject  = "test-project"
	testInstance = "pg-main"
	testSAEmail  = "p-42@gcp-sa-cloud-sql.iam.gserviceaccount.com"
)

func testContext() *pipeline.TaskContext {
	return pipeline.NewTaskContext("task", "run-1", klog.NewKlogr())
}

func adminFactory(m Admin) AdminFactory {
	return func(context.Context) (Admin, func() error, error) {
		return m, func() error { return nil }, nil
	}
}

func persistedLinks(tc *pipeline.TaskContext) []pipeline.Link {
	return tc.Links.(*pipeline.MemoryLinks).Links()
}

func recordedOutput(tc *pipeline.TaskContext, key string) interface{} {
	v, _ := tc.Outputs.(*pipeline.MemoryOutputs).Value(key)
	return v
}

func instanceBody() map[string]interface{} {
	return map[string]interface{}{
		"name":            testInstance,
		"settings":        map[string]interface{}{"tier": "db-custom-1-3840"},
		"databaseVersion": "POSTGRES_14",
	}
}

func TestInstanceCreate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	m := mocks.NewMockAdmin(ctrl)

	want := &sqladmin.DatabaseInstance{
		Name:            testInstance,
		DatabaseVersion: "POSTGRES_14",
		Settings:        &sqladmin.Settings{Tier: "db-custom-1-3840"},
	}
	m.EXPECT().Project().Return(testProject).AnyTimes()
	m.EXPECT().InstanceExists(gomock.Any(), testInstance).Return(false, nil)
	m.EXPECT().CreateInstance(gomock.Any(), want).Return(nil)
	m.EXPECT().GetInstance(gomock.Any(), testInstance).Return(&sqladmin.DatabaseInstance{
		Name:                       testInstance,
		ServiceAccountEmailAddress: testSAEmail,
	}, nil)

	task := &InstanceCreateTask{
		Common: Common{Instance: testInstance, Admin: adminFactory(m)},
		Body:   instanceBody(),
	}
	tc := testContext()
	if err := task.Execute(context.Background(), tc); err != nil {
		t.Fatalf("Execute() got error %v, want nil", err)
	}
	if got := recordedOutput(tc, ServiceAccountEmailKey); got != testSAEmail {
		t.Errorf("output %q = %v, want %q", ServiceAccountEmailKey, got, testSAEmail)
	}
	wantLinks := []pipeline.Link{pipeline.InstanceLink(testProject, testInstance)}
	if got := persistedLinks(tc); len(got) != 1 || got[0] != wantLinks[0] {
		t.Errorf("persisted links = %v, want %v", got, wantLinks)
	}
}

func TestInstanceCreateAlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	m := mocks.NewMockAdmin(ctrl)

	// No CreateInstance expectation: the task must not try to create an
	// instance that is already there.
	m.EXPECT().Project().Return(testProject).AnyTimes()
	m.EXPECT().InstanceExists(gomock.Any(), testInstance).Return(true, nil)
	m.EXPECT().GetInstance(gomock.Any(), testInstance).Return(&sqladmin.DatabaseInstance{
		Name:                       testInstance,
		ServiceAccountEmailAddress: testSAEmail,
	}, nil)

	task := &InstanceCreateTask{
		Common: Common{Instance: testInstance, Admin: adminFactory(m)},
		Body:   instanceBody(),
	}
	tc := testContext()
	if err := task.Execute(context.Background(), tc); err != nil {
		t.Fatalf("Execute() got error %v, want nil", err)
	}
	if got := recordedOutput(tc, ServiceAccountEmailKey); got != testSAEmail {
		t.Errorf("output %q = %v, want %q", ServiceAccountEmailKey, got, testSAEmail)
	}
}

func TestInstanceCreateArgumentErrors(t *testing.T) {
	testCases := []struct {
		name    string
		task    *InstanceCreateTask
		wantErr string
	}{
		{
			name:    "no instance",
			task:    &InstanceCreateTask{Body: instanceBody()},
			wantErr: "the required parameter 'instance' is empty",
		},
		{
			name:    "no body",
			task:    &InstanceCreateTask{Common: Common{Instance: testInstance}},
			wantErr: "the required parameter 'body' is empty",
		},
		{
			name: "body without name",
			task: &InstanceCreateTask{
				Common: Common{Instance: testInstance},
				Body:   map[string]interface{}{"settings": map[string]interface{}{"tier": "db-f1-micro"}},
			},
			wantErr: `field "name" is required`,
		},
		{
			name: "settings without tier",
			task: &InstanceCreateTask{
				Common: Common{Instance: testInstance},
				Body:   map[string]interface{}{"name": testInstance, "settings": map[string]interface{}{}},
			},
			wantErr: `field "settings.tier" is required`,
		},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			if tt.task.Admin == nil {
				tt.task.Admin = adminFactory(mocks.NewMockAdmin(ctrl))
			}
			err := tt.task.Execute(context.Background(), testContext())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Execute() got error %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestInstancePatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	m := mocks.NewMockAdmin(ctrl)

	body := map[string]interface{}{
		"settings": map[string]interface{}{"tier": "db-custom-2-7680"},
	}
	want := &sqladmin.DatabaseInstance{Settings: &sqladmin.Settings{Tier: "db-custom-2-7680"}}
	m.EXPECT().Project().Return(testProject).AnyTimes()
	m.EXPECT().InstanceExists(gomock.Any(), testInstance).Return(true, nil)
	m.EXPECT().PatchInstance(gomock.Any(), testInstance, want).Return(nil)

	task := &InstancePatchTask{
		Common: Common{Instance: testInstance, Admin: adminFactory(m)},
		Body:   body,
	}
	tc := testContext()
	if err := task.Execute(context.Background(), tc); err != nil {
		t.Fatalf("Execute() got error %v, want nil", err)
	}
	wantLink := pipeline.InstanceLink(testProject, testInstance)
	if got := persistedLinks(tc); len(got) != 1 || got[0] != wantLink {
		t.Errorf("persisted links = %v, want [%v]", got, wantLink)
	}
}

func TestInstancePatchMissingInstance(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	m := mocks.NewMockAdmin(ctrl)
	m.EXPECT().InstanceExists(gomock.Any(), testInstance).Return(false, nil)

	task := &InstancePatchTask{
		Common: Common{Instance: testInstance, Admin: adminFactory(m)},
		Body:   map[string]interface{}{"settings": map[string]interface{}{}},
	}
	err := task.Execute(context.Background(), testContext())
	want := "Cloud SQL instance with ID pg-main does not exist. Please specify another instance to patch."
	if err == nil || err.Error() != want {
		t.Errorf("Execute() got error %v, want %q", err, want)
	}
}

func TestInstanceDelete(t *testing.T) {
	testCases := []struct {
		name   string
		exists bool
	}{
		{name: "existing instance is deleted", exists: true},
		{name: "absent instance is skipped", exists: false},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			m := mocks.NewMockAdmin(ctrl)
			m.EXPECT().InstanceExists(gomock.Any(), testInstance).Return(tt.exists, nil)
			if tt.exists {
				m.EXPECT().DeleteInstance(gomock.Any(), testInstance).Return(nil)
			}

			task := &InstanceDeleteTask{Common: Common{Instance: testInstance, Admin: adminFactory(m)}}
			if err := task.Execute(context.Background(), testContext()); err != nil {
				t.Errorf("Execute() got error %v, want nil", err)
			}
		})
	}
}

func TestInstanceClone(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	m := mocks.NewMockAdmin(ctrl)

	cloneContext := map[string]interface{}{"pointInTime": "2022-04-01T10:00:00.000Z"}
	m.EXPECT().InstanceExists(gomock.Any(), testInstance).Return(true, nil)
	m.EXPECT().CloneInstance(gomock.Any(), testInstance, "pg-clone", cloneContext).Return(nil)

	task := &InstanceCloneTask{
		Common:                  Common{Instance: testInstance, Admin: adminFactory(m)},
		DestinationInstanceName: "pg-clone",
		CloneContext:            cloneContext,
	}
	if err := task.Execute(context.Background(), testContext()); err != nil {
		t.Errorf("Execute() got error %v, want nil", err)
	}
}

func TestInstanceCloneMissingDestination(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	task := &InstanceCloneTask{
		Common: Common{Instance: testInstance, Admin: adminFactory(mocks.NewMockAdmin(ctrl))},
	}
	err := task.Execute(context.Background(), testContext())
	want := "the required parameter 'destination_instance_name' is empty"
	if err == nil || err.Error() != want {
		t.Errorf("Execute() got error %v, want %q", err, want)
	}
}

func TestInstanceCloneMissingInstance(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	m := mocks.NewMockAdmin(ctrl)
	m.EXPECT().InstanceExists(gomock.Any(), testInstance).Return(false, nil)

	task := &InstanceCloneTask{
		Common:                  Common{Instance: testInstance, Admin: adminFactory(m)},
		DestinationInstanceName: "pg-clone",
	}
	err := task.Execute(context.Background(), testContext())
	want := "Cloud SQL instance with ID pg-main does not exist. Please specify another instance to clone."
	if err == nil || err.Error() != want {
		t.Errorf("Execute() got error %v, want %q", err, want)
	}
}
