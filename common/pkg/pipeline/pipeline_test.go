package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"k8s.io/klog/v2"
)

func TestMemoryOutputs(t *testing.T) {
	o := &MemoryOutputs{}
	if _, ok := o.Value("service_account_email"); ok {
		t.Error("Value() on empty outputs reported a value")
	}

	o.Record("service_account_email", "sa@test.iam.gserviceaccount.com")
	o.Record("rows", 42)

	got, ok := o.Value("service_account_email")
	if !ok || got != "sa@test.iam.gserviceaccount.com" {
		t.Errorf("Value(service_account_email) got = %v, %v, want recorded value, true", got, ok)
	}
	if got, _ := o.Value("rows"); got != 42 {
		t.Errorf("Value(rows) got = %v, want 42", got)
	}
}

func TestMemoryLinks(t *testing.T) {
	l := &MemoryLinks{}
	l.Persist(InstanceLink("test-project", "test-instance"))
	l.Persist(FileLink("test-project", "gs://bucket/dump.sql"))

	want := []Link{
		{
			Name: "Cloud SQL Instance",
			URL:  "https://console.cloud.google.com/sql/instances/test-instance/overview?project=test-project",
		},
		{
			Name: "File Details",
			URL:  "https://console.cloud.google.com/storage/browser/_details;tab=live_object/bucket/dump.sql?project=test-project",
		},
	}
	if diff := cmp.Diff(want, l.Links()); diff != "" {
		t.Errorf("Links() diff (-want +got):\n%s", diff)
	}
}

func TestLinkURLs(t *testing.T) {
	tests := []struct {
		name string
		link Link
		want string
	}{
		{
			name: "database",
			link: DatabaseLink("p1", "i1", "db1"),
			want: "https://console.cloud.google.com/sql/instances/i1/databases/db1/details?project=p1",
		},
		{
			name: "file without scheme",
			link: FileLink("p1", "bucket/obj.csv"),
			want: "https://console.cloud.google.com/storage/browser/_details;tab=live_object/bucket/obj.csv?project=p1",
		},
		{
			name: "bigtable tables",
			link: BigtableTablesLink("p1", "bt1"),
			want: "https://console.cloud.google.com/bigtable/instances/bt1/tables?project=p1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.link.URL != tt.want {
				t.Errorf("URL got = %q, want %q", tt.link.URL, tt.want)
			}
		})
	}
}

func TestNewTaskContext(t *testing.T) {
	tc := NewTaskContext("export_task", "run-1", klog.NewKlogr())
	if tc.TaskID != "export_task" || tc.RunID != "run-1" {
		t.Errorf("NewTaskContext() ids got = %q, %q", tc.TaskID, tc.RunID)
	}
	if tc.Outputs == nil || tc.Links == nil {
		t.Error("NewTaskContext() left recorders nil")
	}
}
