package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"
	sqladmin "google.golang.org/api/sqladmin/v1beta4"
)

const testPrefix = "/sql/v1beta4/projects/test-project"

func newTestService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, closeConn, err := New(context.Background(), Config{Project: "test-project", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { closeConn() })
	return s
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func stubSleep(t *testing.T) {
	t.Helper()
	backup := operationSleep
	t.Cleanup(func() { operationSleep = backup })
	operationSleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
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
			name: "404",
			err:  &googleapi.Error{Code: http.StatusNotFound},
			want: true,
		},
		{
			name: "wrapped 404",
			err:  fmt.Errorf("failed to get instance: %w", &googleapi.Error{Code: http.StatusNotFound}),
			want: true,
		},
		{
			name: "403",
			err:  &googleapi.Error{Code: http.StatusForbidden},
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

func TestIsConflict(t *testing.T) {
	if !IsConflict(&googleapi.Error{Code: http.StatusConflict}) {
		t.Error("IsConflict(409) got = false, want true")
	}
	if IsConflict(&googleapi.Error{Code: http.StatusNotFound}) {
		t.Error("IsConflict(404) got = true, want false")
	}
}

func TestInstanceExists(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       bool
		wantErr    bool
	}{
		{
			name:       "present",
			statusCode: http.StatusOK,
			want:       true,
		},
		{
			name:       "absent",
			statusCode: http.StatusNotFound,
			want:       false,
		},
		{
			name:       "server error propagates",
			statusCode: http.StatusInternalServerError,
			wantErr:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != testPrefix+"/instances/test-instance" {
					t.Errorf("unexpected request path %q", r.URL.Path)
				}
				if tt.statusCode != http.StatusOK {
					w.WriteHeader(tt.statusCode)
					return
				}
				writeJSON(t, w, &sqladmin.DatabaseInstance{Name: "test-instance"})
			}))

			got, err := s.InstanceExists(context.Background(), "test-instance")
			if (err != nil) != tt.wantErr {
				t.Fatalf("InstanceExists() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("InstanceExists() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCreateInstanceWaitsForOperation(t *testing.T) {
	stubSleep(t)

	var mu sync.Mutex
	polls := 0
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == testPrefix+"/instances":
			writeJSON(t, w, &sqladmin.Operation{Name: "op-1", Status: "PENDING"})
		case r.Method == http.MethodGet && r.URL.Path == testPrefix+"/operations/op-1":
			mu.Lock()
			polls++
			n := polls
			mu.Unlock()
			status := "RUNNING"
			if n >= 3 {
				status = OperationDone
			}
			writeJSON(t, w, &sqladmin.Operation{Name: "op-1", Status: status})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	err := s.CreateInstance(context.Background(), &sqladmin.DatabaseInstance{
		Name:     "test-instance",
		Settings: &sqladmin.Settings{Tier: "db-f1-micro"},
	})
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	if polls != 3 {
		t.Errorf("operation polled %d times, want 3", polls)
	}
}

func TestWaitForOperationSurfacesOperationError(t *testing.T) {
	stubSleep(t)

	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, &sqladmin.Operation{
			Name:   "op-err",
			Status: OperationDone,
			Error: &sqladmin.OperationErrors{
				Errors: []*sqladmin.OperationError{{Code: "INTERNAL_ERROR", Message: "export failed: access denied on bucket"}},
			},
		})
	}))

	err := s.WaitForOperation(context.Background(), "op-err")
	if err == nil {
		t.Fatal("WaitForOperation() error = nil, want operation error")
	}
	if !strings.Contains(err.Error(), "access denied on bucket") {
		t.Errorf("WaitForOperation() error = %q, want it to carry the operation message", err)
	}
}

func TestCloneInstanceBuildsCloneContext(t *testing.T) {
	stubSleep(t)

	var gotReq sqladmin.InstancesCloneRequest
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == testPrefix+"/instances/test-instance/clone":
			if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
				t.Errorf("failed to decode clone request: %v", err)
			}
			writeJSON(t, w, &sqladmin.Operation{Name: "op-2", Status: "PENDING"})
		case r.Method == http.MethodGet && r.URL.Path == testPrefix+"/operations/op-2":
			writeJSON(t, w, &sqladmin.Operation{Name: "op-2", Status: OperationDone})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	err := s.CloneInstance(context.Background(), "test-instance", "test-clone", map[string]interface{}{
		"pointInTime": "2022-06-01T10:00:00.000Z",
	})
	if err != nil {
		t.Fatalf("CloneInstance() error = %v", err)
	}

	cc := gotReq.CloneContext
	if cc == nil {
		t.Fatal("clone request carried no cloneContext")
	}
	if cc.Kind != "sql#cloneContext" {
		t.Errorf("cloneContext kind got = %q, want sql#cloneContext", cc.Kind)
	}
	if cc.DestinationInstanceName != "test-clone" {
		t.Errorf("destinationInstanceName got = %q, want test-clone", cc.DestinationInstanceName)
	}
	if cc.PointInTime != "2022-06-01T10:00:00.000Z" {
		t.Errorf("pointInTime got = %q, want the passthrough value", cc.PointInTime)
	}
}

func TestExportInstanceReturnsWithoutWaiting(t *testing.T) {
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/operations/") {
			t.Error("export must not poll the operation")
		}
		writeJSON(t, w, &sqladmin.Operation{Name: "op-export", Status: "PENDING"})
	}))

	name, err := s.ExportInstance(context.Background(), "test-instance", &sqladmin.InstancesExportRequest{
		ExportContext: &sqladmin.ExportContext{FileType: "sql", Uri: "gs://bucket/dump.sql"},
	})
	if err != nil {
		t.Fatalf("ExportInstance() error = %v", err)
	}
	if name != "op-export" {
		t.Errorf("ExportInstance() operation = %q, want op-export", name)
	}
}

func TestDatabaseExists(t *testing.T) {
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == testPrefix+"/instances/test-instance/databases/present" {
			writeJSON(t, w, &sqladmin.Database{Name: "present"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	got, err := s.DatabaseExists(context.Background(), "test-instance", "present")
	if err != nil || !got {
		t.Errorf("DatabaseExists(present) got = %v, %v, want true, nil", got, err)
	}
	got, err = s.DatabaseExists(context.Background(), "test-instance", "missing")
	if err != nil || got {
		t.Errorf("DatabaseExists(missing) got = %v, %v, want false, nil", got, err)
	}
}

func TestDecodeBody(t *testing.T) {
	body := map[string]interface{}{
		"name": "db1",
		"settings": map[string]interface{}{
			"tier": "db-f1-micro",
			// int64 fields ride the wire as strings.
			"dataDiskSizeGb": "10",
		},
	}
	var inst sqladmin.DatabaseInstance
	if err := DecodeBody(body, &inst); err != nil {
		t.Fatalf("DecodeBody() error = %v", err)
	}
	if inst.Name != "db1" || inst.Settings == nil || inst.Settings.Tier != "db-f1-micro" {
		t.Errorf("DecodeBody() got = %+v, want decoded name and settings", inst)
	}
	if inst.Settings.DataDiskSizeGb != 10 {
		t.Errorf("DecodeBody() dataDiskSizeGb got = %d, want 10", inst.Settings.DataDiskSizeGb)
	}

	bad := map[string]interface{}{"settings": "not-a-dict"}
	if err := DecodeBody(bad, &inst); err == nil {
		t.Error("DecodeBody() with mismatched shape error = nil, want error")
	}
}

func TestImpersonationChain(t *testing.T) {
	backup := newImpersonatedTokenSource
	defer func() { newImpersonatedTokenSource = backup }()

	var gotCfg impersonate.CredentialsConfig
	newImpersonatedTokenSource = func(ctx context.Context, cfg impersonate.CredentialsConfig, opts ...option.ClientOption) (oauth2.TokenSource, error) {
		gotCfg = cfg
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "fake"}), nil
	}

	tests := []struct {
		name          string
		chain         []string
		wantTarget    string
		wantDelegates int
	}{
		{
			name:       "single principal",
			chain:      []string{"sa@proj.iam.gserviceaccount.com"},
			wantTarget: "sa@proj.iam.gserviceaccount.com",
		},
		{
			name:          "delegation chain",
			chain:         []string{"first@p.iam", "second@p.iam", "target@p.iam"},
			wantTarget:    "target@p.iam",
			wantDelegates: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := impersonatedTokenSource(context.Background(), tt.chain); err != nil {
				t.Fatalf("impersonatedTokenSource() error = %v", err)
			}
			if gotCfg.TargetPrincipal != tt.wantTarget {
				t.Errorf("TargetPrincipal got = %q, want %q", gotCfg.TargetPrincipal, tt.wantTarget)
			}
			if len(gotCfg.Delegates) != tt.wantDelegates {
				t.Errorf("Delegates got = %v, want %d entries", gotCfg.Delegates, tt.wantDelegates)
			}
		})
	}
}

func TestResolveProjectEmpty(t *testing.T) {
	// Off GCE an empty project must not silently default.
	if _, err := resolveProject(""); err == nil {
		t.Error("resolveProject(\"\") error = nil, want error")
	}
	got, err := resolveProject("explicit")
	if err != nil || got != "explicit" {
		t.Errorf("resolveProject(explicit) got = %q, %v", got, err)
	}
}
