package proxy

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/gcs"
)

// stubProxyProcess replaces the proxy binary with a shell script.
func stubProxyProcess(t *testing.T, script string) {
	t.Helper()
	orig := execCommand
	execCommand = func(name string, args ...string) *exec.Cmd {
		return exec.Command("/bin/sh", "-c", script)
	}
	t.Cleanup(func() { execCommand = orig })
}

type fakeGCS struct {
	gcs.Util
	downloads []string
	content   []byte
}

func (f *fakeGCS) DownloadToFile(ctx context.Context, gcsPath, destPath string, mode os.FileMode) error {
	f.downloads = append(f.downloads, gcsPath)
	return os.WriteFile(destPath, f.content, mode)
}

func TestReservePort(t *testing.T) {
	port, err := ReservePort()
	if err != nil {
		t.Fatalf("ReservePort() failed: %v", err)
	}
	if port <= 0 {
		t.Fatalf("ReservePort() got = %d, want a positive port", port)
	}
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("the reserved port %d is not bindable: %v", port, err)
	}
	l.Close()
}

func TestEnsureBinaryKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloud_sql_proxy")
	if err := os.WriteFile(path, []byte("binary"), 0755); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	fake := &fakeGCS{}
	r := &Runner{BinaryPath: path, GCS: fake}
	if err := r.EnsureBinary(context.Background()); err != nil {
		t.Fatalf("EnsureBinary() failed: %v", err)
	}
	if len(fake.downloads) != 0 {
		t.Errorf("EnsureBinary() downloaded %v, want no downloads", fake.downloads)
	}
}

func TestEnsureBinaryDownloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloud_sql_proxy")
	fake := &fakeGCS{content: []byte("binary")}
	r := &Runner{BinaryPath: path, Version: "1.31.0", GCS: fake}
	if err := r.EnsureBinary(context.Background()); err != nil {
		t.Fatalf("EnsureBinary() failed: %v", err)
	}

	wantURI := fmt.Sprintf("gs://cloudsql-proxy/v1.31.0/cloud_sql_proxy.%s.%s", runtime.GOOS, runtime.GOARCH)
	if len(fake.downloads) != 1 || fake.downloads[0] != wantURI {
		t.Errorf("downloads got = %v, want [%s]", fake.downloads, wantURI)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("the binary was not written: %v", err)
	}
}

func TestStartWaitsForReady(t *testing.T) {
	stubProxyProcess(t, `echo "2022/06/01 10:00:00 Ready for new connections" >&2; sleep 30`)
	r := &Runner{
		BinaryPath: "/bin/sh",
		Instance:   "test-project:europe-west1:pg-main",
		UseTCP:     true,
		Port:       15432,
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Errorf("Stop() failed: %v", err)
	}
	// Stop is idempotent.
	if err := r.Stop(); err != nil {
		t.Errorf("second Stop() failed: %v", err)
	}
}

func TestStartSurfacesProxyOutputOnExit(t *testing.T) {
	stubProxyProcess(t, `echo "bind: address already in use" >&2; exit 1`)
	r := &Runner{
		BinaryPath: "/bin/sh",
		Instance:   "test-project:europe-west1:pg-main",
		UseTCP:     true,
		Port:       15432,
	}
	err := r.Start(context.Background())
	if err == nil {
		t.Fatal("Start() succeeded, want an error")
	}
	if !strings.Contains(err.Error(), "address already in use") {
		t.Errorf("Start() error = %v, want the proxy output in it", err)
	}
}

func TestStartTimesOut(t *testing.T) {
	stubProxyProcess(t, `sleep 30`)
	r := &Runner{
		BinaryPath:   "/bin/sh",
		Instance:     "test-project:europe-west1:pg-main",
		UseTCP:       true,
		Port:         15432,
		StartTimeout: 100 * time.Millisecond,
	}
	err := r.Start(context.Background())
	if err == nil {
		t.Fatal("Start() succeeded, want a timeout error")
	}
	if !strings.Contains(err.Error(), "did not report readiness") {
		t.Errorf("Start() error = %v, want a readiness timeout", err)
	}
}

func TestStartHonorsContext(t *testing.T) {
	stubProxyProcess(t, `sleep 30`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{
		BinaryPath: "/bin/sh",
		Instance:   "test-project:europe-west1:pg-main",
		UseTCP:     true,
		Port:       15432,
	}
	if err := r.Start(ctx); err != context.Canceled {
		t.Errorf("Start() got = %v, want context.Canceled", err)
	}
}

func TestStopRemovesOwnedSocketDir(t *testing.T) {
	stubProxyProcess(t, `echo "Ready for new connections" >&2; sleep 30`)
	socketDir := filepath.Join(t.TempDir(), "sockets")
	r := &Runner{
		BinaryPath: "/bin/sh",
		Instance:   "test-project:europe-west1:pg-main",
		SocketDir:  socketDir,
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if _, err := os.Stat(socketDir); err != nil {
		t.Fatalf("Start() did not create the socket directory: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if _, err := os.Stat(socketDir); !os.IsNotExist(err) {
		t.Errorf("Stop() left the socket directory behind")
	}
}

func TestStopKeepsPreexistingSocketDir(t *testing.T) {
	stubProxyProcess(t, `echo "Ready for new connections" >&2; sleep 30`)
	socketDir := t.TempDir()
	r := &Runner{
		BinaryPath: "/bin/sh",
		Instance:   "test-project:europe-west1:pg-main",
		SocketDir:  socketDir,
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if _, err := os.Stat(socketDir); err != nil {
		t.Errorf("Stop() removed a socket directory it does not own: %v", err)
	}
}

func TestWithProxyAlwaysStops(t *testing.T) {
	stubProxyProcess(t, `echo "Ready for new connections" >&2; sleep 30`)
	r := &Runner{
		BinaryPath: "/bin/sh",
		Instance:   "test-project:europe-west1:pg-main",
		UseTCP:     true,
		Port:       15432,
	}

	wantErr := fmt.Errorf("query failed")
	if err := WithProxy(context.Background(), r, func(context.Context) error {
		return wantErr
	}); err != wantErr {
		t.Errorf("WithProxy() got = %v, want the callback error %v", err, wantErr)
	}

	// The proxy was stopped, so a second run can start it again.
	if err := WithProxy(context.Background(), r, func(context.Context) error {
		return nil
	}); err != nil {
		t.Errorf("second WithProxy() failed: %v", err)
	}
}
