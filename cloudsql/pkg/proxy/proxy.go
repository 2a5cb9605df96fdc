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

// Package proxy supervises a Cloud SQL Auth Proxy subprocess scoped to a
// single task: start it, wait until it accepts connections, and always
// tear it down when the task finishes.
package proxy

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/gcs"
)

const (
	// readyToken is printed on stderr once all proxy listeners are up.
	readyToken = "Ready for new connections"

	// binaryBucket hosts the released proxy binaries.
	binaryBucket = "gs://cloudsql-proxy"

	// DefaultVersion is the proxy release downloaded when none is pinned.
	DefaultVersion = "v1.31.0"

	defaultStartTimeout = 30 * time.Second
)

// Test hook.
var execCommand = exec.Command

// Runner supervises one proxy subprocess.
type Runner struct {
	// BinaryPath is the proxy binary. EnsureBinary downloads a release
	// there when the file is missing.
	BinaryPath string
	// Version pins the downloaded proxy release, with or without the
	// leading "v".
	Version string
	// Instance is the project:region:instance triple to tunnel.
	Instance string

	// UseTCP makes the proxy listen on 127.0.0.1:Port instead of a UNIX
	// socket under SocketDir.
	UseTCP    bool
	Port      int
	SocketDir string

	// CredentialFile optionally points the proxy at a service account key.
	CredentialFile string

	// StartTimeout bounds the wait for the ready line.
	StartTimeout time.Duration

	// GCS downloads the binary; the real service when nil.
	GCS gcs.Util

	cmd            *exec.Cmd
	ownedSocketDir bool
	mu             sync.Mutex
	out            bytes.Buffer
}

// ReservePort asks the kernel for a free localhost port for the proxy to
// listen on. The port stays unbound between the reservation and Start, so
// reserve right before starting.
func ReservePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, errors.Wrap(err, "failed to reserve a local port")
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// EnsureBinary makes sure the proxy binary exists, downloading the pinned
// release when it is missing.
func (r *Runner) EnsureBinary(ctx context.Context) error {
	if r.BinaryPath == "" {
		r.BinaryPath = filepath.Join(os.TempDir(), "cloud_sql_proxy")
	}
	if _, err := os.Stat(r.BinaryPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	version := r.Version
	if version == "" {
		version = DefaultVersion
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	uri := fmt.Sprintf("%s/%s/cloud_sql_proxy.%s.%s", binaryBucket, version, runtime.GOOS, runtime.GOARCH)
	klog.InfoS("downloading the Cloud SQL Auth Proxy", "uri", uri, "dest", r.BinaryPath)

	util := r.GCS
	if util == nil {
		util = &gcs.UtilImpl{}
	}
	if err := util.DownloadToFile(ctx, uri, r.BinaryPath, 0755); err != nil {
		return errors.Wrapf(err, "failed to download the proxy from %s", uri)
	}
	return nil
}

// Start launches the proxy and blocks until it reports readiness, the
// timeout passes, or ctx is cancelled. A failed start needs no Stop.
func (r *Runner) Start(ctx context.Context) error {
	if r.cmd != nil {
		return errors.New("the proxy is already running")
	}
	if r.Instance == "" {
		return errors.New("no instance to tunnel")
	}
	if err := r.EnsureBinary(ctx); err != nil {
		return err
	}

	var args []string
	if r.UseTCP {
		args = append(args, fmt.Sprintf("-instances=%s=tcp:%d", r.Instance, r.Port))
	} else {
		if _, err := os.Stat(r.SocketDir); os.IsNotExist(err) {
			if err := os.MkdirAll(r.SocketDir, 0755); err != nil {
				return errors.Wrap(err, "failed to create the socket directory")
			}
			r.ownedSocketDir = true
		}
		args = append(args, fmt.Sprintf("-instances=%s", r.Instance), "-dir="+r.SocketDir)
	}
	if r.CredentialFile != "" {
		args = append(args, "-credential_file="+r.CredentialFile)
	}

	cmd := execCommand(r.BinaryPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "failed to pipe the proxy stderr")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to start the proxy")
	}
	r.cmd = cmd
	klog.InfoS("started the Cloud SQL Auth Proxy", "instance", r.Instance, "pid", cmd.Process.Pid, "args", args)

	ready := make(chan error, 1)
	go r.scanStderr(stderr, ready)

	select {
	case err := <-ready:
		if err != nil {
			r.Stop()
			return err
		}
		klog.InfoS("the Cloud SQL Auth Proxy is ready", "instance", r.Instance)
		return nil
	case <-time.After(r.startTimeout()):
		r.Stop()
		return errors.Errorf("the proxy did not report readiness within %s; output:\n%s", r.startTimeout(), r.Output())
	case <-ctx.Done():
		r.Stop()
		return ctx.Err()
	}
}

// scanStderr drains the proxy log, signalling ready exactly once: nil on
// the ready line, an error when the process ends without printing it.
func (r *Runner) scanStderr(pipe io.Reader, ready chan<- error) {
	signalled := false
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		r.mu.Lock()
		r.out.WriteString(line)
		r.out.WriteByte('\n')
		r.mu.Unlock()
		klog.V(1).InfoS("proxy output", "line", line)
		if !signalled && strings.Contains(line, readyToken) {
			signalled = true
			ready <- nil
		}
	}
	if !signalled {
		ready <- errors.Errorf("the proxy exited before becoming ready; output:\n%s", r.Output())
	}
}

// Output returns the proxy log collected so far.
func (r *Runner) Output() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out.String()
}

// Stop terminates the proxy and waits for it to exit. It is idempotent
// and tolerates a process that already died.
func (r *Runner) Stop() error {
	cmd := r.cmd
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	r.cmd = nil

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		klog.ErrorS(err, "failed to signal the proxy, killing it", "pid", cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return errors.Wrap(err, "failed to kill the proxy")
		}
	}
	// The proxy exits non-zero on SIGTERM, which is the expected shutdown.
	if err := cmd.Wait(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return errors.Wrap(err, "failed to wait for the proxy")
		}
	}
	klog.InfoS("stopped the Cloud SQL Auth Proxy", "instance", r.Instance)

	if r.ownedSocketDir {
		r.ownedSocketDir = false
		if err := os.RemoveAll(r.SocketDir); err != nil {
			klog.Warningf("failed to remove the socket directory %v: %v", r.SocketDir, err)
		}
	}
	return nil
}

func (r *Runner) startTimeout() time.Duration {
	if r.StartTimeout > 0 {
		return r.StartTimeout
	}
	return defaultStartTimeout
}

// WithProxy runs fn behind a started proxy and always stops the proxy
// afterwards, whatever fn returns.
func WithProxy(ctx context.Context, r *Runner, fn func(context.Context) error) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := r.Stop(); err != nil {
			klog.ErrorS(err, "failed to stop the proxy", "instance", r.Instance)
		}
	}()
	return fn(ctx)
}
