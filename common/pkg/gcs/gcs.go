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

// Package gcs contains helper methods for reading GCS objects.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"k8s.io/klog/v2"
)

const GSPrefix = "gs://"

const downloadAttempts = 5

// Test hook.
var downloadSleep = gax.Sleep

// Util contains helper methods for reading GCS objects.
type Util interface {
	// Download returns an io.ReadCloser for GCS object at given gcsPath.
	Download(ctx context.Context, gcsPath string) (io.ReadCloser, error)
	// DownloadToFile copies the GCS object at gcsPath to destPath with the
	// given file mode, retrying transient server errors.
	DownloadToFile(ctx context.Context, gcsPath, destPath string, mode os.FileMode) error
	// SplitURI takes a GCS URI and splits it into bucket and object names. If the URI does not have
	// the gs:// scheme, or the URI doesn't specify both a bucket and an object name, returns an error.
	SplitURI(url string) (bucket, name string, err error)
}

// UtilImpl implements Util against the real service.
type UtilImpl struct {
	// Options are passed to every storage client, so callers can override
	// the endpoint or authentication.
	Options []option.ClientOption
}

func (g *UtilImpl) Download(ctx context.Context, gcsPath string) (io.ReadCloser, error) {
	bucket, name, err := g.SplitURI(gcsPath)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx, g.Options...)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCS client: %v", err)
	}

	// Transient failures are retried by DownloadToFile with controlled
	// pacing, so the handle itself must not retry.
	b := client.Bucket(bucket).Retryer(storage.WithPolicy(storage.RetryNever))
	reader, err := b.Object(name).NewReader(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to read URL %s: %w", gcsPath, err)
	}

	return &clientCloser{ReadCloser: reader, client: client}, nil
}

// clientCloser ties the storage client's lifetime to the object reader.
type clientCloser struct {
	io.ReadCloser
	client *storage.Client
}

func (c *clientCloser) Close() error {
	err := c.ReadCloser.Close()
	if cerr := c.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (g *UtilImpl) DownloadToFile(ctx context.Context, gcsPath, destPath string, mode os.FileMode) error {
	bo := gax.Backoff{
		Initial:    500 * time.Millisecond,
		Max:        10 * time.Second,
		Multiplier: 2,
	}
	var err error
	for attempt := 1; ; attempt++ {
		err = g.downloadToFile(ctx, gcsPath, destPath, mode)
		if err == nil || attempt >= downloadAttempts || !isTransient(err) {
			return err
		}
		klog.ErrorS(err, "transient GCS failure, retrying", "gcsPath", gcsPath, "attempt", attempt)
		if serr := downloadSleep(ctx, bo.Pause()); serr != nil {
			return serr
		}
	}
}

func (g *UtilImpl) downloadToFile(ctx context.Context, gcsPath, destPath string, mode os.FileMode) error {
	r, err := g.Download(ctx, gcsPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			klog.Warningf("failed to close the reader for %v: %v", gcsPath, err)
		}
	}()

	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s to %s: %v", gcsPath, destPath, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	// OpenFile modes are subject to the umask.
	return os.Chmod(destPath, mode)
}

func (g *UtilImpl) SplitURI(url string) (bucket, name string, err error) {
	u := strings.TrimPrefix(url, GSPrefix)
	if u == url {
		return "", "", fmt.Errorf("URL %q is missing the %q prefix", url, GSPrefix)
	}
	if i := strings.Index(u, "/"); i >= 2 {
		return u[:i], u[i+1:], nil
	}
	return "", "", fmt.Errorf("URL %q does not specify a bucket and a name", url)
}

// isTransient reports whether the download failed in a way a retry can fix.
func isTransient(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code >= http.StatusInternalServerError || apiErr.Code == http.StatusTooManyRequests
}
