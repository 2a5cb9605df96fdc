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

package conn

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SSLMaterial is the PEM bundle of a client certificate pair plus the
// server CA certificate. The JSON wire form carries each value
// base64-encoded, which encoding/json undoes on unmarshal.
type SSLMaterial struct {
	Cert     []byte `json:"sslcert"`
	Key      []byte `json:"sslkey"`
	RootCert []byte `json:"sslrootcert"`
}

// SSLFiles points at the materialized bundle on disk.
type SSLFiles struct {
	Cert     string
	Key      string
	RootCert string
}

// ParseSSLPayload decodes a Secret Manager payload carrying a connection
// SSL bundle: a JSON object with base64-encoded "sslcert", "sslkey" and
// "sslrootcert" values.
func ParseSSLPayload(payload []byte) (*SSLMaterial, error) {
	m := &SSLMaterial{}
	if err := json.Unmarshal(payload, m); err != nil {
		return nil, fmt.Errorf("the SSL secret payload is not a JSON bundle of base64 values: %v", err)
	}
	if len(m.Cert) == 0 || len(m.Key) == 0 || len(m.RootCert) == 0 {
		return nil, errors.New("the SSL secret payload must carry sslcert, sslkey and sslrootcert")
	}
	return m, nil
}

// WriteSSLFiles materializes the bundle under dir (the default temp
// directory when empty) with owner-only permissions. The cleanup function
// removes everything written.
func WriteSSLFiles(dir string, m *SSLMaterial) (*SSLFiles, func(), error) {
	d, err := os.MkdirTemp(dir, "cloudsql-ssl-")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create an SSL scratch dir: %v", err)
	}
	cleanup := func() { os.RemoveAll(d) }

	files := &SSLFiles{
		Cert:     filepath.Join(d, "client-cert.pem"),
		Key:      filepath.Join(d, "client-key.pem"),
		RootCert: filepath.Join(d, "server-ca.pem"),
	}
	for _, f := range []struct {
		path string
		data []byte
	}{
		{files.Cert, m.Cert},
		{files.Key, m.Key},
		{files.RootCert, m.RootCert},
	} {
		if err := os.WriteFile(f.path, f.data, 0600); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to write %s: %v", f.path, err)
		}
	}
	return files, cleanup, nil
}

// ApplySSLFiles points the config at a materialized bundle.
func (c *Config) ApplySSLFiles(f *SSLFiles) {
	c.SSLCert = f.Cert
	c.SSLKey = f.Key
	c.SSLRootCert = f.RootCert
}

// loadTLS builds the driver TLS config from the configured PEM files.
func (c *Config) loadTLS() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.SSLCert, c.SSLKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load the client certificate pair: %v", err)
	}
	rootPEM, err := os.ReadFile(c.SSLRootCert)
	if err != nil {
		return nil, fmt.Errorf("failed to read the server CA certificate: %v", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(rootPEM) {
		return nil, fmt.Errorf("no certificates found in %s", c.SSLRootCert)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
	}, nil
}
