package conn

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/go-cmp/cmp"
)

func TestParseSSLPayload(t *testing.T) {
	want := &SSLMaterial{
		Cert:     []byte("cert pem"),
		Key:      []byte("key pem"),
		RootCert: []byte("root pem"),
	}
	// Marshalling []byte values produces the base64 wire form the secret
	// carries.
	payload, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	got, err := ParseSSLPayload(payload)
	if err != nil {
		t.Fatalf("ParseSSLPayload() failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseSSLPayload() diff (-want +got):\n%s", diff)
	}
}

func TestParseSSLPayloadErrors(t *testing.T) {
	testCases := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "-----BEGIN CERTIFICATE-----"},
		{name: "missing key", payload: `{"sslcert":"YQ==","sslrootcert":"YQ=="}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSSLPayload([]byte(tc.payload)); err == nil {
				t.Error("ParseSSLPayload() succeeded, want an error")
			}
		})
	}
}

func TestWriteSSLFiles(t *testing.T) {
	m := &SSLMaterial{
		Cert:     []byte("cert pem"),
		Key:      []byte("key pem"),
		RootCert: []byte("root pem"),
	}
	files, cleanup, err := WriteSSLFiles(t.TempDir(), m)
	if err != nil {
		t.Fatalf("WriteSSLFiles() failed: %v", err)
	}

	for _, f := range []struct {
		path string
		want string
	}{
		{files.Cert, "cert pem"},
		{files.Key, "key pem"},
		{files.RootCert, "root pem"},
	} {
		data, err := os.ReadFile(f.path)
		if err != nil {
			t.Fatalf("ReadFile(%q) failed: %v", f.path, err)
		}
		if string(data) != f.want {
			t.Errorf("content of %q got = %q, want %q", f.path, data, f.want)
		}
		info, err := os.Stat(f.path)
		if err != nil {
			t.Fatalf("Stat(%q) failed: %v", f.path, err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("mode of %q got = %v, want 0600", f.path, info.Mode().Perm())
		}
	}

	cleanup()
	if _, err := os.Stat(files.Cert); !os.IsNotExist(err) {
		t.Errorf("cleanup left %q behind", files.Cert)
	}
}

// selfSignedPEM builds a throwaway certificate pair for driver TLS tests.
func selfSignedPEM(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() failed: %v", err)
	}
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "cloudsql-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() failed: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey() failed: %v", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func TestMySQLDSNRegistersSSL(t *testing.T) {
	certPEM, keyPEM := selfSignedPEM(t)
	files, cleanup, err := WriteSSLFiles(t.TempDir(), &SSLMaterial{
		Cert:     certPEM,
		Key:      keyPEM,
		RootCert: certPEM,
	})
	if err != nil {
		t.Fatalf("WriteSSLFiles() failed: %v", err)
	}
	t.Cleanup(cleanup)

	config := Config{
		Engine:   MySQL,
		Project:  "test-project",
		Region:   "europe-west1",
		Instance: "my-main",
		Host:     "10.0.0.5",
		User:     "app",
		Database: "orders",
		UseSSL:   true,
	}
	config.ApplySSLFiles(files)

	dsn, err := config.DSN()
	if err != nil {
		t.Fatalf("DSN() failed: %v", err)
	}
	// ParseDSN resolves custom TLS names against the driver registry, so a
	// successful parse proves the config was registered.
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("ParseDSN(%q) failed: %v", dsn, err)
	}
	want := "cloudsql-test-project:europe-west1:my-main"
	if parsed.TLSConfig != want {
		t.Errorf("parsed.TLSConfig got = %q, want %q", parsed.TLSConfig, want)
	}
}

func TestLoadTLSRejectsGarbage(t *testing.T) {
	files, cleanup, err := WriteSSLFiles(t.TempDir(), &SSLMaterial{
		Cert:     []byte("not a cert"),
		Key:      []byte("not a key"),
		RootCert: []byte("not a root"),
	})
	if err != nil {
		t.Fatalf("WriteSSLFiles() failed: %v", err)
	}
	t.Cleanup(cleanup)

	config := Config{Engine: MySQL, Host: "h", User: "u", Database: "d", UseSSL: true}
	config.ApplySSLFiles(files)
	if _, err := config.DSN(); err == nil {
		t.Error("DSN() succeeded with garbage SSL material, want an error")
	} else if !strings.Contains(err.Error(), "client certificate") {
		t.Errorf("DSN() error = %v, want a client certificate error", err)
	}
}
