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

// Package conn describes how pipeline tasks reach a Cloud SQL database:
// engine, address or proxy socket, credentials and SSL material. Configs
// come from a registry file or are built inline by the caller; the DSN
// builders render them for the engine drivers.
package conn

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"bitbucket.org/creachadair/stringset"
	"github.com/go-sql-driver/mysql"

	// Registers the postgres driver.
	_ "github.com/lib/pq"
)

// Engine is a Cloud SQL database engine.
type Engine string

const (
	Postgres Engine = "postgres"
	MySQL    Engine = "mysql"
)

// sun_path limit on Linux; longer socket paths cannot be bound.
const unixPathMax = 108

var supportedEngines = stringset.New(string(Postgres), string(MySQL))

// Test hook.
var sqlOpen = sql.Open

// DefaultPort returns the engine's conventional TCP port.
func (e Engine) DefaultPort() int {
	switch e {
	case Postgres:
		return 5432
	case MySQL:
		return 3306
	}
	return 0
}

func (e Engine) driverName() string {
	return string(e)
}

// Config describes one Cloud SQL database connection.
type Config struct {
	// Name identifies the config inside a registry file.
	Name string `json:"name"`
	// Engine is postgres or mysql.
	Engine Engine `json:"engine"`

	Project  string `json:"project"`
	Region   string `json:"region"`
	Instance string `json:"instance"`

	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`

	// UseProxy tunnels the connection through the Cloud SQL Auth Proxy.
	UseProxy bool `json:"useProxy"`
	// ProxyUseTCP makes the proxy listen on a local TCP port instead of a
	// UNIX socket.
	ProxyUseTCP bool `json:"proxyUseTcp"`
	// ProxySocketDir hosts the per-instance proxy sockets.
	ProxySocketDir string `json:"proxySocketDir"`

	UseSSL bool `json:"useSsl"`
	// SSL material as PEM file paths, or a Secret Manager secret carrying
	// the bundle. The secret wins when both are set.
	SSLCert     string `json:"sslCert"`
	SSLKey      string `json:"sslKey"`
	SSLRootCert string `json:"sslRootCert"`
	SSLSecretID string `json:"sslSecretId"`
}

// WithDefaults returns a copy with the engine port and socket directory
// filled in when unset.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = c.Engine.DefaultPort()
	}
	if c.ProxySocketDir == "" {
		c.ProxySocketDir = filepath.Join("/tmp", "cloudsql")
	}
	return c
}

// InstanceConnectionName renders the project:region:instance triple the
// proxy and the socket layout are keyed by.
func (c *Config) InstanceConnectionName() string {
	return fmt.Sprintf("%s:%s:%s", c.Project, c.Region, c.Instance)
}

// Validate rejects configs the drivers or the proxy cannot serve.
func (c *Config) Validate() error {
	if !supportedEngines.Contains(string(c.Engine)) {
		return fmt.Errorf("unsupported engine %q, supported: %s", c.Engine, strings.Join(supportedEngines.Elements(), ", "))
	}
	if c.User == "" {
		return fmt.Errorf("connection %q has no user", c.Name)
	}
	if c.Database == "" {
		return fmt.Errorf("connection %q has no database", c.Name)
	}
	if c.UseProxy && c.UseSSL {
		return fmt.Errorf("connection %q enables both the proxy and SSL: the proxy encrypts on its own and does not support SSL sessions", c.Name)
	}
	if c.UseProxy {
		if c.Project == "" || c.Region == "" || c.Instance == "" {
			return fmt.Errorf("connection %q uses the proxy but lacks project/region/instance", c.Name)
		}
		if !c.ProxyUseTCP {
			if _, err := c.SocketPath(); err != nil {
				return err
			}
		}
	} else if c.Host == "" {
		return fmt.Errorf("connection %q has no host and does not use the proxy", c.Name)
	}
	if c.UseSSL && c.SSLSecretID == "" {
		if c.SSLCert == "" || c.SSLKey == "" || c.SSLRootCert == "" {
			return fmt.Errorf("connection %q enables SSL but provides neither cert files nor a secret", c.Name)
		}
	}
	return nil
}

// SocketPath returns the UNIX socket path the engine driver must dial when
// the proxy runs in socket mode. Postgres sockets carry the driver-imposed
// suffix, which counts against the kernel's path limit.
func (c *Config) SocketPath() (string, error) {
	dir := c.ProxySocketDir
	if dir == "" {
		dir = filepath.Join("/tmp", "cloudsql")
	}
	path := filepath.Join(dir, c.InstanceConnectionName())
	full := path
	if c.Engine == Postgres {
		full = fmt.Sprintf("%s/.s.PGSQL.%d", path, c.portOrDefault())
	}
	if len(full) > unixPathMax {
		return "", fmt.Errorf(
			"the UNIX socket path %q exceeds the %d character limit, move the proxy socket directory somewhere shorter",
			full, unixPathMax)
	}
	return path, nil
}

func (c *Config) portOrDefault() int {
	if c.Port != 0 {
		return c.Port
	}
	return c.Engine.DefaultPort()
}

// DSN renders the configured connection for the engine's driver: the
// lib/pq key/value form for postgres, the go-sql-driver form for mysql.
// MySQL SSL configs are registered with the driver as a side effect.
func (c *Config) DSN() (string, error) {
	switch c.Engine {
	case Postgres:
		return c.postgresDSN()
	case MySQL:
		return c.mysqlDSN()
	default:
		return "", fmt.Errorf("unsupported engine %q", c.Engine)
	}
}

func (c *Config) postgresDSN() (string, error) {
	host := c.Host
	if c.UseProxy && !c.ProxyUseTCP {
		socket, err := c.SocketPath()
		if err != nil {
			return "", err
		}
		host = socket
	}

	kv := []string{
		"host=" + pqValue(host),
		fmt.Sprintf("port=%d", c.portOrDefault()),
		"user=" + pqValue(c.User),
		"dbname=" + pqValue(c.Database),
	}
	if c.Password != "" {
		kv = append(kv, "password="+pqValue(c.Password))
	}
	if c.UseSSL {
		kv = append(kv,
			"sslmode=verify-ca",
			"sslcert="+pqValue(c.SSLCert),
			"sslkey="+pqValue(c.SSLKey),
			"sslrootcert="+pqValue(c.SSLRootCert))
	} else {
		kv = append(kv, "sslmode=disable")
	}
	return strings.Join(kv, " "), nil
}

func (c *Config) mysqlDSN() (string, error) {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.DBName = c.Database
	mc.AllowNativePasswords = true

	if c.UseProxy && !c.ProxyUseTCP {
		socket, err := c.SocketPath()
		if err != nil {
			return "", err
		}
		mc.Net = "unix"
		mc.Addr = socket
	} else {
		mc.Net = "tcp"
		mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.portOrDefault())
	}

	if c.UseSSL {
		tlsName := "cloudsql-" + c.InstanceConnectionName()
		tlsCfg, err := c.loadTLS()
		if err != nil {
			return "", err
		}
		if err := mysql.RegisterTLSConfig(tlsName, tlsCfg); err != nil {
			return "", fmt.Errorf("failed to register the SSL config with the mysql driver: %v", err)
		}
		mc.TLSConfig = tlsName
	}
	return mc.FormatDSN(), nil
}

// pq key/value values need quoting when they carry spaces or quotes.
func pqValue(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Open opens a database handle for the config.
func (c *Config) Open() (*sql.DB, error) {
	dsn, err := c.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sqlOpen(c.Engine.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open a %s handle for connection %q: %v", c.Engine, c.Name, err)
	}
	return db, nil
}
