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

package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/conn"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/proxy"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/secret"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/pipeline"
)

// Test hooks.
var (
	fetchSecretPayload = func(ctx context.Context, project, secretID string) ([]byte, error) {
		return secret.NewAccessor(project, secretID, "").Get(ctx)
	}
	openDB = func(cfg *conn.Config) (*sql.DB, error) {
		return cfg.Open()
	}
)

// QueryTask runs DML or DDL statements against a Cloud SQL database,
// optionally tunnelling through the Cloud SQL Auth Proxy. The task returns
// no rows, so SELECTs are pointless; statement idempotency is the query
// author's concern.
type QueryTask struct {
	// Conn names a connection in Registry; Config overrides the lookup
	// when set.
	Conn     string
	Registry *conn.Registry
	Config   *conn.Config

	// SQL statements to run, in order.
	SQL []string
	// Parameters fill every statement's placeholders.
	Parameters []interface{}
	// Autocommit runs each statement on its own. Otherwise all statements
	// share one transaction committed at the end and rolled back on the
	// first failure.
	Autocommit bool

	// ProxyBinaryPath optionally pins the proxy binary location,
	// ProxyVersion the release downloaded when the binary is missing.
	ProxyBinaryPath string
	ProxyVersion    string
}

// Execute implements pipeline.Task. The proxy subprocess and any SSL
// material fetched from Secret Manager live exactly as long as this call.
func (t *QueryTask) Execute(ctx context.Context, tc *pipeline.TaskContext) error {
	if len(t.SQL) == 0 {
		return errors.New("the required parameter 'sql' is empty")
	}
	cfg, err := t.resolveConfig()
	if err != nil {
		return err
	}

	if cfg.UseSSL && cfg.SSLSecretID != "" {
		if cfg.Project == "" {
			return errors.New("an SSL secret needs the connection 'project' set")
		}
		payload, err := fetchSecretPayload(ctx, cfg.Project, cfg.SSLSecretID)
		if err != nil {
			return err
		}
		material, err := conn.ParseSSLPayload(payload)
		if err != nil {
			return err
		}
		files, cleanup, err := conn.WriteSSLFiles("", material)
		if err != nil {
			return err
		}
		defer cleanup()
		cfg.ApplySSLFiles(files)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if !cfg.UseProxy {
		return t.run(ctx, tc, cfg)
	}

	runner := &proxy.Runner{
		BinaryPath: t.ProxyBinaryPath,
		Version:    t.ProxyVersion,
		Instance:   cfg.InstanceConnectionName(),
		UseTCP:     cfg.ProxyUseTCP,
		SocketDir:  cfg.ProxySocketDir,
	}
	if cfg.ProxyUseTCP {
		// The port stays unbound until the proxy starts; another process
		// grabbing it in that window fails the proxy bind, not the query.
		port, err := proxy.ReservePort()
		if err != nil {
			return err
		}
		runner.Port = port
		cfg.Host = "127.0.0.1"
		cfg.Port = port
	}
	return proxy.WithProxy(ctx, runner, func(ctx context.Context) error {
		return t.run(ctx, tc, cfg)
	})
}

func (t *QueryTask) resolveConfig() (*conn.Config, error) {
	if t.Config != nil {
		c := t.Config.WithDefaults()
		return &c, nil
	}
	if t.Conn == "" {
		return nil, errors.New("the task names no connection and embeds no config")
	}
	if t.Registry == nil {
		return nil, errors.New("the task has no connection registry")
	}
	return t.Registry.Lookup(t.Conn)
}

func (t *QueryTask) run(ctx context.Context, tc *pipeline.TaskContext, cfg *conn.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			tc.Log.Error(err, "failed to close the database handle")
		}
	}()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to the database: %v", err)
	}

	if t.Autocommit {
		for _, stmt := range t.SQL {
			tc.Log.Info("executing statement", "sql", stmt)
			if _, err := db.ExecContext(ctx, stmt, t.Parameters...); err != nil {
				return fmt.Errorf("statement %q failed: %v", stmt, err)
			}
		}
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range t.SQL {
		tc.Log.Info("executing statement", "sql", stmt)
		if _, err := tx.ExecContext(ctx, stmt, t.Parameters...); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				tc.Log.Error(rbErr, "failed to roll back after a statement error")
			}
			return fmt.Errorf("statement %q failed: %v", stmt, err)
		}
	}
	return tx.Commit()
}
