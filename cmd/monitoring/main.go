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

// The monitoring agent serves Prometheus metrics scraped from a Cloud SQL
// database. The database comes from the connection registry entry named by
// --connection, or from the DATA_SOURCE_* environment variables when the
// flag is unset. Proxied connections keep a Cloud SQL Auth Proxy subprocess
// alive for the lifetime of the agent.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/conn"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/proxy"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/secret"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/monitoring"
	legacy "github.com/GoogleCloudPlatform/cloud-pipeline-tasks/third_party/monitoring"
)

var (
	connectionsFile = flag.String("connections_file", "", "Path to the connections YAML file, $PIPELINE_CONNECTIONS_FILE when unset.")
	connectionName  = flag.String("connection", "", "Name of the connection to monitor. The DATA_SOURCE_* environment variables supply the DSN when unset.")
	configFiles     = flag.String("config", "", "Comma separated YAML files with metric sets reported in addition to the built-in ones.")
	dbPort          = flag.Int("dbport", 0, "Overrides the connection's database port.")
	proxyBinary     = flag.String("proxy_binary", "", "Path to the Cloud SQL Auth Proxy binary, downloaded when missing.")
	proxyVersion    = flag.String("proxy_version", "", "Proxy release to download when the binary is missing.")

	// Metrics in the oracledb_exporter dialect, served by the third_party
	// collector when default_metrics is set.
	defaultFileMetrics = flag.String("default_metrics", "", "File with default metrics in a YAML file.")
	customMetrics      = flag.String("custom_metrics", "", "File that may contain various custom metrics in a YAML file.")
	queryTimeout       = flag.String("query_timeout", "5", "Query timeout in seconds.")
)

// sqlFactory hands the monitor a database handle, recycling the previous
// one for as long as it still answers pings.
type sqlFactory struct {
	driver string
	dsn    string
}

var dbSingleton *sql.DB

func (f *sqlFactory) Open() (*sql.DB, error) {
	if dbSingleton == nil || dbSingleton.Ping() != nil {
		if dbSingleton != nil {
			dbSingleton.Close()
		}
		db, err := sql.Open(f.driver, f.dsn)
		if err != nil {
			return nil, fmt.Errorf("DB open failed: %w", err)
		}
		dbSingleton = db
	}
	return dbSingleton, nil
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	log := klog.NewKlogr()
	ctx := context.Background()

	cfg, err := selectConnection()
	if err != nil {
		log.Error(err, "failed to resolve the connection")
		klog.Fatal()
	}
	if cfg != nil {
		if cfg.UseSSL && cfg.SSLSecretID != "" {
			cleanup, err := applySSLSecret(ctx, cfg)
			if err != nil {
				log.Error(err, "failed to stage the SSL material")
				klog.Fatal()
			}
			defer cleanup()
		}
		if err := cfg.Validate(); err != nil {
			log.Error(err, "the connection config is invalid")
			klog.Fatal()
		}
	}

	engine := conn.Postgres
	if cfg != nil {
		engine = cfg.Engine
	}
	ms, err := metricSets(engine)
	if err != nil {
		log.Error(err, "failed to load the metric sets")
		klog.Fatal()
	}

	// Avoid adding unexpected metrics by using a custom registry.
	registry := prometheus.NewRegistry()

	serve := func(ctx context.Context) error {
		driver, dsn, err := dataSource(log, cfg)
		if err != nil {
			return err
		}
		if *defaultFileMetrics != "" {
			exporter, err := legacy.NewExporter(*defaultFileMetrics, *customMetrics, driver, dsn, *queryTimeout)
			if err != nil {
				return err
			}
			registry.MustRegister(exporter)
		}
		monitoring.StartExporting(log, registry, &sqlFactory{driver: driver, dsn: dsn}, ms, nil)
		return nil
	}

	if cfg != nil && cfg.UseProxy {
		err = serveProxied(ctx, cfg, serve)
	} else {
		err = serve(ctx)
	}
	if err != nil {
		log.Error(err, "monitoring agent failed")
		klog.Fatal()
	}
	log.Info("Shutting down")
}

// selectConnection looks up the --connection registry entry, or returns nil
// when the agent should fall back to the DATA_SOURCE_* environment.
func selectConnection() (*conn.Config, error) {
	if *connectionName == "" {
		return nil, nil
	}
	registry, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	cfg, err := registry.Lookup(*connectionName)
	if err != nil {
		return nil, err
	}
	if *dbPort != 0 {
		cfg.Port = *dbPort
	}
	return cfg, nil
}

func loadRegistry() (*conn.Registry, error) {
	if *connectionsFile != "" {
		return conn.LoadRegistry(*connectionsFile)
	}
	return conn.LoadRegistryFromEnv()
}

// applySSLSecret stages the PEM bundle from Secret Manager as local files
// and points the config at them.
func applySSLSecret(ctx context.Context, cfg *conn.Config) (func(), error) {
	if cfg.Project == "" {
		return nil, errors.New("an SSL secret needs the connection 'project' set")
	}
	payload, err := secret.NewAccessor(cfg.Project, cfg.SSLSecretID, "").Get(ctx)
	if err != nil {
		return nil, err
	}
	material, err := conn.ParseSSLPayload(payload)
	if err != nil {
		return nil, err
	}
	files, cleanup, err := conn.WriteSSLFiles("", material)
	if err != nil {
		return nil, err
	}
	cfg.ApplySSLFiles(files)
	return cleanup, nil
}

// metricSets parses the engine's built-in sets plus any --config files.
func metricSets(engine conn.Engine) ([]monitoring.MetricSet, error) {
	builtin := postgresMetrics
	if engine == conn.MySQL {
		builtin = mysqlMetrics
	}
	ms, err := monitoring.ReadConfig([]byte(builtin))
	if err != nil {
		return nil, err
	}
	if *configFiles == "" {
		return ms, nil
	}
	for _, path := range strings.Split(*configFiles, ",") {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, err
		}
		extra, err := monitoring.ReadConfig(data)
		if err != nil {
			return nil, err
		}
		ms = append(ms, extra...)
	}
	return ms, nil
}

// dataSource resolves the driver name and DSN, from the connection config
// when one is selected and from the DATA_SOURCE_* environment otherwise.
func dataSource(log logr.Logger, cfg *conn.Config) (string, string, error) {
	if cfg == nil {
		return string(conn.Postgres), monitoring.GetDefaultDSN(log).String(), nil
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return "", "", err
	}
	return string(cfg.Engine), dsn, nil
}

// serveProxied runs fn behind a Cloud SQL Auth Proxy. With a TCP proxy the
// config is repointed at the reserved local port before fn computes the DSN.
func serveProxied(ctx context.Context, cfg *conn.Config, fn func(context.Context) error) error {
	runner := &proxy.Runner{
		BinaryPath: *proxyBinary,
		Version:    *proxyVersion,
		Instance:   cfg.InstanceConnectionName(),
		UseTCP:     cfg.ProxyUseTCP,
		SocketDir:  cfg.ProxySocketDir,
	}
	if cfg.ProxyUseTCP {
		port, err := proxy.ReservePort()
		if err != nil {
			return err
		}
		runner.Port = port
		cfg.Host = "127.0.0.1"
		cfg.Port = port
	}
	return proxy.WithProxy(ctx, runner, fn)
}
