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

// The worker binary serves the Cloud SQL tasks and the Bigtable sensor on
// a Temporal task queue.
//
// Configuration comes from the environment: TEMPORAL_ADDRESS,
// TEMPORAL_NAMESPACE and TASK_QUEUE select the queue to serve;
// PIPELINE_PROJECT sets the default GCP project;
// PIPELINE_CONNECTIONS_FILE points at the connections file for query
// tasks.
package main

import (
	"flag"
	"os"

	"go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"
	"k8s.io/klog/v2"

	btadmin "github.com/GoogleCloudPlatform/cloud-pipeline-tasks/bigtable/pkg/admin"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/admin"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/cloudsql/pkg/conn"
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/worker"
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	registry, err := conn.LoadRegistryFromEnv()
	if err != nil {
		klog.ErrorS(err, "failed to load the connections file")
		os.Exit(1)
	}

	project := os.Getenv("PIPELINE_PROJECT")
	acts := &worker.Activities{
		AdminConfig:    admin.Config{Project: project},
		BigtableConfig: btadmin.Config{Project: project},
		Registry:       registry,
	}

	c, err := client.Dial(client.Options{
		HostPort:  getEnv("TEMPORAL_ADDRESS", "127.0.0.1:7233"),
		Namespace: getEnv("TEMPORAL_NAMESPACE", "default"),
	})
	if err != nil {
		klog.ErrorS(err, "failed to connect to the Temporal frontend")
		os.Exit(1)
	}
	defer c.Close()

	queue := getEnv("TASK_QUEUE", "cloud-pipeline-tasks")
	w := sdkworker.New(c, queue, sdkworker.Options{})
	w.RegisterActivity(acts)

	klog.InfoS("worker starting", "taskQueue", queue, "project", project)
	if err := w.Run(sdkworker.InterruptCh()); err != nil {
		klog.ErrorS(err, "worker stopped")
		os.Exit(1)
	}
}

// getEnv returns the value of an environment variable, or the fallback when
// it is unset or empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
