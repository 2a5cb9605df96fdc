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

package pipeline

import (
	"fmt"
	"strings"
)

const (
	gsScheme = "gs://"

	instanceLinkTmpl = "https://console.cloud.google.com/sql/instances/%s/overview?project=%s"
	databaseLinkTmpl = "https://console.cloud.google.com/sql/instances/%s/databases/%s/details?project=%s"
	fileLinkTmpl     = "https://console.cloud.google.com/storage/browser/_details;tab=live_object/%s?project=%s"
	bigtableLinkTmpl = "https://console.cloud.google.com/bigtable/instances/%s/tables?project=%s"
)

// InstanceLink points at the Cloud SQL instance overview page.
func InstanceLink(project, instance string) Link {
	return Link{
		Name: "Cloud SQL Instance",
		URL:  fmt.Sprintf(instanceLinkTmpl, instance, project),
	}
}

// DatabaseLink points at the details page of one database within a Cloud
// SQL instance.
func DatabaseLink(project, instance, database string) Link {
	return Link{
		Name: "Cloud SQL Database",
		URL:  fmt.Sprintf(databaseLinkTmpl, instance, database, project),
	}
}

// FileLink points at the object browser page for a storage URI. The gs://
// scheme, if present, is stripped before the URI is embedded in the URL.
func FileLink(project, uri string) Link {
	return Link{
		Name: "File Details",
		URL:  fmt.Sprintf(fileLinkTmpl, strings.TrimPrefix(uri, gsScheme), project),
	}
}

// BigtableTablesLink points at the tables list of a Bigtable instance.
func BigtableTablesLink(project, instance string) Link {
	return Link{
		Name: "Bigtable Tables",
		URL:  fmt.Sprintf(bigtableLinkTmpl, instance, project),
	}
}
