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
	"github.com/GoogleCloudPlatform/cloud-pipeline-tasks/common/pkg/validation"
)

// Request body schemas for the v1beta4 API documents the tasks accept.
// List fields are opaque to the validator; the nested rules on list
// entries document the expected element shape only.

var createInstanceValidation = []validation.Rule{
	{Name: "name", NonEmpty: true},
	{Name: "settings", Kind: validation.Dict, Fields: []validation.Rule{
		{Name: "tier", NonEmpty: true},
		{Name: "backupConfiguration", Kind: validation.Dict, Optional: true, Fields: []validation.Rule{
			{Name: "binaryLogEnabled", Optional: true},
			{Name: "enabled", Optional: true},
			{Name: "replicationLogArchivingEnabled", Optional: true},
			{Name: "startTime", NonEmpty: true, Optional: true},
		}},
		{Name: "activationPolicy", NonEmpty: true, Optional: true},
		{Name: "authorizedGaeApplications", Kind: validation.List, Optional: true},
		{Name: "crashSafeReplicationEnabled", Optional: true},
		{Name: "dataDiskSizeGb", Optional: true},
		{Name: "dataDiskType", NonEmpty: true, Optional: true},
		{Name: "databaseFlags", Kind: validation.List, Optional: true},
		{Name: "ipConfiguration", Kind: validation.Dict, Optional: true, Fields: []validation.Rule{
			{Name: "authorizedNetworks", Kind: validation.List, Optional: true, Fields: []validation.Rule{
				{Name: "expirationTime", Optional: true},
				{Name: "name", NonEmpty: true, Optional: true},
				{Name: "value", NonEmpty: true, Optional: true},
			}},
			{Name: "ipv4Enabled", Optional: true},
			{Name: "privateNetwork", NonEmpty: true, Optional: true},
			{Name: "requireSsl", Optional: true},
		}},
		{Name: "locationPreference", Kind: validation.Dict, Optional: true, Fields: []validation.Rule{
			{Name: "followGaeApplication", NonEmpty: true, Optional: true},
			{Name: "zone", NonEmpty: true, Optional: true},
		}},
		{Name: "maintenanceWindow", Kind: validation.Dict, Optional: true, Fields: []validation.Rule{
			{Name: "hour", Optional: true},
			{Name: "day", Optional: true},
			{Name: "updateTrack", NonEmpty: true, Optional: true},
		}},
		{Name: "pricingPlan", NonEmpty: true, Optional: true},
		{Name: "replicationType", NonEmpty: true, Optional: true},
		{Name: "storageAutoResize", Optional: true},
		{Name: "storageAutoResizeLimit", Optional: true},
		{Name: "userLabels", Kind: validation.Dict, Optional: true},
	}},
	{Name: "databaseVersion", NonEmpty: true, Optional: true},
	{Name: "failoverReplica", Kind: validation.Dict, Optional: true, Fields: []validation.Rule{
		{Name: "name", NonEmpty: true},
	}},
	{Name: "masterInstanceName", NonEmpty: true, Optional: true},
	{Name: "onPremisesConfiguration", Kind: validation.Dict, Optional: true},
	{Name: "region", NonEmpty: true, Optional: true},
	{Name: "replicaConfiguration", Kind: validation.Dict, Optional: true, Fields: []validation.Rule{
		{Name: "failoverTarget", Optional: true},
		{Name: "mysqlReplicaConfiguration", Kind: validation.Dict, Optional: true, Fields: []validation.Rule{
			{Name: "caCertificate", NonEmpty: true, Optional: true},
			{Name: "clientCertificate", NonEmpty: true, Optional: true},
			{Name: "clientKey", NonEmpty: true, Optional: true},
			{Name: "connectRetryInterval", Optional: true},
			{Name: "dumpFilePath", NonEmpty: true, Optional: true},
			{Name: "masterHeartbeatPeriod", Optional: true},
			{Name: "password", NonEmpty: true, Optional: true},
			{Name: "sslCipher", NonEmpty: true, Optional: true},
			{Name: "username", NonEmpty: true, Optional: true},
			{Name: "verifyServerCertificate", Optional: true},
		}},
	}},
}

var exportValidation = []validation.Rule{
	{Name: "exportContext", Kind: validation.Dict, Fields: []validation.Rule{
		{Name: "fileType", NonEmpty: true},
		{Name: "uri", NonEmpty: true},
		{Name: "databases", Kind: validation.List, Optional: true},
		{Name: "sqlExportOptions", Kind: validation.Dict, Optional: true, Fields: []validation.Rule{
			{Name: "tables", Kind: validation.List, Optional: true},
			{Name: "schemaOnly", Optional: true},
			{Name: "mysqlExportOptions", Kind: validation.Dict, Optional: true, Fields: []validation.Rule{
				{Name: "masterData"},
			}},
		}},
		{Name: "csvExportOptions", Kind: validation.Dict, Optional: true, Fields: []validation.Rule{
			{Name: "selectQuery"},
			{Name: "escapeCharacter", Optional: true},
			{Name: "quoteCharacter", Optional: true},
			{Name: "fieldsTerminatedBy", Optional: true},
			{Name: "linesTerminatedBy", Optional: true},
		}},
		{Name: "offload", Optional: true},
	}},
}

var importValidation = []validation.Rule{
	{Name: "importContext", Kind: validation.Dict, Fields: []validation.Rule{
		{Name: "fileType", NonEmpty: true},
		{Name: "uri", NonEmpty: true},
		{Name: "database", NonEmpty: true, Optional: true},
		{Name: "importUser", Optional: true},
		{Name: "csvImportOptions", Kind: validation.Dict, Optional: true, Fields: []validation.Rule{
			{Name: "table"},
			{Name: "columns", Kind: validation.List, Optional: true},
		}},
	}},
}

var databaseCreateValidation = []validation.Rule{
	{Name: "instance", NonEmpty: true},
	{Name: "name", NonEmpty: true},
	{Name: "project", NonEmpty: true},
}

var databasePatchValidation = []validation.Rule{
	{Name: "instance", Optional: true},
	{Name: "name", Optional: true},
	{Name: "project", Optional: true},
	{Name: "etag", Optional: true},
	{Name: "charset", Optional: true},
	{Name: "collation", Optional: true},
}
