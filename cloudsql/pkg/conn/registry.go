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
	"fmt"
	"os"

	"github.com/ghodss/yaml"
)

// RegistryEnv names the environment variable pointing at the connections
// file workers load on startup.
const RegistryEnv = "PIPELINE_CONNECTIONS_FILE"

// Registry resolves named connection configs loaded from a YAML file.
type Registry struct {
	configs map[string]Config
}

// LoadRegistry reads a YAML list of connection configs. Every entry needs
// a unique name.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the connections file: %v", err)
	}
	return ParseRegistry(raw)
}

// LoadRegistryFromEnv loads the file named by RegistryEnv. An unset
// variable yields an empty registry, so workers without database tasks
// need no file.
func LoadRegistryFromEnv() (*Registry, error) {
	path := os.Getenv(RegistryEnv)
	if path == "" {
		return &Registry{configs: map[string]Config{}}, nil
	}
	return LoadRegistry(path)
}

// ParseRegistry parses the YAML body of a connections file.
func ParseRegistry(raw []byte) (*Registry, error) {
	var entries []Config
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse the connections file: %v", err)
	}
	configs := make(map[string]Config, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("a connection entry has no name")
		}
		if _, ok := configs[e.Name]; ok {
			return nil, fmt.Errorf("duplicate connection name %q", e.Name)
		}
		configs[e.Name] = e.WithDefaults()
	}
	return &Registry{configs: configs}, nil
}

// Lookup returns a copy of the named config, so callers can adjust ports
// or SSL paths without mutating the registry.
func (r *Registry) Lookup(name string) (*Config, error) {
	c, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("connection %q is not defined in the connections file", name)
	}
	return &c, nil
}

// Names lists the registered connection names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.configs))
	for n := range r.configs {
		names = append(names, n)
	}
	return names
}
