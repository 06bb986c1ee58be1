/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package rules

import (
	"os"

	"gopkg.in/yaml.v3"
)

// RuleMetadata is the subset of a rule document the pipeline cares
// about. Detection output rows carry the rule title; severity falls back
// to the rule's own level when the engine omits it.
type RuleMetadata struct {
	Title string `yaml:"title"`
	ID    string `yaml:"id"`
	Level string `yaml:"level"`
}

// LoadRuleMetadata parses one rule file's metadata.
func LoadRuleMetadata(path string) (*RuleMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta RuleMetadata

	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}
