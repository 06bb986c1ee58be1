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

package hunt

import (
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/index"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

// narrowFields lists the payload fields queried for indicator types that
// are configured for narrow hunting. Unrestricted containment search
// over the whole document is the default: evidence payloads are too
// heterogeneous for any fixed field list to be trusted as complete.
var narrowFields = map[models.IndicatorType][]string{
	models.IndicatorTypeIP: {
		"payload.Event.EventData.IpAddress",
		"payload.Event.EventData.SourceAddress",
		"payload.Event.EventData.DestAddress",
		"payload.source.ip",
		"payload.destination.ip",
		"payload.src_ip",
		"payload.dst_ip",
	},
	models.IndicatorTypeDomain: {
		"payload.Event.EventData.QueryName",
		"payload.dns.question.name",
		"payload.url.domain",
		"payload.destination.domain",
	},
	models.IndicatorTypeHash: {
		"payload.Event.EventData.Hashes",
		"payload.file.hash.md5",
		"payload.file.hash.sha1",
		"payload.file.hash.sha256",
	},
	models.IndicatorTypeUsername: {
		"payload.Event.EventData.TargetUserName",
		"payload.Event.EventData.SubjectUserName",
		"payload.user.name",
	},
	models.IndicatorTypeHostname: {
		"host",
		"payload.Event.System.Computer",
		"payload.host.name",
	},
}

// buildQuery constructs the search query for one indicator. The value is
// always escaped before embedding: raw indicator text routinely carries
// query_string operators (paths, URLs, registry keys) and must match
// literally instead of failing to parse. An empty fileID hunts the whole
// case.
func (h *Hunter) buildQuery(ind *models.Indicator, fileID string, includeHidden bool) map[string]interface{} {
	qs := map[string]interface{}{
		"query":            index.EscapeQueryString(ind.Value),
		"default_operator": "AND",
		"lenient":          true,
	}

	if h.narrowTypes[ind.Type] {
		if fields, ok := narrowFields[ind.Type]; ok {
			qs["fields"] = fields
		}
	}

	filters := make([]interface{}, 0, 2)

	if fileID != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"file_id": fileID},
		})
	}

	if !includeHidden {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"hidden": false},
		})
	}

	return map[string]interface{}{
		"_source": []string{"file_id", "source_record_id"},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   []interface{}{map[string]interface{}{"query_string": qs}},
				"filter": filters,
			},
		},
	}
}
