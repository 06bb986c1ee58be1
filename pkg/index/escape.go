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

package index

import "strings"

// queryStringSpecials are the characters reserved by the query_string
// syntax. Indicator values routinely contain them (windows paths, URLs,
// registry keys), so every value is escaped before it is embedded in a
// query.
var queryStringSpecials = []string{
	"\\", "+", "-", "=", "&&", "||", "!", "(", ")",
	"{", "}", "[", "]", "^", "\"", "~", "*", "?", ":", "/",
}

// EscapeQueryString escapes every reserved query_string character in a
// literal value. Backslash is escaped first so the escapes themselves
// are not re-escaped. Angle brackets cannot be escaped in the query
// syntax at all and are removed.
func EscapeQueryString(value string) string {
	escaped := strings.NewReplacer("<", "", ">", "").Replace(value)

	for _, ch := range queryStringSpecials {
		replacement := "\\" + ch
		if len(ch) == 2 {
			// Two-character operators escape each character.
			replacement = "\\" + ch[:1] + "\\" + ch[1:]
		}

		escaped = strings.ReplaceAll(escaped, ch, replacement)
	}

	return escaped
}
