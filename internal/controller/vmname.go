/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// vmNamePrefix precedes every sanitized node name in a generated VM name,
// and is what the adoption scan in createFailoverVm matches against
// (internal/reconciler keeps its own copy for its findByPrefix scan).
const vmNamePrefix = "cloud-temp-"

// maxVMNameLength is GCE's instance-name budget, and the budget
// spec.md §8's testable properties hold the generator to:
// ^[a-z][a-z0-9-]{0,62}$.
const maxVMNameLength = 63

// sanitizeNodeName lowercases name, maps underscores to hyphens, drops
// any character outside [a-z0-9-], and prepends "node-" if the result
// doesn't start with a letter. It never returns a string over
// maxVMNameLength.
func sanitizeNodeName(name string) string {
	lower := strings.ToLower(name)
	lower = strings.ReplaceAll(lower, "_", "-")

	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	sanitized := b.String()

	if sanitized == "" || !(sanitized[0] >= 'a' && sanitized[0] <= 'z') {
		sanitized = "node-" + sanitized
	}
	if len(sanitized) > maxVMNameLength {
		sanitized = sanitized[:maxVMNameLength]
	}
	return strings.TrimRight(sanitized, "-")
}

// vmNamePrefixFor returns the prefix a generated or adopted VM name for
// nodeName always starts with: "cloud-temp-<sanitized nodeName>-".
func vmNamePrefixFor(nodeName string) string {
	return vmNamePrefix + sanitizeNodeName(nodeName) + "-"
}

// generateVMName renders "cloud-temp-<sanitized>-<unixSeconds>",
// truncating the sanitized segment (never the timestamp suffix, which is
// what keeps concurrent calls differing only in timestamp unique) so the
// whole name stays within maxVMNameLength and matches
// ^[a-z][a-z0-9-]{0,62}$.
func generateVMName(nodeName string, at time.Time) string {
	suffix := strconv.FormatInt(at.Unix(), 10)
	sanitized := sanitizeNodeName(nodeName)

	budget := maxVMNameLength - len(vmNamePrefix) - 1 - len(suffix)
	if budget < 1 {
		budget = 1
	}
	if len(sanitized) > budget {
		sanitized = strings.TrimRight(sanitized[:budget], "-")
		if sanitized == "" {
			sanitized = "n"
		}
	}

	name := fmt.Sprintf("%s%s-%s", vmNamePrefix, sanitized, suffix)
	if len(name) > maxVMNameLength {
		name = name[:maxVMNameLength]
	}
	return name
}
