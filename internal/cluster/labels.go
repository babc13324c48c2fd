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

package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// reservedLabelPrefixes are platform-owned label namespaces that never
// belong in a node's "custom" label set.
var reservedLabelPrefixes = []string{
	"beta.kubernetes.io/",
	"kubernetes.io/",
	"node-role.kubernetes.io/",
	"node.kubernetes.io/",
}

// GetNodeCustomLabels returns the subset of labels on the named node whose
// keys do not begin with any reserved platform prefix. It is a pure
// function over a map once the node is fetched, so the filtering logic is
// independently unit-testable without a cluster.
func (g *Gateway) GetNodeCustomLabels(ctx context.Context, name string) (map[string]string, error) {
	node, err := g.GetNode(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("cluster: getting node %s for custom labels: %w", name, err)
	}
	if node == nil {
		return nil, nil
	}
	return filterCustomLabels(node.Labels), nil
}

// FilterCustomLabels is the exported form of filterCustomLabels for
// callers (e.g. the Event Router) that already have a label map in hand
// and don't need a fresh Gateway read.
func FilterCustomLabels(labels map[string]string) map[string]string {
	return filterCustomLabels(labels)
}

func filterCustomLabels(labels map[string]string) map[string]string {
	return lo.PickBy(labels, func(key, _ string) bool {
		for _, prefix := range reservedLabelPrefixes {
			if strings.HasPrefix(key, prefix) {
				return false
			}
		}
		return true
	})
}

// IntersectAllowList returns the subset of labels whose keys appear in
// allowed, used by the Event Router to derive targetNodeLabels from
// GCP_NODE_COPY_LABELS.
func IntersectAllowList(labels map[string]string, allowed []string) map[string]string {
	allowSet := lo.SliceToMap(allowed, func(k string) (string, struct{}) { return k, struct{}{} })
	return lo.PickBy(labels, func(key, _ string) bool {
		_, ok := allowSet[key]
		return ok
	})
}
