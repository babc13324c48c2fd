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
	"time"
)

// nodeJoinPollInterval is the fixed interval WaitForNodeJoin polls at.
// Not externally configurable; spec.md leaves the interval unspecified.
const nodeJoinPollInterval = 5 * time.Second

// WaitForNodeJoin polls GetNode at a fixed interval until the named node
// appears or timeout elapses, returning true as soon as it appears.
func (g *Gateway) WaitForNodeJoin(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		node, err := g.GetNode(ctx, name)
		if err != nil {
			return false, err
		}
		if node != nil {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		wait := time.Until(deadline)
		if wait > nodeJoinPollInterval {
			wait = nodeJoinPollInterval
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(wait):
		}
	}
}
