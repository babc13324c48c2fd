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
	"context"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
	"github.com/hybridops/node-failover-operator/internal/cluster"
	"github.com/hybridops/node-failover-operator/internal/config"
)

// handlePending implements spec.md §4.6's Pending -> Creating transition:
// sleep the anti-flap grace period, re-check readiness, and either close
// the cycle out as Completed (the node recovered before the grace
// expired) or hand off into createFailoverVm. A grace of zero must still
// work correctly (spec.md §8's boundary behavior) -- sleeping for 0 just
// returns immediately and falls straight into the re-check, no special
// case needed.
func (c *Controller) handlePending(ctx context.Context, nodeName string) {
	grace := config.FromContext(ctx).NodeFlappingGrace
	select {
	case <-ctx.Done():
		return
	case <-time.After(grace):
	}

	ready, err := c.cluster.IsNodeReady(ctx, nodeName)
	if err != nil {
		c.recordFailure(ctx, nodeName, failoverv1.ConditionVMCreated, "ReadinessCheckFailed", err)
		return
	}
	if ready == cluster.ReadinessTrue {
		phase := failoverv1.PhaseCompleted
		if err := c.store.UpdateStatus(ctx, nodeName, storePhasePatch(phase)); err != nil {
			log.FromContext(ctx).Error(err, "marking flap-absorbed record completed", "node", nodeName)
		}
		return
	}

	c.createFailoverVm(ctx, nodeName)
}
