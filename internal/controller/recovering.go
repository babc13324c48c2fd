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

	corev1 "k8s.io/api/core/v1"

	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
	"github.com/hybridops/node-failover-operator/internal/cluster"
)

// handleRecovering implements spec.md §4.6's Recovering phase handler:
// remove the out-of-service taint from the on-premise node (idempotent)
// and transition to Draining. It additionally taints the cloud substitute
// with the spec.md §6 drain taint (temporary-node=draining:NoSchedule) so
// it stops accepting new workloads while in-flight stateful instances
// finish -- the step spec.md §1's overview describes ("taints the cloud
// substitute to stop new admissions") but which §4.6/§4.7's numbered
// steps never spell out explicitly; this is where it structurally
// belongs, as the one-time action taken on entry to the drain wait.
func (c *Controller) handleRecovering(ctx context.Context, nodeName string) {
	if err := c.cluster.RemoveNodeTaint(ctx, nodeName, cluster.OutOfServiceTaintKey); err != nil {
		c.recordFailure(ctx, nodeName, failoverv1.ConditionOnPremRecovered, "TaintRemovalFailed", err)
		return
	}

	record, err := c.store.Get(ctx, nodeName)
	if err != nil || record == nil {
		return
	}
	if vmName := record.Status.CloudVmName; vmName != "" {
		if err := c.cluster.AddNodeTaint(ctx, vmName, cluster.DrainTaintKey, cluster.DrainTaintValue, corev1.TaintEffectNoSchedule); err != nil {
			c.recordFailure(ctx, nodeName, failoverv1.ConditionOnPremRecovered, "DrainTaintFailed", err)
			return
		}
	}

	if err := c.store.UpdateStatus(ctx, nodeName, storePhasePatch(failoverv1.PhaseDraining)); err != nil {
		c.recordFailure(ctx, nodeName, failoverv1.ConditionOnPremRecovered, "StatusUpdateFailed", err)
	}
}
