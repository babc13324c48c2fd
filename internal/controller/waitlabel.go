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

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
)

// nodeJoinTimeout is the bound spec.md §4.6's waitAndLabel polls
// WaitForNodeJoin against.
const nodeJoinTimeout = 300 * time.Second

// substituteNodeType/-Location are the labels every substitute carries
// once joined, merged with the record's targetNodeLabels.
const (
	substituteNodeType     = "node-type"
	substituteNodeTypeVal  = "gcp-temporary"
	substituteNodeLocation = "node-location"
	substituteLocationVal  = "gcp"
)

// waitAndLabel implements spec.md §4.6's waitAndLabel: poll for the
// substitute to register as a cluster node, then patch it with the
// scheduling labels it must inherit and advance the record to Active. On
// timeout the partially created VM is deleted so the next attempt starts
// clean (spec.md §7's "Join timeout" error kind).
func (c *Controller) waitAndLabel(ctx context.Context, nodeName, vmName string) {
	record, err := c.store.Get(ctx, nodeName)
	if err != nil || record == nil {
		return
	}

	joined, err := c.cluster.WaitForNodeJoin(ctx, vmName, nodeJoinTimeout)
	if err != nil {
		c.recordFailure(ctx, nodeName, failoverv1.ConditionNodeJoined, "JoinWaitError", err)
		return
	}
	if !joined {
		log.FromContext(ctx).Info("substitute did not join within timeout; deleting for a clean retry", "node", nodeName, "vm", vmName)
		_ = c.store.SetCondition(ctx, nodeName, failoverv1.ConditionNodeJoined, metav1.ConditionFalse, "JoinTimeout", "substitute did not register as a cluster node within the timeout")
		if _, err := c.cloud.DeleteInstance(ctx, vmName); err != nil {
			log.FromContext(ctx).Error(err, "deleting unjoined substitute", "vm", vmName)
		}
		return
	}

	labels := map[string]string{
		substituteNodeType:     substituteNodeTypeVal,
		substituteNodeLocation: substituteLocationVal,
	}
	for k, v := range record.Spec.TargetNodeLabels {
		labels[k] = v
	}
	if err := c.cluster.PatchNodeLabels(ctx, vmName, labels); err != nil {
		c.recordFailure(ctx, nodeName, failoverv1.ConditionNodeJoined, "LabelPatchFailed", err)
		return
	}

	_ = c.store.SetCondition(ctx, nodeName, failoverv1.ConditionNodeJoined, metav1.ConditionTrue, "NodeRegistered", "substitute "+vmName+" joined and labeled")
	if err := c.store.UpdateStatus(ctx, nodeName, storePhasePatch(failoverv1.PhaseActive)); err != nil {
		c.recordFailure(ctx, nodeName, failoverv1.ConditionNodeJoined, "StatusUpdateFailed", err)
	}
}
