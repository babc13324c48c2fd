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

	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
	"github.com/hybridops/node-failover-operator/internal/cluster"
	"github.com/hybridops/node-failover-operator/internal/config"
	"github.com/hybridops/node-failover-operator/internal/store"
)

// handleActive implements spec.md §4.6's Active phase handler: sleep the
// recovery dwell, re-check on-premise readiness, and either transition to
// Recovering or apply the out-of-service taint and remain Active. This
// runs once per entry into Active; the node flapping unready->ready->unready
// again while Active is absorbed by re-running this same handler, since
// the record stays Active the whole time and no second handler is ever
// spawned while one is in flight (Controller.spawnOnce).
//
// spec.md §4.6's prose names a flat 300s sleep; this implementation uses
// the configurable ONPREM_RECOVERY_WAIT_MINUTES instead (default 600s),
// since spec.md §6 ties that variable's documented effect -- "dwell after
// recovery before tainting" -- to exactly this wait. See DESIGN.md.
func (c *Controller) handleActive(ctx context.Context, nodeName string) {
	record, err := c.store.Get(ctx, nodeName)
	if err != nil || record == nil {
		return
	}

	for {
		grace := config.FromContext(ctx).OnpremRecoveryWait
		select {
		case <-ctx.Done():
			return
		case <-time.After(grace):
		}

		ready, err := c.cluster.IsNodeReady(ctx, nodeName)
		if err != nil {
			c.recordFailure(ctx, nodeName, failoverv1.ConditionTaintApplied, "ReadinessCheckFailed", err)
			return
		}

		if ready == cluster.ReadinessTrue {
			now := time.Now()
			if err := c.store.UpdateStatus(ctx, nodeName, store.StatusPatch{
				Phase:              phasePtr(failoverv1.PhaseRecovering),
				RecoveryDetectedAt: &now,
			}); err != nil {
				c.recordFailure(ctx, nodeName, failoverv1.ConditionOnPremRecovered, "StatusUpdateFailed", err)
				return
			}
			_ = c.store.SetCondition(ctx, nodeName, failoverv1.ConditionOnPremRecovered, metav1.ConditionTrue, "NodeReady", "on-premise node reported ready")
			return
		}

		if err := c.cluster.ApplyOutOfServiceTaint(ctx, nodeName); err != nil {
			c.recordFailure(ctx, nodeName, failoverv1.ConditionTaintApplied, "TaintFailed", err)
			return
		}
		_ = c.store.SetCondition(ctx, nodeName, failoverv1.ConditionTaintApplied, metav1.ConditionTrue, "OutOfServiceTainted", "out-of-service taint applied to on-premise node")
		// Remain Active; loop to re-check readiness after another dwell.
	}
}

func phasePtr(p failoverv1.Phase) *failoverv1.Phase { return &p }
