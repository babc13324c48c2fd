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

package reconciler

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
	"github.com/hybridops/node-failover-operator/internal/config"
	"github.com/hybridops/node-failover-operator/internal/store"
)

// periodicPass implements spec.md §4.7's periodic pass: drive every
// Draining record toward Completed or log that it's still waiting.
func (r *Reconciler) periodicPass(ctx context.Context) error {
	records, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("reconciler: listing records: %w", err)
	}
	for i := range records {
		rec := &records[i]
		if rec.Status.Phase != failoverv1.PhaseDraining {
			continue
		}
		if err := r.reconcileDraining(ctx, rec); err != nil {
			log.FromContext(ctx).Error(err, "periodic drain reconciliation failed", "node", rec.Spec.OnpremNodeName)
		}
	}
	return nil
}

// reconcileDraining implements spec.md §4.7's two-step Draining handling:
// detect a substitute whose cluster node already vanished (finish
// cleanup), otherwise count allocated stateful instances and either
// complete the drain, log a loud but non-destructive timeout, or keep
// waiting.
func (r *Reconciler) reconcileDraining(ctx context.Context, record *failoverv1.NodeFailover) error {
	nodeName := record.Spec.OnpremNodeName
	vmName := record.Status.CloudVmName
	if vmName == "" {
		return fmt.Errorf("draining record has no cloudVmName")
	}

	clusterNode, err := r.cluster.GetNode(ctx, vmName)
	if err != nil {
		return fmt.Errorf("getting substitute node %s: %w", vmName, err)
	}
	if clusterNode == nil {
		vmExists, err := r.cloud.InstanceExists(ctx, vmName)
		if err != nil {
			return fmt.Errorf("checking instance existence for %s: %w", vmName, err)
		}
		if vmExists {
			if _, err := r.cloud.DeleteInstance(ctx, vmName); err != nil {
				return fmt.Errorf("deleting orphaned vm %s: %w", vmName, err)
			}
		}
		return r.completeDraining(ctx, nodeName)
	}

	count := r.cluster.CountAllocatedStatefulInstances(ctx, vmName)
	if count == 0 {
		_ = r.store.SetCondition(ctx, nodeName, failoverv1.ConditionGameServersDrained, metav1.ConditionTrue, "DrainComplete", "no allocated stateful instances remain on substitute")
		if err := r.cluster.CordonNode(ctx, vmName); err != nil {
			return fmt.Errorf("cordoning substitute %s: %w", vmName, err)
		}
		if err := r.cluster.DeleteNode(ctx, vmName); err != nil {
			return fmt.Errorf("deleting substitute node %s: %w", vmName, err)
		}
		if _, err := r.cloud.DeleteInstance(ctx, vmName); err != nil {
			return fmt.Errorf("deleting substitute vm %s: %w", vmName, err)
		}
		return r.completeDraining(ctx, nodeName)
	}

	if record.Status.RecoveryDetectedAt != nil {
		maxWait := config.FromContext(ctx).GameserverMaxWait
		if time.Since(record.Status.RecoveryDetectedAt.Time) > maxWait {
			log.FromContext(ctx).Error(
				fmt.Errorf("stateful workload drain exceeded %s", maxWait),
				"substitute still draining past the maximum wait; taking no destructive action",
				"node", nodeName, "vm", vmName, "remainingInstances", count,
			)
			return nil
		}
	}

	log.FromContext(ctx).Info("waiting for stateful workload drain", "node", nodeName, "vm", vmName, "remainingInstances", count)
	return nil
}

func (r *Reconciler) completeDraining(ctx context.Context, nodeName string) error {
	phase := failoverv1.PhaseCompleted
	return r.store.UpdateStatus(ctx, nodeName, store.StatusPatch{Phase: &phase})
}
