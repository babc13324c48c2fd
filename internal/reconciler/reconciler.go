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

// Package reconciler is the periodic sweep: it re-derives missing state
// from the cluster and cloud, drives stalled records forward, and
// garbage-collects orphaned cloud VMs. It runs once at startup (recovering
// state a restart lost) and then on a fixed cadence (driving the Draining
// -> Completed tail the Failover Controller doesn't own), the same split
// the teacher draws between its one-shot CRD readiness gate and its
// recurring disruption/consolidation controllers.
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
	"github.com/hybridops/node-failover-operator/internal/cloud"
	"github.com/hybridops/node-failover-operator/internal/cluster"
	"github.com/hybridops/node-failover-operator/internal/config"
	"github.com/hybridops/node-failover-operator/internal/router"
	"github.com/hybridops/node-failover-operator/internal/store"
)

// vmNamePrefix mirrors internal/controller's generated-name prefix. Kept
// independent (not imported) because internal/controller depends on
// internal/store/internal/cluster/internal/cloud already and importing it
// back here solely for a string constant would create a needless
// near-cycle; both packages derive the same prefix from spec.md §4.6's
// literal "cloud-temp-<sanitized nodeName>-" contract.
const vmNamePrefix = "cloud-temp-"

// Reconciler runs the startup and periodic sweeps described in spec.md
// §4.7.
type Reconciler struct {
	client  client.Client
	store   *store.Store
	cluster *cluster.Gateway
	cloud   cloud.InstanceGateway
}

// New constructs a Reconciler.
func New(c client.Client, s *store.Store, clusterGW *cluster.Gateway, cloudGW cloud.InstanceGateway) *Reconciler {
	return &Reconciler{client: c, store: s, cluster: clusterGW, cloud: cloudGW}
}

// Start implements manager.Runnable: it runs the startup pass once, then
// the periodic pass on RECONCILIATION_INTERVAL_SECONDS until ctx is
// canceled.
func (r *Reconciler) Start(ctx context.Context) error {
	logger := log.FromContext(ctx).WithName("reconciler")
	ctx = log.IntoContext(ctx, logger)

	if err := r.startupPass(ctx); err != nil {
		logger.Error(err, "startup reconciliation pass failed")
	}

	interval := config.FromContext(ctx).ReconciliationInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.periodicPass(ctx); err != nil {
				logger.Error(err, "periodic reconciliation pass failed")
			}
		}
	}
}

// NeedLeaderElection reports that the sweep must not run concurrently
// from more than one controller replica: corrections like adopting a VM
// or deleting an orphan are not safe to race the same way VM creation is
// (that path has its own Distributed Lock; this one doesn't need a
// second lock because leader election already serializes it).
func (r *Reconciler) NeedLeaderElection() bool { return true }

// sanitizeNodeName matches internal/controller's sanitization so the
// managed-VM-prefix match below lines up with how names are generated.
func sanitizeNodeName(name string) string {
	lower := strings.ToLower(name)
	lower = strings.ReplaceAll(lower, "_", "-")
	var b strings.Builder
	for _, rn := range lower {
		if (rn >= 'a' && rn <= 'z') || (rn >= '0' && rn <= '9') || rn == '-' {
			b.WriteRune(rn)
		}
	}
	sanitized := b.String()
	if sanitized == "" || !(sanitized[0] >= 'a' && sanitized[0] <= 'z') {
		sanitized = "node-" + sanitized
	}
	if len(sanitized) > 63 {
		sanitized = sanitized[:63]
	}
	return strings.TrimRight(sanitized, "-")
}

func vmPrefixFor(nodeName string) string {
	return vmNamePrefix + sanitizeNodeName(nodeName) + "-"
}

// startupPass implements spec.md §4.7's startup pass: for every
// on-premise node, reconcile the union of node state, existing record,
// and matching cloud VMs. Running it twice in a row on unchanged cluster
// state is a no-op both times (spec.md §8's determinism property), since
// every branch below first checks whether the correction it would make
// is already in place.
func (r *Reconciler) startupPass(ctx context.Context) error {
	logger := log.FromContext(ctx)

	nodes, err := r.cluster.ListNodes(ctx, client.MatchingLabels{router.OnpremLabel: router.OnpremLabelValue})
	if err != nil {
		return fmt.Errorf("reconciler: listing on-premise nodes: %w", err)
	}

	managedVMs, err := r.cloud.ListManagedInstances(ctx)
	if err != nil {
		return fmt.Errorf("reconciler: listing managed instances: %w", err)
	}

	for _, node := range nodes {
		if err := r.reconcileNodeAtStartup(ctx, node.Name, managedVMs); err != nil {
			logger.Error(err, "startup reconciliation failed for node", "node", node.Name)
		}
	}

	return r.garbageCollectOrphans(ctx, managedVMs)
}

func (r *Reconciler) reconcileNodeAtStartup(ctx context.Context, nodeName string, managedVMs []string) error {
	logger := log.FromContext(ctx).WithValues("node", nodeName)

	ready, err := r.cluster.IsNodeReady(ctx, nodeName)
	if err != nil {
		return fmt.Errorf("checking readiness: %w", err)
	}
	record, err := r.store.Get(ctx, nodeName)
	if err != nil {
		return fmt.Errorf("reading record: %w", err)
	}

	matchingVM := findByPrefix(managedVMs, vmPrefixFor(nodeName))
	unready := ready == cluster.ReadinessFalse

	switch {
	case record == nil && unready && matchingVM != "":
		logger.Info("synthesizing Active record for orphaned substitute found at startup", "vm", matchingVM)
		if _, err := r.store.Create(ctx, nodeName, nil); err != nil {
			return err
		}
		phase := failoverv1.PhaseActive
		if err := r.store.UpdateStatus(ctx, nodeName, store.StatusPatch{Phase: &phase, CloudVmName: &matchingVM}); err != nil {
			return err
		}
		_ = r.store.SetCondition(ctx, nodeName, failoverv1.ConditionVMCreated, metav1.ConditionTrue, "StartupReconciled", "adopted pre-existing substitute at startup")
		_ = r.store.SetCondition(ctx, nodeName, failoverv1.ConditionNodeJoined, metav1.ConditionTrue, "StartupReconciled", "substitute already registered at startup")
		if err := r.cluster.ApplyOutOfServiceTaint(ctx, nodeName); err != nil {
			return fmt.Errorf("applying out-of-service taint: %w", err)
		}

	case record == nil && unready && matchingVM == "":
		logger.Info("creating Pending record for unready node discovered at startup")
		targetLabels, err := r.cluster.GetNodeCustomLabels(ctx, nodeName)
		if err != nil {
			return err
		}
		if _, err := r.store.Create(ctx, nodeName, targetLabels); err != nil {
			return err
		}

	case record != nil && record.Status.Phase == failoverv1.PhaseActive && ready == cluster.ReadinessTrue:
		logger.Info("on-premise node recovered while controller was down; transitioning to Recovering")
		now := time.Now()
		phase := failoverv1.PhaseRecovering
		if err := r.store.UpdateStatus(ctx, nodeName, store.StatusPatch{Phase: &phase, RecoveryDetectedAt: &now}); err != nil {
			return err
		}
		_ = r.store.SetCondition(ctx, nodeName, failoverv1.ConditionOnPremRecovered, metav1.ConditionTrue, "NodeReady", "on-premise node reported ready")

	case record != nil && !record.Status.Phase.IsTerminal() && record.Status.CloudVmName != "":
		if err := r.reapplyExpectedLabels(ctx, record); err != nil {
			return fmt.Errorf("reapplying labels: %w", err)
		}
	}

	return nil
}

// reapplyExpectedLabels re-patches a joined substitute with its expected
// label set if any are missing or stale, per spec.md §4.7's fourth
// startup-pass correction.
func (r *Reconciler) reapplyExpectedLabels(ctx context.Context, record *failoverv1.NodeFailover) error {
	node, err := r.cluster.GetNode(ctx, record.Status.CloudVmName)
	if err != nil || node == nil {
		return err
	}
	expected := map[string]string{
		"node-type":     "gcp-temporary",
		"node-location": "gcp",
	}
	for k, v := range record.Spec.TargetNodeLabels {
		expected[k] = v
	}
	stale := false
	for k, v := range expected {
		if node.Labels[k] != v {
			stale = true
			break
		}
	}
	if !stale {
		return nil
	}
	return r.cluster.PatchNodeLabels(ctx, record.Status.CloudVmName, expected)
}

// garbageCollectOrphans deletes managed cloud VMs that no current record
// references, such as a substitute left behind after its record was
// deleted (the Event Router deletes a Completed record when its node
// fails again and starts a fresh cycle with no memory of the old VM).
func (r *Reconciler) garbageCollectOrphans(ctx context.Context, managedVMs []string) error {
	records, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing records for orphan scan: %w", err)
	}
	referenced := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if rec.Status.CloudVmName != "" {
			referenced[rec.Status.CloudVmName] = struct{}{}
		}
	}

	for _, vm := range managedVMs {
		if !strings.HasPrefix(vm, vmNamePrefix) {
			continue
		}
		if _, ok := referenced[vm]; ok {
			continue
		}
		log.FromContext(ctx).Info("deleting orphaned cloud substitute with no owning record", "vm", vm)
		if _, err := r.cloud.DeleteInstance(ctx, vm); err != nil {
			log.FromContext(ctx).Error(err, "deleting orphaned substitute", "vm", vm)
		}
	}
	return nil
}

func findByPrefix(names []string, prefix string) string {
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			return n
		}
	}
	return ""
}
