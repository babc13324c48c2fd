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

// Package router is the Event Router: the single subscription to
// node-readiness transitions for on-premise nodes, translating them into
// FailoverRecord creation or recovery signals. It is deliberately the
// only place that watches Node events for this purpose — spec.md §9
// calls out a reference bug where two handlers subscribed to the same
// event, and this package exists precisely so that mistake has nowhere
// to recur.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
	"github.com/hybridops/node-failover-operator/internal/cluster"
)

// OnpremLabel selects on-premise nodes.
const OnpremLabel = "node-type"

// OnpremLabelValue is OnpremLabel's value for on-premise nodes.
const OnpremLabelValue = "onpremise"

// Router reconciles on-premise Node objects into FailoverRecord state.
type Router struct {
	client     client.Client
	gateway    *cluster.Gateway
	copyLabels []string
}

// New constructs a Router. copyLabels is the GCP_NODE_COPY_LABELS
// allow-list used to derive targetNodeLabels on first failure.
func New(c client.Client, gateway *cluster.Gateway, copyLabels []string) *Router {
	return &Router{client: c, gateway: gateway, copyLabels: copyLabels}
}

// Reconcile implements the five cases in spec.md §4.5. Each case is
// phrased over the node's current readiness and the record's current
// phase, so duplicate events are naturally idempotent: re-running it on
// the same cluster state produces no additional writes.
func (r *Router) Reconcile(ctx context.Context, req reconcile.Request) (reconcile.Result, error) {
	logger := log.FromContext(ctx).WithValues("node", req.Name)

	node := &corev1.Node{}
	err := r.client.Get(ctx, req.NamespacedName, node)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return reconcile.Result{}, nil
		}
		return reconcile.Result{}, fmt.Errorf("router: getting node %s: %w", req.Name, err)
	}
	if node.Labels[OnpremLabel] != OnpremLabelValue {
		return reconcile.Result{}, nil
	}

	ready := isReady(node)
	record, err := r.getRecord(ctx, req.Name)
	if err != nil {
		return reconcile.Result{}, err
	}

	switch {
	case !ready && (record == nil || record.Status.Phase == failoverv1.PhaseCompleted):
		if record != nil {
			if err := r.deleteRecord(ctx, req.Name); err != nil {
				return reconcile.Result{}, err
			}
		}
		custom := cluster.FilterCustomLabels(node.Labels)
		target := cluster.IntersectAllowList(custom, r.copyLabels)
		if err := r.createRecord(ctx, req.Name, target); err != nil {
			return reconcile.Result{}, err
		}
		logger.Info("opened failover record", "targetLabels", target)

	case !ready:
		// Record already exists and is in flight; the Failover
		// Controller owns it from here.

	case ready && record != nil && notIn(record.Status.Phase, failoverv1.PhaseRecovering, failoverv1.PhaseDraining, failoverv1.PhaseCompleted):
		if err := r.markRecovering(ctx, req.Name); err != nil {
			return reconcile.Result{}, err
		}
		logger.Info("on-premise node recovered", "phase", failoverv1.PhaseRecovering)

	default:
		// ready && no record: nothing to do.
	}

	return reconcile.Result{}, nil
}

func isReady(node *corev1.Node) bool {
	for _, c := range node.Status.Conditions {
		if c.Type == corev1.NodeReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

func notIn(phase failoverv1.Phase, excluded ...failoverv1.Phase) bool {
	for _, p := range excluded {
		if phase == p {
			return false
		}
	}
	return true
}

// SetupWithManager registers the Router against Node events carrying the
// on-premise label, the single subscription spec.md §9 requires.
func (r *Router) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&corev1.Node{}, builder.WithPredicates(predicate.NewPredicateFuncs(func(obj client.Object) bool {
			return obj.GetLabels()[OnpremLabel] == OnpremLabelValue
		}))).
		Complete(r)
}

func (r *Router) getRecord(ctx context.Context, nodeName string) (*failoverv1.NodeFailover, error) {
	record := &failoverv1.NodeFailover{}
	err := r.client.Get(ctx, client.ObjectKey{Name: recordName(nodeName)}, record)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("router: getting record for %s: %w", nodeName, err)
	}
	return record, nil
}

func (r *Router) deleteRecord(ctx context.Context, nodeName string) error {
	record := &failoverv1.NodeFailover{ObjectMeta: metav1.ObjectMeta{Name: recordName(nodeName)}}
	if err := r.client.Delete(ctx, record); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("router: deleting completed record for %s: %w", nodeName, err)
	}
	return nil
}

func (r *Router) createRecord(ctx context.Context, nodeName string, target map[string]string) error {
	now := metav1.NewTime(time.Now())
	record := &failoverv1.NodeFailover{
		ObjectMeta: metav1.ObjectMeta{Name: recordName(nodeName)},
		Spec: failoverv1.NodeFailoverSpec{
			OnpremNodeName:   nodeName,
			TargetNodeLabels: target,
		},
	}
	if err := r.client.Create(ctx, record); err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("router: creating record for %s: %w", nodeName, err)
	}
	record.Status = failoverv1.NodeFailoverStatus{
		Phase:    failoverv1.PhasePending,
		FailedAt: &now,
	}
	if err := r.client.Status().Update(ctx, record); err != nil {
		return fmt.Errorf("router: initializing status for %s: %w", nodeName, err)
	}
	return nil
}

func (r *Router) markRecovering(ctx context.Context, nodeName string) error {
	record, err := r.getRecord(ctx, nodeName)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	original := record.DeepCopy()
	now := metav1.NewTime(time.Now())
	record.Status.Phase = failoverv1.PhaseRecovering
	record.Status.RecoveryDetectedAt = &now
	record.Status.Conditions = setCondition(record.Status.Conditions, failoverv1.ConditionOnPremRecovered, metav1.ConditionTrue, "NodeReady", "on-premise node reported ready")
	return r.client.Status().Patch(ctx, record, client.MergeFrom(original))
}

func setCondition(conditions []metav1.Condition, condType failoverv1.ConditionType, status metav1.ConditionStatus, reason, message string) []metav1.Condition {
	kept := make([]metav1.Condition, 0, len(conditions)+1)
	for _, c := range conditions {
		if c.Type != string(condType) {
			kept = append(kept, c)
		}
	}
	return append(kept, metav1.Condition{
		Type:               string(condType),
		Status:             status,
		Reason:             reason,
		Message:            message,
		LastTransitionTime: metav1.NewTime(time.Now()),
	})
}

func recordName(nodeName string) string {
	return strings.ToLower(nodeName)
}
