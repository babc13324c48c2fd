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

// Package cluster is the Cluster Gateway: every read, watch, and mutation
// this controller performs against the Kubernetes API goes through the
// thin wrapper in this package, one method per operation, the way the
// teacher's pkg/aws wraps the EC2 SDK behind AWSClient.
package cluster

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/dynamic"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Readiness is the tri-state result of isNodeReady: a missing node is
// "unknown", never "false", so callers never mistake absence for failure.
type Readiness int

const (
	ReadinessUnknown Readiness = iota
	ReadinessTrue
	ReadinessFalse
)

func (r Readiness) String() string {
	switch r {
	case ReadinessTrue:
		return "true"
	case ReadinessFalse:
		return "false"
	default:
		return "unknown"
	}
}

// Gateway wraps the controller-runtime client plus a dynamic client for
// the configurable stateful-workload kind. It holds no other state and is
// safe for concurrent use across reconcile goroutines, matching the
// concurrency expectations the reference AWSClient's SDK clients carry.
type Gateway struct {
	client  client.Client
	dynamic dynamic.Interface

	workload WorkloadSelector
}

// New constructs a Gateway. workload configures which custom resource kind
// is counted by CountAllocatedStatefulInstances.
func New(c client.Client, dyn dynamic.Interface, workload WorkloadSelector) *Gateway {
	return &Gateway{client: c, dynamic: dyn, workload: workload}
}

// IsNodeReady resolves readiness from the node's Ready condition. A
// missing node yields ReadinessUnknown, never ReadinessFalse, so a
// transient API outage is never mistaken for a genuine failure.
func (g *Gateway) IsNodeReady(ctx context.Context, name string) (Readiness, error) {
	node := &corev1.Node{}
	if err := g.client.Get(ctx, client.ObjectKey{Name: name}, node); err != nil {
		if apierrors.IsNotFound(err) {
			return ReadinessUnknown, nil
		}
		return ReadinessUnknown, fmt.Errorf("cluster: getting node %s: %w", name, err)
	}
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			if cond.Status == corev1.ConditionTrue {
				return ReadinessTrue, nil
			}
			return ReadinessFalse, nil
		}
	}
	return ReadinessUnknown, nil
}

// ListNodes returns nodes matching labelSelector.
func (g *Gateway) ListNodes(ctx context.Context, labelSelector client.MatchingLabels) ([]corev1.Node, error) {
	list := &corev1.NodeList{}
	if err := g.client.List(ctx, list, labelSelector); err != nil {
		return nil, fmt.Errorf("cluster: listing nodes: %w", err)
	}
	return list.Items, nil
}

// GetNode returns the node, or nil if it does not exist.
func (g *Gateway) GetNode(ctx context.Context, name string) (*corev1.Node, error) {
	node := &corev1.Node{}
	if err := g.client.Get(ctx, client.ObjectKey{Name: name}, node); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cluster: getting node %s: %w", name, err)
	}
	return node, nil
}

// PatchNodeLabels merges labels into the node, never removing existing
// ones.
func (g *Gateway) PatchNodeLabels(ctx context.Context, name string, labels map[string]string) error {
	node := &corev1.Node{}
	if err := g.client.Get(ctx, client.ObjectKey{Name: name}, node); err != nil {
		return fmt.Errorf("cluster: getting node %s for label patch: %w", name, err)
	}
	original := node.DeepCopy()
	if node.Labels == nil {
		node.Labels = map[string]string{}
	}
	for k, v := range labels {
		node.Labels[k] = v
	}
	if err := g.client.Patch(ctx, node, client.MergeFrom(original)); err != nil {
		return fmt.Errorf("cluster: patching labels on node %s: %w", name, err)
	}
	return nil
}

// AddNodeTaint idempotently adds a taint; if one with this key already
// exists, it returns success without re-adding.
func (g *Gateway) AddNodeTaint(ctx context.Context, name, key, value string, effect corev1.TaintEffect) error {
	node := &corev1.Node{}
	if err := g.client.Get(ctx, client.ObjectKey{Name: name}, node); err != nil {
		return fmt.Errorf("cluster: getting node %s for taint: %w", name, err)
	}
	for _, t := range node.Spec.Taints {
		if t.Key == key {
			return nil
		}
	}
	original := node.DeepCopy()
	node.Spec.Taints = append(node.Spec.Taints, corev1.Taint{Key: key, Value: value, Effect: effect})
	if err := g.client.Patch(ctx, node, client.MergeFrom(original)); err != nil {
		return fmt.Errorf("cluster: adding taint %s to node %s: %w", key, name, err)
	}
	return nil
}

// RemoveNodeTaint idempotently removes any taint with the given key.
func (g *Gateway) RemoveNodeTaint(ctx context.Context, name, key string) error {
	node := &corev1.Node{}
	if err := g.client.Get(ctx, client.ObjectKey{Name: name}, node); err != nil {
		return fmt.Errorf("cluster: getting node %s for taint removal: %w", name, err)
	}
	kept := node.Spec.Taints[:0]
	found := false
	for _, t := range node.Spec.Taints {
		if t.Key == key {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	if !found {
		return nil
	}
	original := node.DeepCopy()
	node.Spec.Taints = kept
	if err := g.client.Patch(ctx, node, client.MergeFrom(original)); err != nil {
		return fmt.Errorf("cluster: removing taint %s from node %s: %w", key, name, err)
	}
	return nil
}

const (
	// OutOfServiceTaintKey is the standardized key that causes the
	// platform to force-terminate pods on a failed node.
	OutOfServiceTaintKey = "node.kubernetes.io/out-of-service"
	// OutOfServiceTaintValue is the documented value paired with the key.
	OutOfServiceTaintValue = "nodeshutdown"

	// DrainTaintKey/Value mark a substitute as draining, blocking new
	// admissions while in-flight stateful workloads finish.
	DrainTaintKey   = "temporary-node"
	DrainTaintValue = "draining"
)

// ApplyOutOfServiceTaint adds the standard out-of-service taint with
// effect NoExecute, idempotently.
func (g *Gateway) ApplyOutOfServiceTaint(ctx context.Context, name string) error {
	return g.AddNodeTaint(ctx, name, OutOfServiceTaintKey, OutOfServiceTaintValue, corev1.TaintEffectNoExecute)
}

// CordonNode marks the node unschedulable, idempotently.
func (g *Gateway) CordonNode(ctx context.Context, name string) error {
	node := &corev1.Node{}
	if err := g.client.Get(ctx, client.ObjectKey{Name: name}, node); err != nil {
		return fmt.Errorf("cluster: getting node %s to cordon: %w", name, err)
	}
	if node.Spec.Unschedulable {
		return nil
	}
	original := node.DeepCopy()
	node.Spec.Unschedulable = true
	if err := g.client.Patch(ctx, node, client.MergeFrom(original)); err != nil {
		return fmt.Errorf("cluster: cordoning node %s: %w", name, err)
	}
	return nil
}

// DeleteNode deletes the node object, returning success if it is already
// absent.
func (g *Gateway) DeleteNode(ctx context.Context, name string) error {
	node := &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: name}}
	if err := g.client.Delete(ctx, node); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("cluster: deleting node %s: %w", name, err)
	}
	return nil
}
