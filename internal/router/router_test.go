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

package router_test

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"sigs.k8s.io/controller-runtime/pkg/client"
	fakeclient "sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
	"github.com/hybridops/node-failover-operator/internal/cluster"
	"github.com/hybridops/node-failover-operator/internal/router"
)

func newTestSetup(t *testing.T) (client.Client, *router.Router) {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := failoverv1.AddToScheme(scheme); err != nil {
		t.Fatal(err)
	}
	if err := corev1.AddToScheme(scheme); err != nil {
		t.Fatal(err)
	}
	c := fakeclient.NewClientBuilder().
		WithScheme(scheme).
		WithStatusSubresource(&failoverv1.NodeFailover{}).
		Build()
	dynClient := dynamicfake.NewSimpleDynamicClient(scheme)
	gw := cluster.New(c, dynClient, cluster.WorkloadSelector{
		Group: "agones.dev", Version: "v1", Resource: "gameservers",
		NodeNameField: "nodeName", StateField: "state", AllocatedValue: "Allocated",
	})
	return c, router.New(c, gw, nil)
}

func node(name string, ready bool, labels map[string]string) *corev1.Node {
	status := corev1.ConditionFalse
	if ready {
		status = corev1.ConditionTrue
	}
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels},
		Status:     corev1.NodeStatus{Conditions: []corev1.NodeCondition{{Type: corev1.NodeReady, Status: status}}},
	}
}

func getRecord(t *testing.T, c client.Client, name string) *failoverv1.NodeFailover {
	t.Helper()
	record := &failoverv1.NodeFailover{}
	err := c.Get(context.Background(), client.ObjectKey{Name: name}, record)
	if err != nil {
		if client.IgnoreNotFound(err) != nil {
			t.Fatal(err)
		}
		return nil
	}
	return record
}

func TestReconcile_UnreadyOnpremNodeWithNoRecordOpensFailover(t *testing.T) {
	ctx := context.Background()
	c, r := newTestSetup(t)

	n := node("worker-01", false, map[string]string{router.OnpremLabel: router.OnpremLabelValue, "gpu": "yes"})
	if err := c.Create(ctx, n); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: client.ObjectKey{Name: "worker-01"}}); err != nil {
		t.Fatal(err)
	}

	record := getRecord(t, c, "worker-01")
	if record == nil {
		t.Fatal("expected a record to be created")
	}
	if record.Status.Phase != failoverv1.PhasePending {
		t.Errorf("phase = %q, want Pending", record.Status.Phase)
	}
}

func TestReconcile_IgnoresNonOnpremNodes(t *testing.T) {
	ctx := context.Background()
	c, r := newTestSetup(t)

	n := node("cloud-temp-worker-02-123", false, map[string]string{"node-type": "gcp-temporary"})
	if err := c.Create(ctx, n); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: client.ObjectKey{Name: "cloud-temp-worker-02-123"}}); err != nil {
		t.Fatal(err)
	}

	if record := getRecord(t, c, "cloud-temp-worker-02-123"); record != nil {
		t.Error("expected no record for a non-on-premise node")
	}
}

func TestReconcile_RecoveredNodeMarksRecordRecovering(t *testing.T) {
	ctx := context.Background()
	c, r := newTestSetup(t)

	n := node("worker-03", true, map[string]string{router.OnpremLabel: router.OnpremLabelValue})
	if err := c.Create(ctx, n); err != nil {
		t.Fatal(err)
	}
	record := &failoverv1.NodeFailover{ObjectMeta: metav1.ObjectMeta{Name: "worker-03"}}
	if err := c.Create(ctx, record); err != nil {
		t.Fatal(err)
	}
	record.Status = failoverv1.NodeFailoverStatus{Phase: failoverv1.PhaseActive}
	if err := c.Status().Update(ctx, record); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: client.ObjectKey{Name: "worker-03"}}); err != nil {
		t.Fatal(err)
	}

	updated := getRecord(t, c, "worker-03")
	if updated == nil {
		t.Fatal("expected record to still exist")
	}
	if updated.Status.Phase != failoverv1.PhaseRecovering {
		t.Errorf("phase = %q, want Recovering", updated.Status.Phase)
	}
}

func TestReconcile_ReFailureAfterCompletionDeletesOldRecordAndStartsFresh(t *testing.T) {
	ctx := context.Background()
	c, r := newTestSetup(t)

	n := node("worker-04", false, map[string]string{router.OnpremLabel: router.OnpremLabelValue})
	if err := c.Create(ctx, n); err != nil {
		t.Fatal(err)
	}
	record := &failoverv1.NodeFailover{ObjectMeta: metav1.ObjectMeta{Name: "worker-04"}}
	if err := c.Create(ctx, record); err != nil {
		t.Fatal(err)
	}
	record.Status = failoverv1.NodeFailoverStatus{Phase: failoverv1.PhaseCompleted}
	if err := c.Status().Update(ctx, record); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: client.ObjectKey{Name: "worker-04"}}); err != nil {
		t.Fatal(err)
	}

	updated := getRecord(t, c, "worker-04")
	if updated == nil {
		t.Fatal("expected a fresh record")
	}
	if updated.Status.Phase != failoverv1.PhasePending {
		t.Errorf("phase = %q, want Pending (fresh cycle)", updated.Status.Phase)
	}
}
