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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"sigs.k8s.io/controller-runtime/pkg/client"
	fakeclient "sigs.k8s.io/controller-runtime/pkg/client/fake"

	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
	cloudfake "github.com/hybridops/node-failover-operator/internal/cloud/fake"
	"github.com/hybridops/node-failover-operator/internal/cluster"
	"github.com/hybridops/node-failover-operator/internal/config"
	"github.com/hybridops/node-failover-operator/internal/lock"
	"github.com/hybridops/node-failover-operator/internal/store"
)

func newTestController() (*Controller, *store.Store) {
	scheme := runtime.NewScheme()
	_ = failoverv1.AddToScheme(scheme)
	_ = corev1.AddToScheme(scheme)

	c := fakeclient.NewClientBuilder().
		WithScheme(scheme).
		WithStatusSubresource(&failoverv1.NodeFailover{}).
		Build()

	dynClient := dynamicfake.NewSimpleDynamicClient(scheme)
	clusterGW := cluster.New(c, dynClient, cluster.WorkloadSelector{
		Group: "agones.dev", Version: "v1", Resource: "gameservers",
		NodeNameField: "nodeName", StateField: "state", AllocatedValue: "Allocated",
	})

	s := store.New(c)
	locker := lock.New(c, "default", "test-controller")
	return New(c, s, clusterGW, cloudfake.New(), locker), s
}

func testContext() context.Context {
	opts := config.Options{
		NodeFlappingGrace:      10 * time.Millisecond,
		MaxVMCreationAttempts:  3,
		OnpremRecoveryWait:     10 * time.Millisecond,
		ReconciliationInterval: time.Second,
		GameserverMaxWait:      time.Hour,
		LockNamespace:          "default",
	}
	return config.Into(context.Background(), opts)
}

func newNode(name string, ready bool) *corev1.Node {
	status := corev1.ConditionFalse
	if ready {
		status = corev1.ConditionTrue
	}
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{{Type: corev1.NodeReady, Status: status}},
		},
	}
}

var _ = Describe("handlePending", func() {
	It("absorbs a flap and marks the record Completed if the node recovers within the grace period", func() {
		ctx := testContext()
		c, s := newTestController()

		Expect(c.client.Create(ctx, newNode("worker-01", true))).To(Succeed())
		_, err := s.Create(ctx, "worker-01", nil)
		Expect(err).NotTo(HaveOccurred())

		c.handlePending(ctx, "worker-01")

		record, err := s.Get(ctx, "worker-01")
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Status.Phase).To(Equal(failoverv1.PhaseCompleted))
	})

	It("hands off to VM creation when the node is still unready after the grace period", func() {
		// attemptCreate will fail here (no cluster-info ConfigMap seeded
		// in the fake client), driving createFailoverVm into its backoff
		// sleep; bound the context tightly so the test doesn't wait out a
		// real multi-minute backoff before observing the first attempt.
		ctx, cancel := context.WithTimeout(testContext(), 300*time.Millisecond)
		defer cancel()
		c, s := newTestController()

		Expect(c.client.Create(ctx, newNode("worker-02", false))).To(Succeed())
		_, err := s.Create(ctx, "worker-02", nil)
		Expect(err).NotTo(HaveOccurred())

		c.handlePending(ctx, "worker-02")

		record, err := s.Get(context.Background(), "worker-02")
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Status.Phase).NotTo(Equal(failoverv1.PhasePending))
		Expect(record.Status.VMCreationAttempts).To(BeNumerically(">=", int32(1)))
	})
})

var _ = Describe("handleRecovering", func() {
	It("removes the on-premise out-of-service taint, taints the substitute, and transitions to Draining", func() {
		ctx := testContext()
		c, s := newTestController()

		onprem := newNode("worker-03", true)
		onprem.Spec.Taints = []corev1.Taint{{
			Key: cluster.OutOfServiceTaintKey, Value: cluster.OutOfServiceTaintValue, Effect: corev1.TaintEffectNoExecute,
		}}
		Expect(c.client.Create(ctx, onprem)).To(Succeed())
		Expect(c.client.Create(ctx, newNode("cloud-temp-worker-03-1700000000", true))).To(Succeed())

		_, err := s.Create(ctx, "worker-03", nil)
		Expect(err).NotTo(HaveOccurred())
		vmName := "cloud-temp-worker-03-1700000000"
		Expect(s.UpdateStatus(ctx, "worker-03", store.StatusPatch{CloudVmName: &vmName})).To(Succeed())

		c.handleRecovering(ctx, "worker-03")

		updatedOnprem := &corev1.Node{}
		Expect(c.client.Get(ctx, client.ObjectKey{Name: "worker-03"}, updatedOnprem)).To(Succeed())
		for _, t := range updatedOnprem.Spec.Taints {
			Expect(t.Key).NotTo(Equal(cluster.OutOfServiceTaintKey))
		}

		substitute := &corev1.Node{}
		Expect(c.client.Get(ctx, client.ObjectKey{Name: vmName}, substitute)).To(Succeed())
		found := false
		for _, t := range substitute.Spec.Taints {
			if t.Key == cluster.DrainTaintKey && t.Value == cluster.DrainTaintValue {
				found = true
			}
		}
		Expect(found).To(BeTrue())

		record, err := s.Get(ctx, "worker-03")
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Status.Phase).To(Equal(failoverv1.PhaseDraining))
	})
})
