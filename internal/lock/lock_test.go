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

package lock_test

import (
	"context"
	"testing"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	fakeclient "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/hybridops/node-failover-operator/internal/lock"
)

func TestAcquireRelease_FreshLease(t *testing.T) {
	c := fakeclient.NewClientBuilder().Build()
	l := lock.New(c, "default", "controller-a")

	ok, err := l.Acquire(context.Background(), "vm-create-worker-01", time.Second)
	if err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v", ok, err)
	}

	if err := l.Release(context.Background(), "vm-create-worker-01"); err != nil {
		t.Fatalf("Release() = %v", err)
	}

	list := &coordinationv1.LeaseList{}
	if err := c.List(context.Background(), list); err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 0 {
		t.Errorf("expected lease gone after release, found %d", len(list.Items))
	}
}

func TestAcquire_SameHolderSucceedsAgain(t *testing.T) {
	c := fakeclient.NewClientBuilder().Build()
	l := lock.New(c, "default", "controller-a")
	ctx := context.Background()

	if ok, err := l.Acquire(ctx, "vm-create-n1", time.Second); err != nil || !ok {
		t.Fatalf("first acquire: %v, %v", ok, err)
	}
	if ok, err := l.Acquire(ctx, "vm-create-n1", time.Second); err != nil || !ok {
		t.Fatalf("second acquire by same holder should succeed: %v, %v", ok, err)
	}
}

func TestAcquire_OtherHolderBlockedUntilExpiry(t *testing.T) {
	durationSeconds := int32(1)
	staleRenew := metav1.NewMicroTime(time.Now().Add(-2 * time.Second))
	holder := "controller-a"
	existing := &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{Name: "node-failover-lock-vm-create-n1", Namespace: "default"},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       &holder,
			RenewTime:            &staleRenew,
			LeaseDurationSeconds: &durationSeconds,
		},
	}
	c := fakeclient.NewClientBuilder().WithObjects(existing).Build()
	l := lock.New(c, "default", "controller-b")

	ok, err := l.Acquire(context.Background(), "vm-create-n1", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected takeover of expired lease, got %v, %v", ok, err)
	}
}

func TestAcquire_TimesOutWhenHeldAndValid(t *testing.T) {
	durationSeconds := int32(60)
	freshRenew := metav1.NewMicroTime(time.Now())
	holder := "controller-a"
	existing := &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{Name: "node-failover-lock-vm-create-n1", Namespace: "default"},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       &holder,
			RenewTime:            &freshRenew,
			LeaseDurationSeconds: &durationSeconds,
		},
	}
	c := fakeclient.NewClientBuilder().WithObjects(existing).Build()
	l := lock.New(c, "default", "controller-b")

	ok, err := l.Acquire(context.Background(), "vm-create-n1", 1500*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected Acquire to fail while lease is validly held by another identity")
	}
}

func TestRelease_AbsentIsSuccess(t *testing.T) {
	c := fakeclient.NewClientBuilder().Build()
	l := lock.New(c, "default", "controller-a")
	if err := l.Release(context.Background(), "never-acquired"); err != nil {
		t.Fatalf("Release on absent lease should succeed, got %v", err)
	}
}
