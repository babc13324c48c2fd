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

package store_test

import (
	"context"
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	fakeclient "sigs.k8s.io/controller-runtime/pkg/client/fake"

	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
	"github.com/hybridops/node-failover-operator/internal/store"
)

func newTestStore() *store.Store {
	scheme := runtime.NewScheme()
	_ = failoverv1.AddToScheme(scheme)
	c := fakeclient.NewClientBuilder().
		WithScheme(scheme).
		WithStatusSubresource(&failoverv1.NodeFailover{}).
		Build()
	return store.New(c)
}

func TestCreate_IsIdempotent(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	first, err := s.Create(ctx, "Worker-01", map[string]string{"gpu": "yes"})
	if err != nil {
		t.Fatal(err)
	}
	if first.Status.Phase != failoverv1.PhasePending {
		t.Errorf("phase = %q, want Pending", first.Status.Phase)
	}
	if first.Status.FailedAt == nil {
		t.Error("expected FailedAt to be set")
	}

	second, err := s.Create(ctx, "Worker-01", map[string]string{"gpu": "yes"})
	if err != nil {
		t.Fatal(err)
	}
	if second.Name != first.Name {
		t.Errorf("expected same record returned, got %q vs %q", second.Name, first.Name)
	}
}

func TestRecordName_Lowercases(t *testing.T) {
	if store.RecordName("Worker-01") != "worker-01" {
		t.Errorf("RecordName() = %q", store.RecordName("Worker-01"))
	}
}

func TestUpdateStatus_SparsePatch(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	if _, err := s.Create(ctx, "worker-01", nil); err != nil {
		t.Fatal(err)
	}

	phase := failoverv1.PhaseCreating
	vmName := "cloud-temp-worker-01-123"
	if err := s.UpdateStatus(ctx, "worker-01", store.StatusPatch{Phase: &phase, CloudVmName: &vmName}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "worker-01")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status.Phase != failoverv1.PhaseCreating || got.Status.CloudVmName != vmName {
		t.Errorf("status = %+v", got.Status)
	}
	if got.Status.FailedAt == nil {
		t.Error("sparse patch should not clear FailedAt")
	}
}

func TestSetCondition_ReplacesSameType(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	if _, err := s.Create(ctx, "worker-01", nil); err != nil {
		t.Fatal(err)
	}

	if err := s.SetCondition(ctx, "worker-01", failoverv1.ConditionVMCreated, metav1.ConditionFalse, "Pending", "not yet"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCondition(ctx, "worker-01", failoverv1.ConditionVMCreated, metav1.ConditionTrue, "Created", "vm created"); err != nil {
		t.Fatal(err)
	}

	cond, err := s.GetCondition(ctx, "worker-01", failoverv1.ConditionVMCreated)
	if err != nil {
		t.Fatal(err)
	}
	if cond == nil || cond.Status != metav1.ConditionTrue || cond.Reason != "Created" {
		t.Fatalf("condition = %+v", cond)
	}

	record, err := s.Get(ctx, "worker-01")
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, c := range record.Status.Conditions {
		if c.Type == string(failoverv1.ConditionVMCreated) {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one VMCreated condition, found %d", count)
	}
}

func TestDelete_AbsentIsSuccess(t *testing.T) {
	s := newTestStore()
	if err := s.Delete(context.Background(), "never-existed"); err != nil {
		t.Fatalf("Delete on absent record should succeed, got %v", err)
	}
}

func TestList(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	if _, err := s.Create(ctx, "a", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, "b", nil); err != nil {
		t.Fatal(err)
	}
	items, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Errorf("List() returned %d items, want 2", len(items))
	}
}
