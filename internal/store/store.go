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

// Package store is the Failover Record Store: CRUD over the NodeFailover
// custom resource, the persistent record of a single on-premise node's
// failover cycle.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
	"github.com/hybridops/node-failover-operator/internal/metrics"
)

// Store wraps a controller-runtime client scoped to NodeFailover records.
type Store struct {
	client client.Client
}

// New constructs a Store.
func New(c client.Client) *Store {
	return &Store{client: c}
}

// RecordName is the record's identity: the lowercased on-premise node
// name.
func RecordName(onpremNodeName string) string {
	return strings.ToLower(onpremNodeName)
}

// Create is idempotent: if a record already exists for nodeName, it is
// returned unchanged. Otherwise a new record is created in phase Pending
// with failedAt set to now and zeroed attempt/condition state.
func (s *Store) Create(ctx context.Context, nodeName string, targetNodeLabels map[string]string) (*failoverv1.NodeFailover, error) {
	name := RecordName(nodeName)
	existing, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := metav1.NewTime(time.Now())
	record := &failoverv1.NodeFailover{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec: failoverv1.NodeFailoverSpec{
			OnpremNodeName:   nodeName,
			TargetNodeLabels: targetNodeLabels,
		},
	}
	if err := s.client.Create(ctx, record); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return s.Get(ctx, name)
		}
		return nil, fmt.Errorf("store: creating record %s: %w", name, err)
	}

	record.Status = failoverv1.NodeFailoverStatus{
		Phase:              failoverv1.PhasePending,
		FailedAt:           &now,
		VMCreationAttempts: 0,
	}
	if err := s.client.Status().Update(ctx, record); err != nil {
		return nil, fmt.Errorf("store: initializing status for record %s: %w", name, err)
	}
	metrics.PhaseTransitionsTotal.WithLabelValues(string(failoverv1.PhasePending)).Inc()
	return record, nil
}

// Get returns the record, or nil if it does not exist.
func (s *Store) Get(ctx context.Context, nodeName string) (*failoverv1.NodeFailover, error) {
	record := &failoverv1.NodeFailover{}
	if err := s.client.Get(ctx, client.ObjectKey{Name: RecordName(nodeName)}, record); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: getting record %s: %w", nodeName, err)
	}
	return record, nil
}

// List returns every NodeFailover record.
func (s *Store) List(ctx context.Context) ([]failoverv1.NodeFailover, error) {
	list := &failoverv1.NodeFailoverList{}
	if err := s.client.List(ctx, list); err != nil {
		return nil, fmt.Errorf("store: listing records: %w", err)
	}
	return list.Items, nil
}

// Delete removes the record for nodeName, treating absence as success.
func (s *Store) Delete(ctx context.Context, nodeName string) error {
	record := &failoverv1.NodeFailover{ObjectMeta: metav1.ObjectMeta{Name: RecordName(nodeName)}}
	if err := s.client.Delete(ctx, record); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("store: deleting record %s: %w", nodeName, err)
	}
	return nil
}

// StatusPatch is a sparse update applied to a record's status via the
// status subresource, so spec writers never race with status writers.
type StatusPatch struct {
	Phase              *failoverv1.Phase
	CloudVmName        *string
	RecoveryDetectedAt *time.Time
	VMCreationAttempts *int32
	LastError          *string
}

// UpdateStatus applies patch to the named record's status.
func (s *Store) UpdateStatus(ctx context.Context, nodeName string, patch StatusPatch) error {
	record, err := s.Get(ctx, nodeName)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("store: record %s not found", nodeName)
	}
	original := record.DeepCopy()

	if patch.Phase != nil {
		record.Status.Phase = *patch.Phase
	}
	if patch.CloudVmName != nil {
		record.Status.CloudVmName = *patch.CloudVmName
	}
	if patch.RecoveryDetectedAt != nil {
		t := metav1.NewTime(*patch.RecoveryDetectedAt)
		record.Status.RecoveryDetectedAt = &t
	}
	if patch.VMCreationAttempts != nil {
		record.Status.VMCreationAttempts = *patch.VMCreationAttempts
	}
	if patch.LastError != nil {
		record.Status.LastError = *patch.LastError
	}

	if err := s.client.Status().Patch(ctx, record, client.MergeFrom(original)); err != nil {
		return fmt.Errorf("store: patching status for record %s: %w", nodeName, err)
	}
	if patch.Phase != nil {
		metrics.PhaseTransitionsTotal.WithLabelValues(string(*patch.Phase)).Inc()
	}
	return nil
}

// SetCondition removes any existing condition of the same type and
// appends the new one with LastTransitionTime set to now.
func (s *Store) SetCondition(ctx context.Context, nodeName string, condType failoverv1.ConditionType, status metav1.ConditionStatus, reason, message string) error {
	record, err := s.Get(ctx, nodeName)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("store: record %s not found", nodeName)
	}
	original := record.DeepCopy()

	kept := make([]metav1.Condition, 0, len(record.Status.Conditions))
	for _, c := range record.Status.Conditions {
		if c.Type != string(condType) {
			kept = append(kept, c)
		}
	}
	kept = append(kept, metav1.Condition{
		Type:               string(condType),
		Status:             status,
		Reason:             reason,
		Message:            message,
		LastTransitionTime: metav1.NewTime(time.Now()),
	})
	record.Status.Conditions = kept

	if err := s.client.Status().Patch(ctx, record, client.MergeFrom(original)); err != nil {
		return fmt.Errorf("store: setting condition %s on record %s: %w", condType, nodeName, err)
	}
	return nil
}

// GetCondition returns the current condition of the given type, or nil.
func (s *Store) GetCondition(ctx context.Context, nodeName string, condType failoverv1.ConditionType) (*metav1.Condition, error) {
	record, err := s.Get(ctx, nodeName)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	return record.Status.GetCondition(condType), nil
}
