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

// Package lock is the Distributed Lock: a cluster-wide expiring mutex
// backed by a coordination/v1 Lease, the same primitive
// client-go/tools/leaderelection/resourcelock builds leader election on.
package lock

import (
	"context"
	"fmt"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// LeaseDuration is the fixed lease validity window. The lock does not
// auto-renew; callers must finish the guarded work within this window or
// accept the risk of a parallel takeover.
const LeaseDuration = 15 * time.Second

const retryInterval = 1 * time.Second

// Locker acquires and releases resource-scoped leases in a fixed
// namespace.
type Locker struct {
	client    client.Client
	namespace string
	identity  string
}

// New constructs a Locker. identity is this controller instance's
// holder identity, typically its pod hostname.
func New(c client.Client, namespace, identity string) *Locker {
	return &Locker{client: c, namespace: namespace, identity: identity}
}

// Acquire attempts to take the lease named for resource, retrying every
// second until it succeeds or timeout elapses. It succeeds immediately if
// the lease is already held by this identity and still valid.
func (l *Locker) Acquire(ctx context.Context, resource string, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	name := leaseName(resource)

	for {
		acquired, err := l.tryAcquire(ctx, name)
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

func (l *Locker) tryAcquire(ctx context.Context, name string) (bool, error) {
	now := metav1.NewMicroTime(time.Now())
	durationSeconds := int32(LeaseDuration.Seconds())

	lease := &coordinationv1.Lease{}
	err := l.client.Get(ctx, client.ObjectKey{Namespace: l.namespace, Name: name}, lease)
	if apierrors.IsNotFound(err) {
		newLease := &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: l.namespace},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       &l.identity,
				AcquireTime:          &now,
				RenewTime:            &now,
				LeaseDurationSeconds: &durationSeconds,
			},
		}
		if createErr := l.client.Create(ctx, newLease); createErr != nil {
			if apierrors.IsAlreadyExists(createErr) || apierrors.IsConflict(createErr) {
				return false, nil
			}
			return false, fmt.Errorf("lock: creating lease %s: %w", name, createErr)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock: getting lease %s: %w", name, err)
	}

	held := lease.Spec.HolderIdentity != nil && *lease.Spec.HolderIdentity == l.identity
	expired := isExpired(lease)

	if !held && !expired {
		return false, nil
	}

	original := lease.DeepCopy()
	lease.Spec.HolderIdentity = &l.identity
	lease.Spec.RenewTime = &now
	if !held {
		lease.Spec.AcquireTime = &now
	}
	lease.Spec.LeaseDurationSeconds = &durationSeconds

	if err := l.client.Patch(ctx, lease, client.MergeFrom(original)); err != nil {
		if apierrors.IsConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("lock: updating lease %s: %w", name, err)
	}
	return true, nil
}

func isExpired(lease *coordinationv1.Lease) bool {
	if lease.Spec.RenewTime == nil || lease.Spec.LeaseDurationSeconds == nil {
		return true
	}
	elapsed := time.Since(lease.Spec.RenewTime.Time)
	return elapsed >= time.Duration(*lease.Spec.LeaseDurationSeconds)*time.Second
}

// Release deletes the lease, treating absence as success.
func (l *Locker) Release(ctx context.Context, resource string) error {
	lease := &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{Name: leaseName(resource), Namespace: l.namespace},
	}
	if err := l.client.Delete(ctx, lease); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("lock: releasing lease %s: %w", resource, err)
	}
	return nil
}

// leaseName mirrors the reference implementation's
// "node-failover-lock-<resource>" naming.
func leaseName(resource string) string {
	return "node-failover-lock-" + resource
}
