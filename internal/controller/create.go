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
	"fmt"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
	"github.com/hybridops/node-failover-operator/internal/bootstrap"
	"github.com/hybridops/node-failover-operator/internal/cloud"
	"github.com/hybridops/node-failover-operator/internal/config"
	"github.com/hybridops/node-failover-operator/internal/metrics"
	"github.com/hybridops/node-failover-operator/internal/store"
)

// bootstrapTokenTTL is the validity window minted for the join token, per
// spec.md §4.6.
const bootstrapTokenTTL = 1800 * time.Second

// lockAcquireTimeout bounds how long createFailoverVm waits for the
// vm-create-<node> lock before aborting on the assumption another
// controller replica already owns this node's creation.
const lockAcquireTimeout = 60 * time.Second

// createFailoverVm implements spec.md §4.6's createFailoverVm: a bounded
// loop (not the reference implementation's recursive retry, per spec.md
// §9's Design Notes) that, for each attempt, takes the lock only across
// the pre-check (or adoption commit) and the Creating/attempt-count
// commit, and releases it before the multi-minute instance-creation call,
// so the guarded region stays short (spec.md §9, "Long sleeps under a
// lock"). cloudVmName for a newly created instance is written after that
// call returns, outside the lock.
func (c *Controller) createFailoverVm(ctx context.Context, nodeName string) {
	opts := config.FromContext(ctx)
	resource := lockResource(nodeName)

	for {
		locked, err := c.locker.Acquire(ctx, resource, lockAcquireTimeout)
		if err != nil {
			c.recordFailure(ctx, nodeName, failoverv1.ConditionVMCreated, "LockError", err)
			return
		}
		if !locked {
			metrics.LockContentionTotal.Inc()
			log.FromContext(ctx).Info("vm-create lock held by another replica; aborting", "node", nodeName)
			return
		}

		record, err := c.store.Get(ctx, nodeName)
		if err != nil {
			c.locker.Release(ctx, resource)
			c.recordFailure(ctx, nodeName, failoverv1.ConditionVMCreated, "StoreError", err)
			return
		}
		if record == nil {
			c.locker.Release(ctx, resource)
			return
		}
		if record.Status.VMCreationAttempts >= int32(opts.MaxVMCreationAttempts) {
			c.locker.Release(ctx, resource)
			c.recordFailure(ctx, nodeName, failoverv1.ConditionVMCreated, "AttemptsExhausted",
				fmt.Errorf("vm creation attempts exhausted at %d", record.Status.VMCreationAttempts))
			return
		}

		if adopted, vmName, err := c.adoptExistingVM(ctx, nodeName); err != nil {
			c.locker.Release(ctx, resource)
			c.recordFailure(ctx, nodeName, failoverv1.ConditionVMCreated, "AdoptionScanFailed", err)
			return
		} else if adopted {
			c.locker.Release(ctx, resource)
			c.spawnOnce(ctx, nodeName, "waitAndLabel", func(taskCtx context.Context) {
				c.waitAndLabel(taskCtx, nodeName, vmName)
			})
			return
		}

		vmName := generateVMName(nodeName, time.Now())
		attempts := record.Status.VMCreationAttempts + 1
		phase := failoverv1.PhaseCreating
		if err := c.store.UpdateStatus(ctx, nodeName, store.StatusPatch{
			Phase:              &phase,
			VMCreationAttempts: &attempts,
		}); err != nil {
			c.locker.Release(ctx, resource)
			c.recordFailure(ctx, nodeName, failoverv1.ConditionVMCreated, "StatusUpdateFailed", err)
			return
		}
		c.locker.Release(ctx, resource)

		createStart := time.Now()
		ok, createErr := c.attemptCreate(ctx, nodeName, vmName, record.Spec.TargetNodeLabels)
		createOutcome := "success"
		if createErr != nil || !ok {
			createOutcome = "failure"
		}
		metrics.VMCreationDuration.WithLabelValues(createOutcome).Observe(time.Since(createStart).Seconds())
		metrics.VMCreationAttemptsTotal.WithLabelValues(createOutcome).Inc()
		if createErr == nil && ok {
			if err := c.store.UpdateStatus(ctx, nodeName, store.StatusPatch{CloudVmName: &vmName}); err != nil {
				c.recordFailure(ctx, nodeName, failoverv1.ConditionVMCreated, "StatusUpdateFailed", err)
				return
			}
			_ = c.store.SetCondition(ctx, nodeName, failoverv1.ConditionVMCreated, metav1.ConditionTrue, "InstanceCreated", "cloud substitute "+vmName+" created")
			c.spawnOnce(ctx, nodeName, "waitAndLabel", func(taskCtx context.Context) {
				c.waitAndLabel(taskCtx, nodeName, vmName)
			})
			return
		}

		if createErr == nil {
			createErr = fmt.Errorf("createInstance returned false for %s", vmName)
		}
		c.recordFailure(ctx, nodeName, failoverv1.ConditionVMCreated, "CreationFailed", createErr)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoffDuration(attempts)):
		}
		// Loop: re-acquire the lock and re-check attempts against the cap.
	}
}

// adoptExistingVM scans the Cloud Gateway for a pre-existing, managed VM
// whose name matches this node's "cloud-temp-<sanitized>-" prefix -- the
// case where a prior attempt created the instance but the controller
// crashed before recording cloudVmName. If found, it commits the adoption
// to the record and returns true.
func (c *Controller) adoptExistingVM(ctx context.Context, nodeName string) (bool, string, error) {
	names, err := c.cloud.ListManagedInstances(ctx)
	if err != nil {
		return false, "", err
	}
	prefix := vmNamePrefixFor(nodeName)
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			if err := c.store.UpdateStatus(ctx, nodeName, store.StatusPatch{CloudVmName: &name}); err != nil {
				return false, "", err
			}
			_ = c.store.SetCondition(ctx, nodeName, failoverv1.ConditionVMCreated, metav1.ConditionTrue, "InstanceAdopted", "adopted pre-existing cloud substitute "+name)
			return true, name, nil
		}
	}
	return false, "", nil
}

// attemptCreate mints a bootstrap token, derives the CA cert hash,
// renders the startup script, and calls CreateInstance. This is the
// multi-minute step the lock must not be held across.
func (c *Controller) attemptCreate(ctx context.Context, nodeName, vmName string, targetLabels map[string]string) (bool, error) {
	opts := config.FromContext(ctx)

	token, err := bootstrap.MintToken(ctx, c.client, bootstrapTokenTTL)
	if err != nil {
		return false, fmt.Errorf("minting bootstrap token: %w", err)
	}
	caHash, err := bootstrap.CACertHash(ctx, c.client)
	if err != nil {
		return false, fmt.Errorf("deriving CA cert hash: %w", err)
	}
	script := bootstrap.Script(bootstrap.ScriptInput{
		CloudProvider: "gce",
		APIServer:     opts.K8sAPIServer,
		Token:         token,
		CACertHash:    caHash,
	})

	labels := map[string]string{
		"onprem-node": sanitizeNodeName(nodeName),
		"created-at":  cloud.CreatedAtLabelValue(time.Now()),
	}
	for k, v := range targetLabels {
		labels[k] = v
	}

	return c.cloud.CreateInstance(ctx, vmName, script, labels)
}
