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

// Package controller is the Failover Controller: the per-node state
// machine that owns FailoverRecord phase transitions and orchestrates VM
// creation, labeling, tainting, and drain hand-off. Long-running work
// (grace-period sleeps, VM creation, join waits) is spawned as detached
// goroutines from Reconcile rather than run inline, the way spec.md §5
// describes "detached tasks" in a cooperative scheduler — here realized
// with context cancellation instead of cooperative yields.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
	"github.com/hybridops/node-failover-operator/internal/cloud"
	"github.com/hybridops/node-failover-operator/internal/cluster"
	"github.com/hybridops/node-failover-operator/internal/config"
	"github.com/hybridops/node-failover-operator/internal/lock"
	"github.com/hybridops/node-failover-operator/internal/store"
)

// taskTTL is the task cache's default expiration. spawnOnce stores its
// in-flight markers without expiry and deletes each one when its
// goroutine returns (also after a recovered panic), so a handler that
// runs longer than this, such as handleActive looping while the node
// stays unready, is never spawned a second time for the same phase.
const taskTTL = 15 * time.Minute

// Controller reconciles NodeFailover records, dispatching each to the
// phase handler spec.md §4.6 describes. A single controller-runtime
// workqueue serializes Reconcile calls per record name, which is what
// gives spec.md §5's "no two handlers for the same record run
// concurrently" guarantee for free.
type Controller struct {
	client  client.Client
	store   *store.Store
	cluster *cluster.Gateway
	cloud   cloud.InstanceGateway
	locker  *lock.Locker

	// tasks dedups goroutine spawns per (nodeName, phase): Reconcile may
	// be invoked many times while a long-running handler for the same
	// phase is still in flight (status writes from unrelated fields,
	// workqueue rate-limited retries), and must not spawn a second one.
	tasks *cache.Cache
}

// New constructs a Controller.
func New(c client.Client, s *store.Store, clusterGW *cluster.Gateway, cloudGW cloud.InstanceGateway, locker *lock.Locker) *Controller {
	return &Controller{
		client:  c,
		store:   s,
		cluster: clusterGW,
		cloud:   cloudGW,
		locker:  locker,
		tasks:   cache.New(taskTTL, time.Minute),
	}
}

// Reconcile dispatches the named record to its phase handler. Handlers
// for Pending, Active, and Recovering are long-running and run detached;
// Creating re-enters createFailoverVm synchronously-spawned the same way,
// so a controller restart that lost its in-flight goroutine resumes the
// attempt rather than stalling until the Reconciler's next sweep.
// Draining and Completed are not advanced by the Controller at all:
// Draining is the Reconciler's responsibility (spec.md §4.7), and
// Completed is terminal.
func (c *Controller) Reconcile(ctx context.Context, req reconcile.Request) (reconcile.Result, error) {
	logger := log.FromContext(ctx).WithValues("nodefailover", req.Name)
	record, err := c.store.Get(ctx, req.Name)
	if err != nil {
		return reconcile.Result{}, err
	}
	if record == nil {
		return reconcile.Result{}, nil
	}

	nodeName := record.Spec.OnpremNodeName
	phase := record.Status.Phase

	switch phase {
	case failoverv1.PhasePending:
		c.spawnOnce(ctx, nodeName, "pending", func(taskCtx context.Context) {
			c.handlePending(taskCtx, nodeName)
		})
	case failoverv1.PhaseCreating:
		c.spawnOnce(ctx, nodeName, "creating", func(taskCtx context.Context) {
			c.createFailoverVm(taskCtx, nodeName)
		})
	case failoverv1.PhaseActive:
		c.spawnOnce(ctx, nodeName, "active", func(taskCtx context.Context) {
			c.handleActive(taskCtx, nodeName)
		})
	case failoverv1.PhaseRecovering:
		c.spawnOnce(ctx, nodeName, "recovering", func(taskCtx context.Context) {
			c.handleRecovering(taskCtx, nodeName)
		})
	case failoverv1.PhaseDraining, failoverv1.PhaseCompleted:
		// Owned by the Reconciler (Draining) or terminal (Completed).
	default:
		logger.Info("record in unrecognized phase; ignoring", "phase", phase)
	}

	return reconcile.Result{}, nil
}

// spawnOnce runs fn in a detached goroutine unless a task with the same
// key is already in flight, and recovers panics the way the teacher's
// manager recovers around reconcile calls so one node's bug can't take
// the process down.
func (c *Controller) spawnOnce(ctx context.Context, nodeName, phase string, fn func(context.Context)) {
	key := nodeName + ":" + phase
	if _, found := c.tasks.Get(key); found {
		return
	}
	c.tasks.Set(key, struct{}{}, cache.NoExpiration)

	// Detached: must outlive the reconcile call that spawned it, so it
	// takes context.Background() plus a log.Logger carried over rather
	// than ctx itself, which controller-runtime cancels when Reconcile
	// returns.
	taskCtx := log.IntoContext(context.Background(), log.FromContext(ctx))
	taskCtx = config.Into(taskCtx, config.FromContext(ctx))

	go func() {
		defer c.tasks.Delete(key)
		defer func() {
			if r := recover(); r != nil {
				log.FromContext(taskCtx).Error(fmt.Errorf("panic: %v", r), "failover task panicked", "node", nodeName, "phase", phase)
			}
		}()
		fn(taskCtx)
	}()
}

// recordFailure logs err, writes it to the record's lastError field, and
// sets condType to False with reason, the single helper every error path
// goes through so logging and status always stay in sync (spec.md §7).
func (c *Controller) recordFailure(ctx context.Context, nodeName string, condType failoverv1.ConditionType, reason string, err error) {
	log.FromContext(ctx).Error(err, "failover step failed", "node", nodeName, "reason", reason)
	msg := err.Error()
	_ = c.store.UpdateStatus(ctx, nodeName, store.StatusPatch{LastError: &msg})
	_ = c.store.SetCondition(ctx, nodeName, condType, metav1.ConditionFalse, reason, msg)
}

// SetupWithManager registers the Controller against NodeFailover objects.
func (c *Controller) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&failoverv1.NodeFailover{}).
		Complete(c)
}

// backoffDuration implements spec.md §4.6's
// min(2^attempts * 60s, 300s) retry backoff.
func backoffDuration(attempts int32) time.Duration {
	d := time.Duration(1<<attempts) * 60 * time.Second
	const maxBackoff = 300 * time.Second
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

// lockResource is the Distributed Lock resource name guarding VM creation
// for nodeName.
func lockResource(nodeName string) string {
	return "vm-create-" + nodeName
}
