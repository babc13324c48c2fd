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

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Phase is the lifecycle phase of a NodeFailover. Phases advance
// monotonically along Pending -> Creating -> Active -> Recovering ->
// Draining -> Completed, except that a Completed record may be deleted
// and recreated if the same on-premise node fails again.
type Phase string

const (
	PhasePending    Phase = "Pending"
	PhaseCreating   Phase = "Creating"
	PhaseActive     Phase = "Active"
	PhaseRecovering Phase = "Recovering"
	PhaseDraining   Phase = "Draining"
	PhaseCompleted  Phase = "Completed"
)

// ConditionType enumerates the condition types tracked on a NodeFailover.
// At most one condition of each type exists in Status.Conditions.
type ConditionType string

const (
	ConditionVMCreated         ConditionType = "VMCreated"
	ConditionNodeJoined        ConditionType = "NodeJoined"
	ConditionTaintApplied      ConditionType = "TaintApplied"
	ConditionOnPremRecovered   ConditionType = "OnPremRecovered"
	ConditionGameServersDrained ConditionType = "GameServersDrained"
)

// NodeFailoverSpec records the identity of the failed on-premise node and
// the label set its cloud substitute must inherit. Both fields are
// immutable after creation.
type NodeFailoverSpec struct {
	// OnpremNodeName is the lowercased name of the on-premise node this
	// record tracks. It is also the object's metadata.name.
	// +kubebuilder:validation:Required
	OnpremNodeName string `json:"onpremNodeName"`

	// TargetNodeLabels is the subset of the on-premise node's custom
	// labels that must be propagated onto the cloud substitute.
	// +optional
	TargetNodeLabels map[string]string `json:"targetNodeLabels,omitempty"`
}

// NodeFailoverStatus is the observed state of a failover cycle.
type NodeFailoverStatus struct {
	// Phase is the current point in the failover lifecycle.
	// +optional
	Phase Phase `json:"phase,omitempty"`

	// CloudVmName is the identity of the provisioned cloud substitute.
	// Set at most once per record and never cleared.
	// +optional
	CloudVmName string `json:"cloudVmName,omitempty"`

	// FailedAt is when the on-premise node was first observed unready
	// for this cycle.
	// +optional
	FailedAt *metav1.Time `json:"failedAt,omitempty"`

	// RecoveryDetectedAt is set exactly once per cycle, the first time
	// the on-premise node is observed ready again after FailedAt.
	// +optional
	RecoveryDetectedAt *metav1.Time `json:"recoveryDetectedAt,omitempty"`

	// VMCreationAttempts counts createInstance attempts made for this
	// cycle. Never exceeds the configured maximum.
	// +optional
	VMCreationAttempts int32 `json:"vmCreationAttempts,omitempty"`

	// LastError is a human-readable description of the most recent
	// failure encountered while advancing this record, if any.
	// +optional
	LastError string `json:"lastError,omitempty"`

	// Conditions is an ordered set of condition records, at most one per
	// ConditionType.
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// ObservedGeneration holds a spec generation for status consumers. No
	// component of this controller sets or reads it, so it stays zero.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Cluster,path=nodefailovers,singular=nodefailover
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="VM",type=string,JSONPath=`.status.cloudVmName`
// +kubebuilder:printcolumn:name="Attempts",type=integer,JSONPath=`.status.vmCreationAttempts`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// NodeFailover is the cluster-scoped record of a single on-premise node's
// failover cycle. Its name is always the lowercased on-premise node name.
type NodeFailover struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   NodeFailoverSpec   `json:"spec,omitempty"`
	Status NodeFailoverStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// NodeFailoverList is a list of NodeFailover resources.
type NodeFailoverList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []NodeFailover `json:"items"`
}

// GetCondition returns the condition of the given type, or nil if unset.
func (s *NodeFailoverStatus) GetCondition(t ConditionType) *metav1.Condition {
	for i := range s.Conditions {
		if s.Conditions[i].Type == string(t) {
			return &s.Conditions[i]
		}
	}
	return nil
}

// IsTerminal reports whether the phase is Completed.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted
}
