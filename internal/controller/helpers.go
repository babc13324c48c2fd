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
	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
	"github.com/hybridops/node-failover-operator/internal/store"
)

// storePhasePatch is shorthand for the common case of a status patch that
// only advances phase.
func storePhasePatch(phase failoverv1.Phase) store.StatusPatch {
	return store.StatusPatch{Phase: &phase}
}
