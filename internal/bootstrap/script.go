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

package bootstrap

import (
	"fmt"
	"strings"
)

// ScriptInput is everything the startup script needs to join the node to
// the cluster and configure kubelet with the external cloud provider.
type ScriptInput struct {
	CloudProvider string // e.g. "gce"
	APIServer     string
	Token         Token
	CACertHash    string
}

// Script renders a POSIX shell script that fetches instance metadata,
// writes a kubelet extra-args file pinning the external cloud provider and
// this instance's provider ID, then runs the cluster join command. GCE's
// startup-script metadata key takes the script verbatim; callers pass the
// result straight to the Cloud Gateway.
func Script(in ScriptInput) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash -xe\n")
	b.WriteString("exec > >(tee /var/log/node-failover-startup.log|logger -t node-failover -s 2>/dev/console) 2>&1\n\n")

	b.WriteString("PROJECT_ID=$(curl -s -H 'Metadata-Flavor: Google' 'http://metadata.google.internal/computeMetadata/v1/project/project-id')\n")
	b.WriteString("ZONE=$(curl -s -H 'Metadata-Flavor: Google' 'http://metadata.google.internal/computeMetadata/v1/instance/zone' | awk -F/ '{print $NF}')\n")
	b.WriteString("INSTANCE_NAME=$(curl -s -H 'Metadata-Flavor: Google' 'http://metadata.google.internal/computeMetadata/v1/instance/name')\n\n")

	providerID := fmt.Sprintf("%s://${PROJECT_ID}/${ZONE}/${INSTANCE_NAME}", in.CloudProvider)
	b.WriteString("mkdir -p /etc/default\n")
	fmt.Fprintf(&b, "cat <<EOF > /etc/default/kubelet\nKUBELET_EXTRA_ARGS=\"--cloud-provider=external --provider-id=%s\"\nEOF\n\n", providerID)

	fmt.Fprintf(&b, "kubeadm join %s --token %s --discovery-token-ca-cert-hash sha256:%s\n\n",
		in.APIServer, in.Token.String(), in.CACertHash)

	b.WriteString("echo SETUP_COMPLETE\n")
	return b.String()
}
