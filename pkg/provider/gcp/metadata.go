// Copyright 2022 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gcp

import (
	"fmt"

	"cloud.google.com/go/compute/metadata"
)

// resolveProjectID returns project if set, otherwise falls back to the GCE
// metadata server. Adapted from the teacher's util.GetProjectID: that
// version also consults a fleet Membership object first, a concept with no
// analog in this module's single-cluster deployment model, so only the
// metadata-server fallback half is kept.
func resolveProjectID(project string) (string, error) {
	if project != "" {
		return project, nil
	}
	if metadata.OnGCE() {
		return metadata.ProjectID()
	}
	return "", fmt.Errorf("gcp provider: no project configured and not running on GCE")
}
