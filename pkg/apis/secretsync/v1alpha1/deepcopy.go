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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// DeepCopyInto copies all fields of in into out.
func (in *SourceReference) DeepCopyInto(out *SourceReference) {
	*out = *in
}

// DeepCopyInto copies all fields of in into out.
func (in *ProviderSelector) DeepCopyInto(out *ProviderSelector) {
	*out = *in
	if in.GCP != nil {
		out.GCP = new(GCPProvider)
		*out.GCP = *in.GCP
	}
	if in.AWS != nil {
		out.AWS = new(AWSProvider)
		*out.AWS = *in.AWS
	}
	if in.Azure != nil {
		out.Azure = new(AzureProvider)
		*out.Azure = *in.Azure
	}
}

// DeepCopyInto copies all fields of in into out.
func (in *SecretsSelector) DeepCopyInto(out *SecretsSelector) {
	*out = *in
	if in.OpenPGPKeyRef != nil {
		out.OpenPGPKeyRef = new(EncryptionKeyRef)
		*out.OpenPGPKeyRef = *in.OpenPGPKeyRef
	}
	if in.X25519KeyRef != nil {
		out.X25519KeyRef = new(EncryptionKeyRef)
		*out.X25519KeyRef = *in.X25519KeyRef
	}
}

// DeepCopyInto copies all fields of in into out.
func (in *ConfigsSelector) DeepCopyInto(out *ConfigsSelector) {
	*out = *in
}

// DeepCopyInto copies all fields of in into out.
func (in *FeatureFlags) DeepCopyInto(out *FeatureFlags) {
	*out = *in
}

// DeepCopyInto copies all fields of in into out.
func (in *ImperativeAnnotations) DeepCopyInto(out *ImperativeAnnotations) {
	*out = *in
	if in.Suspend != nil {
		out.Suspend = new(bool)
		*out.Suspend = *in.Suspend
	}
}

// DeepCopyInto copies all fields of in into out.
func (in *SecretSyncSpec) DeepCopyInto(out *SecretSyncSpec) {
	*out = *in
	in.SourceRef.DeepCopyInto(&out.SourceRef)
	in.Provider.DeepCopyInto(&out.Provider)
	in.Secrets.DeepCopyInto(&out.Secrets)
	if in.Configs != nil {
		out.Configs = new(ConfigsSelector)
		in.Configs.DeepCopyInto(out.Configs)
	}
	in.Annotations.DeepCopyInto(&out.Annotations)
}

// DeepCopyInto copies all fields of in into out.
func (in *SecretSyncStatus) DeepCopyInto(out *SecretSyncStatus) {
	*out = *in
	if in.Conditions != nil {
		out.Conditions = make([]metav1.Condition, len(in.Conditions))
		for i := range in.Conditions {
			in.Conditions[i].DeepCopyInto(&out.Conditions[i])
		}
	}
	if in.LastSyncTime != nil {
		out.LastSyncTime = in.LastSyncTime.DeepCopy()
	}
	if in.NextScheduledReconcile != nil {
		out.NextScheduledReconcile = in.NextScheduledReconcile.DeepCopy()
	}
}

// DeepCopyInto copies the receiver into out.
func (in *SecretSync) DeepCopyInto(out *SecretSync) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

// DeepCopy returns a deep copy of the receiver.
func (in *SecretSync) DeepCopy() *SecretSync {
	if in == nil {
		return nil
	}
	out := new(SecretSync)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *SecretSync) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver into out.
func (in *SecretSyncList) DeepCopyInto(out *SecretSyncList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]SecretSync, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

// DeepCopy returns a deep copy of the receiver.
func (in *SecretSyncList) DeepCopy() *SecretSyncList {
	if in == nil {
		return nil
	}
	out := new(SecretSyncList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *SecretSyncList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}
