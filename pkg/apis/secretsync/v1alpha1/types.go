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

// Package v1alpha1 contains the SecretSync custom resource: the declarative
// unit of desired state the reconciliation engine drives towards (spec.md
// calls this the "Managed Configuration").
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// Phase is the coarse-grained lifecycle state of a SecretSync.
type Phase string

const (
	PhasePending   Phase = "Pending"
	PhaseSyncing   Phase = "Syncing"
	PhaseSynced    Phase = "Synced"
	PhaseError     Phase = "Error"
	PhaseSuspended Phase = "Suspended"
)

// SourceKind identifies which source-discovery subsystem owns the artifact
// this SecretSync pulls from.
type SourceKind string

const (
	SourceKindGitRepository SourceKind = "GitRepository"
	SourceKindApplication   SourceKind = "Application"
)

// ProviderKind identifies the remote secret store family.
type ProviderKind string

const (
	ProviderGCP   ProviderKind = "gcp"
	ProviderAWS   ProviderKind = "aws"
	ProviderAzure ProviderKind = "azure"
)

// ConfigStoreKind identifies the remote config store used for properties
// files, when the configs selector is enabled.
type ConfigStoreKind string

// SourceReference points at the external source-discovery object
// (FluxCD GitRepository or ArgoCD Application) that resolves to a Source
// Artifact. The engine never talks to Git directly; it reads this object's
// status via the orchestrator client (spec.md §6).
type SourceReference struct {
	Kind      SourceKind `json:"kind"`
	Name      string     `json:"name"`
	Namespace string     `json:"namespace,omitempty"`
}

// ProviderSelector names exactly one of the three supported remote secret
// stores and the coordinates needed to address it.
type ProviderSelector struct {
	GCP   *GCPProvider   `json:"gcp,omitempty"`
	AWS   *AWSProvider   `json:"aws,omitempty"`
	Azure *AzureProvider `json:"azure,omitempty"`
}

// Kind returns which provider family is selected, or "" if none/more than
// one is set (a spec validation error the engine must reject).
func (p ProviderSelector) Kind() (ProviderKind, bool) {
	set := 0
	var kind ProviderKind
	if p.GCP != nil {
		set++
		kind = ProviderGCP
	}
	if p.AWS != nil {
		set++
		kind = ProviderAWS
	}
	if p.Azure != nil {
		set++
		kind = ProviderAzure
	}
	if set != 1 {
		return "", false
	}
	return kind, true
}

// GCPProvider addresses Google Secret Manager. Project may be left empty to
// have the provider resolve it from the GCE metadata server.
type GCPProvider struct {
	Project string `json:"project,omitempty"`
}

// AWSProvider addresses AWS Secrets Manager.
type AWSProvider struct {
	Region string `json:"region"`
}

// AzureProvider addresses an Azure Key Vault instance.
type AzureProvider struct {
	VaultURL string `json:"vaultURL"`
}

// EncryptionKeyRef points at a Kubernetes Secret, in the SecretSync's own
// namespace, holding private key material for one envelope scheme.
type EncryptionKeyRef struct {
	SecretName string `json:"secretName"`
	SecretKey  string `json:"secretKey"`
}

// SecretsSelector describes where to find the secret files once the
// artifact is unpacked, and how to decrypt them.
type SecretsSelector struct {
	Environment    string            `json:"environment"`
	OverlayPath    string            `json:"overlayPath"`
	OpenPGPKeyRef  *EncryptionKeyRef `json:"openPGPKeyRef,omitempty"`
	X25519KeyRef   *EncryptionKeyRef `json:"x25519KeyRef,omitempty"`
}

// ConfigsSelector opts a SecretSync into also publishing *.properties files
// to a non-secret config store.
type ConfigsSelector struct {
	Enabled bool            `json:"enabled"`
	Kind    ConfigStoreKind `json:"kind,omitempty"`
}

// NamingPolicy controls how remote names are derived from bundle keys
// (spec.md §3, "Owned Remote Name").
type NamingPolicy struct {
	Prefix string `json:"prefix,omitempty"`
	Suffix string `json:"suffix,omitempty"`
}

// Timing holds the two interval knobs, both clamped to spec.md §3 minima by
// the reconciler-manager controller.
type Timing struct {
	PullIntervalSeconds      int64 `json:"pullIntervalSeconds,omitempty"`
	ReconcileIntervalSeconds int64 `json:"reconcileIntervalSeconds,omitempty"`
}

// FeatureFlags toggles optional engine behavior.
type FeatureFlags struct {
	DriftDetection      bool `json:"driftDetection,omitempty"`
	Suspended           bool `json:"suspended,omitempty"`
	GitPullsSuspended   bool `json:"gitPullsSuspended,omitempty"`
}

// ImperativeAnnotations models the two out-of-band signals described in
// spec.md §3 and §4.7/§9: a forced-reconcile timestamp and a suspend flag.
// They are carried as typed fields under spec.annotations; metadata.annotations
// is not consulted.
type ImperativeAnnotations struct {
	ReconcileNow string `json:"reconcileNow,omitempty"`
	Suspend      *bool  `json:"suspend,omitempty"`
}

// SecretSyncSpec is the desired state of a SecretSync, set by the
// orchestrator platform and never mutated by the engine.
type SecretSyncSpec struct {
	SourceRef    SourceReference  `json:"sourceRef"`
	Provider     ProviderSelector `json:"provider"`
	Secrets      SecretsSelector  `json:"secrets"`
	Configs      *ConfigsSelector `json:"configs,omitempty"`
	Naming       NamingPolicy     `json:"naming,omitempty"`
	Timing       Timing           `json:"timing,omitempty"`
	Features     FeatureFlags     `json:"features,omitempty"`
	Annotations  ImperativeAnnotations `json:"annotations,omitempty"`
}

// SecretSyncStatus is entirely owned by the engine (spec.md §3, §4.9).
type SecretSyncStatus struct {
	ObservedGeneration     int64              `json:"observedGeneration,omitempty"`
	Phase                  Phase              `json:"phase,omitempty"`
	Description            string             `json:"description,omitempty"`
	Conditions             []metav1.Condition `json:"conditions,omitempty"`
	LastSyncTime           *metav1.Time       `json:"lastSyncTime,omitempty"`
	SecretsCount           int                `json:"secretsCount"`
	NextScheduledReconcile *metav1.Time       `json:"nextScheduledReconcile,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status

// SecretSync is the Managed Configuration custom resource from spec.md §3.
type SecretSync struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   SecretSyncSpec   `json:"spec,omitempty"`
	Status SecretSyncStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// SecretSyncList is a list of SecretSync resources.
type SecretSyncList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`

	Items []SecretSync `json:"items"`
}

var _ runtime.Object = &SecretSync{}
var _ runtime.Object = &SecretSyncList{}
