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

// Package gcp implements the provider.Provider capability set against
// Google Secret Manager.
package gcp

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/secretsync-io/secret-sync-controller/pkg/pathbuilder"
	"github.com/secretsync-io/secret-sync-controller/pkg/provider"
)

// Client talks to Google Secret Manager for one project.
type Client struct {
	project string
	sm      *secretmanager.Client
}

// New returns a Client for the given project, resolving an empty project
// from the GCE metadata server.
func New(ctx context.Context, project string) (*Client, error) {
	resolved, err := resolveProjectID(project)
	if err != nil {
		return nil, err
	}
	sm, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, &provider.Error{Kind: provider.ErrAuth, Cause: err}
	}
	return &Client{project: resolved, sm: sm}, nil
}

// ListOwned implements provider.Provider.
func (c *Client) ListOwned(ctx context.Context, prefix string) ([]string, error) {
	parent, err := pathbuilder.New(pathbuilder.OpListSecrets).WithProject(c.project).Build()
	if err != nil {
		return nil, err
	}

	var names []string
	err = provider.Retry(ctx, provider.DefaultMaxAttempts, provider.DefaultCallTimeout, func(callCtx context.Context) error {
		names = nil
		it := c.sm.ListSecrets(callCtx, &secretmanagerpb.ListSecretsRequest{
			Parent: parent,
			Filter: fmt.Sprintf(`name:"%s"`, prefix),
		})
		for {
			secret, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return classifyErr(err)
			}
			short := lastPathComponent(secret.GetName())
			if strings.HasPrefix(short, prefix) {
				names = append(names, short)
			}
		}
		return nil
	})
	return names, err
}

// ReadLatest implements provider.Provider.
func (c *Client) ReadLatest(ctx context.Context, name string) (provider.Version, bool, error) {
	versionName, err := pathbuilder.New(pathbuilder.OpGetSecretVersion).WithProject(c.project).WithSecret(name).Build()
	if err != nil {
		return provider.Version{}, false, err
	}

	var version provider.Version
	var found bool
	err = provider.Retry(ctx, provider.DefaultMaxAttempts, provider.DefaultCallTimeout, func(callCtx context.Context) error {
		resp, err := c.sm.AccessSecretVersion(callCtx, &secretmanagerpb.AccessSecretVersionRequest{
			Name: versionName,
		})
		if err != nil {
			if status.Code(err) == codes.NotFound {
				found = false
				return nil
			}
			return classifyErr(err)
		}
		found = true
		version = provider.Version{
			ID:    lastPathComponent(resp.GetName()),
			Value: resp.GetPayload().GetData(),
		}
		return nil
	})
	return version, found, err
}

// EnsurePresent implements provider.Provider.
func (c *Client) EnsurePresent(ctx context.Context, name string, value []byte) (string, bool, error) {
	latest, ok, err := c.ReadLatest(ctx, name)
	if err != nil {
		return "", false, err
	}
	if ok && bytes.Equal(latest.Value, value) {
		return latest.ID, false, nil
	}

	if !ok {
		if err := c.ensureSecretExists(ctx, name); err != nil {
			return "", false, err
		}
	}

	secretParent, err := pathbuilder.New(pathbuilder.OpAddSecretVersion).WithProject(c.project).WithSecret(name).Build()
	if err != nil {
		return "", false, err
	}

	var versionID string
	err = provider.Retry(ctx, provider.DefaultMaxAttempts, provider.DefaultCallTimeout, func(callCtx context.Context) error {
		resp, addErr := c.sm.AddSecretVersion(callCtx, &secretmanagerpb.AddSecretVersionRequest{
			Parent:  secretParent,
			Payload: &secretmanagerpb.SecretPayload{Data: value},
		})
		if addErr != nil {
			return classifyErr(addErr)
		}
		versionID = lastPathComponent(resp.GetName())
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return versionID, true, nil
}

func (c *Client) ensureSecretExists(ctx context.Context, name string) error {
	parent, err := pathbuilder.New(pathbuilder.OpCreateSecret).WithProject(c.project).WithSecret(name).Build()
	if err != nil {
		return err
	}

	return provider.Retry(ctx, provider.DefaultMaxAttempts, provider.DefaultCallTimeout, func(callCtx context.Context) error {
		_, err := c.sm.CreateSecret(callCtx, &secretmanagerpb.CreateSecretRequest{
			Parent:   parent,
			SecretId: name,
			Secret: &secretmanagerpb.Secret{
				Replication: &secretmanagerpb.Replication{
					Replication: &secretmanagerpb.Replication_Automatic_{
						Automatic: &secretmanagerpb.Replication_Automatic{},
					},
				},
			},
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return classifyErr(err)
		}
		return nil
	})
}

// DisableVersion implements provider.Provider.
func (c *Client) DisableVersion(ctx context.Context, name, versionID string) error {
	versionName, err := pathbuilder.New(pathbuilder.OpDisableSecretVersion).WithProject(c.project).WithSecret(name).WithVersion(versionID).Build()
	if err != nil {
		return err
	}

	return provider.Retry(ctx, provider.DefaultMaxAttempts, provider.DefaultCallTimeout, func(callCtx context.Context) error {
		_, err := c.sm.DisableSecretVersion(callCtx, &secretmanagerpb.DisableSecretVersionRequest{
			Name: versionName,
		})
		if err != nil && status.Code(err) != codes.FailedPrecondition {
			return classifyErr(err)
		}
		return nil
	})
}

func classifyErr(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return &provider.Error{Kind: provider.ErrNotFound, Cause: err}
	case codes.Unauthenticated, codes.PermissionDenied:
		return &provider.Error{Kind: provider.ErrAuth, Cause: err}
	case codes.ResourceExhausted:
		return &provider.Error{Kind: provider.ErrQuota, Cause: err}
	case codes.Unavailable, codes.DeadlineExceeded:
		return &provider.Error{Kind: provider.ErrNetwork, Cause: err}
	default:
		return &provider.Error{Kind: provider.ErrNetwork, Cause: err}
	}
}

func lastPathComponent(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
