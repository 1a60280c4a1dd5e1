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

// Package aws implements the provider.Provider capability set against AWS
// Secrets Manager, in the same aws-sdk-go-v2 family used elsewhere in the
// retrieved example pack.
package aws

import (
	"bytes"
	"context"
	"errors"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/secretsync-io/secret-sync-controller/pkg/pathbuilder"
	"github.com/secretsync-io/secret-sync-controller/pkg/provider"
)

// Client talks to AWS Secrets Manager in one region.
type Client struct {
	sm *secretsmanager.Client
}

// New returns a Client for the given region.
func New(ctx context.Context, region string) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, &provider.Error{Kind: provider.ErrAuth, Cause: err}
	}
	return &Client{sm: secretsmanager.NewFromConfig(cfg)}, nil
}

// ListOwned implements provider.Provider.
func (c *Client) ListOwned(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := provider.Retry(ctx, provider.DefaultMaxAttempts, provider.DefaultCallTimeout, func(callCtx context.Context) error {
		names = nil
		paginator := secretsmanager.NewListSecretsPaginator(c.sm, &secretsmanager.ListSecretsInput{
			Filters: []types.Filter{{Key: types.FilterNameStringTypeName, Values: []string{prefix}}},
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(callCtx)
			if err != nil {
				return classifyErr(err)
			}
			for _, s := range page.SecretList {
				if s.Name != nil {
					names = append(names, *s.Name)
				}
			}
		}
		return nil
	})
	return names, err
}

// ReadLatest implements provider.Provider.
func (c *Client) ReadLatest(ctx context.Context, name string) (provider.Version, bool, error) {
	secretID, err := pathbuilder.New(pathbuilder.OpGetSecretVersion).WithSecret(name).Build()
	if err != nil {
		return provider.Version{}, false, err
	}

	var version provider.Version
	var found bool
	err = provider.Retry(ctx, provider.DefaultMaxAttempts, provider.DefaultCallTimeout, func(callCtx context.Context) error {
		resp, err := c.sm.GetSecretValue(callCtx, &secretsmanager.GetSecretValueInput{SecretId: &secretID})
		if err != nil {
			var notFound *types.ResourceNotFoundException
			if errors.As(err, &notFound) {
				found = false
				return nil
			}
			return classifyErr(err)
		}
		found = true
		var value []byte
		if resp.SecretBinary != nil {
			value = resp.SecretBinary
		} else if resp.SecretString != nil {
			value = []byte(*resp.SecretString)
		}
		versionID := ""
		if resp.VersionId != nil {
			versionID = *resp.VersionId
		}
		version = provider.Version{ID: versionID, Value: value}
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
		if err := c.createSecret(ctx, name, value); err != nil {
			return "", false, err
		}
		latest, _, err := c.ReadLatest(ctx, name)
		if err != nil {
			return "", false, err
		}
		return latest.ID, true, nil
	}

	secretID, err := pathbuilder.New(pathbuilder.OpAddSecretVersion).WithSecret(name).Build()
	if err != nil {
		return "", false, err
	}

	var versionID string
	err = provider.Retry(ctx, provider.DefaultMaxAttempts, provider.DefaultCallTimeout, func(callCtx context.Context) error {
		resp, err := c.sm.PutSecretValue(callCtx, &secretsmanager.PutSecretValueInput{
			SecretId:     &secretID,
			SecretBinary: value,
		})
		if err != nil {
			return classifyErr(err)
		}
		if resp.VersionId != nil {
			versionID = *resp.VersionId
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return versionID, true, nil
}

func (c *Client) createSecret(ctx context.Context, name string, value []byte) error {
	secretName, err := pathbuilder.New(pathbuilder.OpCreateSecret).WithSecret(name).Build()
	if err != nil {
		return err
	}

	return provider.Retry(ctx, provider.DefaultMaxAttempts, provider.DefaultCallTimeout, func(callCtx context.Context) error {
		_, err := c.sm.CreateSecret(callCtx, &secretsmanager.CreateSecretInput{
			Name:         &secretName,
			SecretBinary: value,
		})
		var exists *types.ResourceExistsException
		if err != nil && !errors.As(err, &exists) {
			return classifyErr(err)
		}
		return nil
	})
}

// DisableVersion implements provider.Provider.
func (c *Client) DisableVersion(ctx context.Context, name, versionID string) error {
	secretID, err := pathbuilder.New(pathbuilder.OpDisableSecretVersion).WithSecret(name).WithVersion(versionID).Build()
	if err != nil {
		return err
	}

	return provider.Retry(ctx, provider.DefaultMaxAttempts, provider.DefaultCallTimeout, func(callCtx context.Context) error {
		_, err := c.sm.UpdateSecretVersionStage(callCtx, &secretsmanager.UpdateSecretVersionStageInput{
			SecretId:            &secretID,
			VersionStage:        stagePtr("AWSCURRENT"),
			RemoveFromVersionId: &versionID,
		})
		var notFound *types.ResourceNotFoundException
		if err != nil && !errors.As(err, &notFound) {
			return classifyErr(err)
		}
		return nil
	})
}

func stagePtr(s string) *string { return &s }

func classifyErr(err error) error {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case 401, 403:
			return &provider.Error{Kind: provider.ErrAuth, Cause: err}
		case 429:
			return &provider.Error{Kind: provider.ErrThrottled, Cause: err}
		case 404:
			return &provider.Error{Kind: provider.ErrNotFound, Cause: err}
		}
	}
	return &provider.Error{Kind: provider.ErrNetwork, Cause: err}
}
