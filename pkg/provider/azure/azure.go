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

// Package azure implements the provider.Provider capability set against an
// Azure Key Vault instance, grounded on the azcore/azidentity pairing used
// elsewhere in the retrieved example pack.
package azure

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/secretsync-io/secret-sync-controller/pkg/pathbuilder"
	"github.com/secretsync-io/secret-sync-controller/pkg/provider"
)

// Client talks to one Azure Key Vault.
type Client struct {
	kv *azsecrets.Client
}

// New returns a Client for the given vault URL, authenticating with the
// default Azure credential chain.
func New(vaultURL string) (*Client, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, &provider.Error{Kind: provider.ErrAuth, Cause: err}
	}
	kv, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, &provider.Error{Kind: provider.ErrAuth, Cause: err}
	}
	return &Client{kv: kv}, nil
}

// ListOwned implements provider.Provider.
func (c *Client) ListOwned(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := provider.Retry(ctx, provider.DefaultMaxAttempts, provider.DefaultCallTimeout, func(callCtx context.Context) error {
		names = nil
		pager := c.kv.NewListSecretPropertiesPager(nil)
		for pager.More() {
			page, err := pager.NextPage(callCtx)
			if err != nil {
				return classifyErr(err)
			}
			for _, item := range page.Value {
				if item.ID == nil {
					continue
				}
				name := item.ID.Name()
				if strings.HasPrefix(name, prefix) {
					names = append(names, name)
				}
			}
		}
		return nil
	})
	return names, err
}

// ReadLatest implements provider.Provider.
func (c *Client) ReadLatest(ctx context.Context, name string) (provider.Version, bool, error) {
	secretName, err := pathbuilder.New(pathbuilder.OpGetSecretVersion).WithSecret(name).Build()
	if err != nil {
		return provider.Version{}, false, err
	}

	var version provider.Version
	var found bool
	err = provider.Retry(ctx, provider.DefaultMaxAttempts, provider.DefaultCallTimeout, func(callCtx context.Context) error {
		resp, err := c.kv.GetSecret(callCtx, secretName, "", nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if errors.As(err, &respErr) && respErr.StatusCode == 404 {
				found = false
				return nil
			}
			return classifyErr(err)
		}
		found = true
		var value []byte
		if resp.Value != nil {
			value = []byte(*resp.Value)
		}
		versionID := ""
		if resp.ID != nil {
			versionID = resp.ID.Version()
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

	secretName, err := pathbuilder.New(pathbuilder.OpAddSecretVersion).WithSecret(name).Build()
	if err != nil {
		return "", false, err
	}

	var versionID string
	err = provider.Retry(ctx, provider.DefaultMaxAttempts, provider.DefaultCallTimeout, func(callCtx context.Context) error {
		strValue := string(value)
		resp, err := c.kv.SetSecret(callCtx, secretName, azsecrets.SetSecretParameters{Value: &strValue}, nil)
		if err != nil {
			return classifyErr(err)
		}
		if resp.ID != nil {
			versionID = resp.ID.Version()
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return versionID, true, nil
}

// DisableVersion implements provider.Provider.
func (c *Client) DisableVersion(ctx context.Context, name, versionID string) error {
	secretName, err := pathbuilder.New(pathbuilder.OpDisableSecretVersion).WithSecret(name).WithVersion(versionID).Build()
	if err != nil {
		return err
	}

	return provider.Retry(ctx, provider.DefaultMaxAttempts, provider.DefaultCallTimeout, func(callCtx context.Context) error {
		enabled := false
		_, err := c.kv.UpdateSecretProperties(callCtx, secretName, versionID, azsecrets.UpdateSecretPropertiesParameters{
			SecretAttributes: &azsecrets.SecretAttributes{Enabled: &enabled},
		}, nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if errors.As(err, &respErr) && respErr.StatusCode == 404 {
				return nil
			}
			return classifyErr(err)
		}
		return nil
	})
}

func classifyErr(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 401, 403:
			return &provider.Error{Kind: provider.ErrAuth, Cause: err}
		case 404:
			return &provider.Error{Kind: provider.ErrNotFound, Cause: err}
		case 429:
			return &provider.Error{Kind: provider.ErrThrottled, Cause: err}
		}
	}
	return &provider.Error{Kind: provider.ErrNetwork, Cause: err}
}
