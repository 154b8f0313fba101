// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package secrets_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vignette-dev/vignette/internal/secrets"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

func TestParseKeyringURI(t *testing.T) {
	service, key, err := secrets.ParseKeyringURI("keyring://vignette/openai-api-key")
	require.NoError(t, err)
	assert.Equal(t, "vignette", service)
	assert.Equal(t, "openai-api-key", key)

	_, _, err = secrets.ParseKeyringURI("keyring://missing-key")
	assert.True(t, vgerr.IsInvalidInput(err))

	_, _, err = secrets.ParseKeyringURI("vault://vignette/key")
	assert.True(t, vgerr.IsInvalidInput(err))
}

func TestResolveKeyringURIPassthrough(t *testing.T) {
	ks := secrets.NewKeyringStore()

	val, err := secrets.ResolveKeyringURI(ks, "sk-plain-value")
	require.NoError(t, err)
	assert.Equal(t, "sk-plain-value", val)
}

func TestResolveKeyringURI(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store("vignette-test-resolve", "openai-api-key", "sk-from-keyring"))

	val, err := secrets.ResolveKeyringURI(ks, "keyring://vignette-test-resolve/openai-api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-keyring", val)

	_, err = secrets.ResolveKeyringURI(ks, "keyring://vignette-test-resolve/absent")
	require.Error(t, err)
	assert.True(t, vgerr.HasCode(err, vgerr.CodeSecretResolveFailure))
}

func TestResolveViperSecrets(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store("vignette-test-viper", "openai-api-key", "sk-resolved"))

	v := viper.New()
	v.Set("providers.openai.api_key", "keyring://vignette-test-viper/openai-api-key")
	v.Set("providers.google.api_key", "plain-key")
	v.Set("providers.anthropic.api_key", "keyring://vignette-test-viper/absent")

	secrets.ResolveViperSecrets(v, ks)

	assert.Equal(t, "sk-resolved", v.GetString("providers.openai.api_key"))
	assert.Equal(t, "plain-key", v.GetString("providers.google.api_key"))
	// Unresolvable URIs keep their original value.
	assert.Equal(t, "keyring://vignette-test-viper/absent", v.GetString("providers.anthropic.api_key"))
}
