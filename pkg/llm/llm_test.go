package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderKnownNames(t *testing.T) {
	for _, name := range GetAllProviderNames() {
		p, err := NewProvider(name, "", "key")
		require.NoError(t, err, "provider %s", name)
		require.NotNil(t, p)

		openai, ok := p.(*OpenAIProvider)
		require.True(t, ok)
		assert.Equal(t, defaultBaseURLs[name], openai.baseURL)
	}
}

func TestNewProviderExplicitBaseURL(t *testing.T) {
	p, err := NewProvider(ProviderNameOllama, "http://gateway:4000/v1", "")
	require.NoError(t, err)
	assert.Equal(t, "http://gateway:4000/v1", p.(*OpenAIProvider).baseURL)
}

func TestNewProviderRejectsUnknownName(t *testing.T) {
	_, err := NewProvider(ProviderName("bard"), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}
