package scans

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget_Normalizes(t *testing.T) {
	got, err := ParseTarget("  HTTPS://Example.COM:8443/Login?next=/a#frag ")
	require.NoError(t, err)
	assert.Equal(t, Target("https://example.com:8443/Login?next=/a"), got)
	assert.Equal(t, "example.com", got.Host())
	assert.NoError(t, got.Validate())
}

func TestParseTarget_RejectsMalformed(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"not-a-url",
		"example.com",
		"/relative/path",
		"ftp://example.com",
		"mailto:someone@example.com",
		"https://",
		"http://exa mple.com",
		"javascript:alert(1)",
		"http://--script=broadcast/",
		"http://-oNpwned/",
		"http://-iL/",
		"http://exa-.com/",
		"http://a..b/",
		"http://a_b.example.com/",
		"http://[fe80::1%25eth0]/",
	}
	for _, in := range inputs {
		_, err := ParseTarget(in)
		assert.ErrorIs(t, err, ErrValidation, "input %q", in)
	}
}

func TestTargetValidate_RequiresNormalizedForm(t *testing.T) {
	assert.ErrorIs(t, Target("https://EXAMPLE.com").Validate(), ErrValidation)
	assert.ErrorIs(t, Target("nope").Validate(), ErrValidation)
}

func TestParseTarget_Idempotent(t *testing.T) {
	first, err := ParseTarget("http://Example.com/a b?q=1")
	require.NoError(t, err)
	second, err := ParseTarget(string(first))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseTarget_HostForms(t *testing.T) {
	for _, in := range []string{
		"http://example.com./",
		"http://sub-domain.example.com:8080/",
		"http://93.184.216.34/",
		"https://[2606:2800:220:1:248:1893:25c8:1946]/",
		"http://xn--bcher-kva.example/",
	} {
		got, err := ParseTarget(in)
		require.NoError(t, err, in)
		assert.NotEmpty(t, got.Host(), in)
	}
	assert.Empty(t, Target("http://-iL/").Host())
}

func TestParseTarget_MaxLength(t *testing.T) {
	base := "https://example.com/"
	ok := base + strings.Repeat("a", MaxTargetLength-len(base))
	_, err := ParseTarget(ok)
	require.NoError(t, err)

	_, err = ParseTarget(ok + "a")
	assert.ErrorIs(t, err, ErrValidation)
}
