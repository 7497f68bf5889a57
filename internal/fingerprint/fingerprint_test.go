package fingerprint

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mordonez-me/capibara/internal/capability"
)

// TestGoldenVectors pins the v1 digest. Any change here breaks every
// deployed client, so the golden file must never be regenerated casually.
func TestGoldenVectors(t *testing.T) {
	vectors := []struct {
		name  string
		names []string
	}{
		{"empty", nil},
		{"single", []string{"feed.page.v1"}},
		{"pair", []string{"feed.page.v1", "feed.cursor.v2"}},
		{"catalog", []string{"profile.prefs.v3", "feed.page.v1", "checkout.flow.v1", "feed.cursor.v2"}},
		{"boundary", []string{"a", "b"}},
	}

	var b strings.Builder
	for _, v := range vectors {
		s := capability.NewSet(v.names...)
		fmt.Fprintf(&b, "%s\t[%s]\t%s\n", v.name, s.String(), Of(s))
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "vectors", []byte(b.String()))
}

func TestCompute_OrderIndependent(t *testing.T) {
	a := Compute("feed.page.v1", "feed.cursor.v2", "profile.prefs.v3")
	b := Compute("profile.prefs.v3", "feed.page.v1", "feed.cursor.v2")
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.String(), b.String())
}

func TestCompute_DuplicatesCollapse(t *testing.T) {
	assert.Equal(t, Compute("feed.page.v1").String(), Compute("feed.page.v1", "feed.page.v1").String())
}

func TestCompute_UnicodeNormalized(t *testing.T) {
	nfd := Compute("cafe\u0301.v1")
	nfc := Compute("caf\u00e9.v1")
	assert.True(t, nfd.Equal(nfc))
}

func TestCompute_NoBoundaryCollision(t *testing.T) {
	// "a","b" and "ab" would collide without a separator.
	assert.False(t, Compute("a", "b").Equal(Compute("ab")))
	assert.Equal(t, "v1:dbe69e7db3c2d73520c21de52f9bbc1a52ed80ab88df2df69757ae27edd1a5c7", Compute("ab").String())
}

func TestCompute_Distinct(t *testing.T) {
	assert.False(t, Compute("feed.page.v1").Equal(Compute("feed.cursor.v2")))
	assert.False(t, Compute().Equal(Compute("feed.page.v1")))
}

func TestParse_RoundTrip(t *testing.T) {
	fp := Compute("feed.page.v1", "feed.cursor.v2")

	parsed, err := Parse(fp.String())
	require.NoError(t, err)
	assert.True(t, fp.Equal(parsed))
	assert.Equal(t, fp.String(), parsed.String())
}

func TestParse_Errors(t *testing.T) {
	valid := Compute("feed.page.v1").String()
	digest := strings.TrimPrefix(valid, "v1:")

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrMalformed},
		{"no version tag", digest, ErrMalformed},
		{"empty version", ":" + digest, ErrMalformed},
		{"future version", "v2:" + digest, ErrUnsupportedVersion},
		{"short digest", "v1:abcd", ErrMalformed},
		{"uppercase digest", "v1:" + strings.ToUpper(digest), ErrMalformed},
		{"non-hex digest", "v1:" + strings.Repeat("z", 64), ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFingerprint_Zero(t *testing.T) {
	var fp Fingerprint
	assert.True(t, fp.IsZero())
	assert.Equal(t, "", fp.String())
	assert.False(t, Compute().IsZero())
}

func TestFingerprint_Text(t *testing.T) {
	fp := Compute("feed.page.v1")

	text, err := fp.MarshalText()
	require.NoError(t, err)

	var decoded Fingerprint
	require.NoError(t, decoded.UnmarshalText(text))
	assert.True(t, fp.Equal(decoded))

	require.NoError(t, decoded.UnmarshalText(nil))
	assert.True(t, decoded.IsZero())

	assert.Error(t, decoded.UnmarshalText([]byte("v9:00")))
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("garbage") })
}
