package artifact

import (
	"os"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ripeart/CountryBlock/cidr"
)

func loadSample(t *testing.T) []cidr.Block {
	t.Helper()

	f, err := os.Open("testdata/ng-sample.zone")
	require.NoError(t, err)
	defer f.Close()

	blocks, skipped, err := cidr.ParseList(f)
	require.NoError(t, err)
	require.Empty(t, skipped)
	return blocks
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestBuildRegexGolden(t *testing.T) {
	blocks := loadSample(t)

	got, err := BuildRegex(blocks, cidr.DefaultMaxWidth)
	require.NoError(t, err)
	newGoldie(t).Assert(t, "regex", got)

	narrow, err := BuildRegex(blocks, 45)
	require.NoError(t, err)
	newGoldie(t).Assert(t, "regex_narrow", narrow)
}

func TestBuildHostsGolden(t *testing.T) {
	got, err := BuildHosts(loadSample(t), 0)
	require.NoError(t, err)
	newGoldie(t).Assert(t, "hosts", got)
}

func TestEndToEndScenario(t *testing.T) {
	blocks, skipped, err := cidr.ParseList(strings.NewReader("10.0.0.0/30\n10.0.1.0/31"))
	require.NoError(t, err)
	require.Empty(t, skipped)

	assert.Equal(t, []string{`\b10\.0\.0\.[0-3]\b`, `\b10\.0\.1\.[0-1]\b`}, Fragments(blocks))

	regex, err := BuildRegex(blocks, cidr.DefaultMaxWidth)
	require.NoError(t, err)
	assert.Equal(t, `\b10\.0\.0\.[0-3]\b|\b10\.0\.1\.[0-1]\b`, string(regex))

	hosts, err := BuildHosts(blocks, 0)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1\n10.0.0.2\n10.0.1.0\n10.0.1.1", string(hosts))
}

func TestBuildHostsLimit(t *testing.T) {
	blocks := []cidr.Block{cidr.MustParseBlock("10.0.0.0/24"), cidr.MustParseBlock("10.0.1.0/31")}

	_, err := BuildHosts(blocks, 255)
	assert.ErrorIs(t, err, ErrHostLimit)

	got, err := BuildHosts(blocks, 256)
	require.NoError(t, err)
	assert.Equal(t, 256, strings.Count(string(got), "\n")+1)
}

func TestBuildEmpty(t *testing.T) {
	regex, err := BuildRegex(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, regex)

	hosts, err := BuildHosts(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, hosts)
}

func TestBuildRegexTooNarrow(t *testing.T) {
	_, err := BuildRegex([]cidr.Block{cidr.MustParseBlock("10.0.0.0/8")}, 10)
	assert.ErrorIs(t, err, cidr.ErrFragmentTooWide)
}

func TestArtifactString(t *testing.T) {
	a := Artifact{Kind: KindHosts, Path: "ip_blocks/ng_aggregated.zone", Content: []byte("1.2.3.4")}
	assert.Equal(t, "hosts(ip_blocks/ng_aggregated.zone, 7 bytes)", a.String())
}
