package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 {
	return &v
}

func TestClassName(t *testing.T) {
	tests := []struct {
		name      string
		qualified string
		expected  string
	}{
		{
			name:      "class and member",
			qualified: "pkg.OrderTest.testCreate",
			expected:  "pkg.OrderTest",
		},
		{
			name:      "suite prefix stripped",
			qualified: "Integration:pkg.OrderTest.testCreate",
			expected:  "pkg.OrderTest",
		},
		{
			name:      "no member separator",
			qualified: "standalone",
			expected:  "standalone",
		},
		{
			name:      "suite prefix without member",
			qualified: "suite:standalone",
			expected:  "standalone",
		},
		{
			name:      "only first colon is a qualifier",
			qualified: "suite:a.b:c.member",
			expected:  "a.b:c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassName(tt.qualified))
		})
	}
}

func TestPartitionSkipped(t *testing.T) {
	occ := []Occurrence{{Name: "pkg.A.x", Duration: 100}}

	assert.Nil(t, Partition(occ, 1, nil))
	assert.Nil(t, Partition(occ, 0, ptr(1000)))
}

func TestPartitionThresholdIsExclusive(t *testing.T) {
	// threshold = 1500 / 3 = 500; durations equal to the threshold are fast.
	occ := []Occurrence{
		{Name: "pkg.A.x", Duration: 500},
		{Name: "pkg.B.y", Duration: 500},
		{Name: "pkg.C.z", Duration: 500},
	}

	outcome := Partition(occ, 3, ptr(1500))
	require.NotNil(t, outcome)

	assert.Equal(t, int64(500), outcome.Threshold)
	assert.Empty(t, outcome.Slow)
	assert.Len(t, outcome.Fast, 3)
	assert.Equal(t, int64(1500), outcome.FastTotal)
}

func TestPartitionClassPropagation(t *testing.T) {
	// threshold = 500.
	execTime := ptr(int64(1000))

	t.Run("slow first infects later member", func(t *testing.T) {
		occ := []Occurrence{
			{Name: "pkg.A.slow", Duration: 501},
			{Name: "pkg.A.quick", Duration: 1},
		}

		outcome := Partition(occ, 2, execTime)
		require.NotNil(t, outcome)

		require.Len(t, outcome.Slow, 2)
		assert.Empty(t, outcome.Fast)
		assert.Equal(t, int64(502), outcome.SlowTotal)
	})

	t.Run("propagation never reaches back", func(t *testing.T) {
		occ := []Occurrence{
			{Name: "pkg.A.quick", Duration: 1},
			{Name: "pkg.A.slow", Duration: 501},
		}

		outcome := Partition(occ, 2, execTime)
		require.NotNil(t, outcome)

		require.Len(t, outcome.Slow, 1)
		assert.Equal(t, "pkg.A.slow", outcome.Slow[0].Name)
		require.Len(t, outcome.Fast, 1)
		assert.Equal(t, "pkg.A.quick", outcome.Fast[0].Name)
	})
}

func TestPartitionMixedExample(t *testing.T) {
	// threshold = 1500 / 3 = 500.
	occ := []Occurrence{
		{Name: "pkg.A#slow", Duration: 600},
		{Name: "pkg.A#quick", Duration: 100},
		{Name: "pkg.B#x", Duration: 50},
	}

	outcome := Partition(occ, 3, ptr(1500))
	require.NotNil(t, outcome)

	require.Len(t, outcome.Slow, 2)
	assert.Equal(t, "pkg.A#slow", outcome.Slow[0].Name)
	assert.Equal(t, "pkg.A#quick", outcome.Slow[1].Name)
	assert.Equal(t, int64(700), outcome.SlowTotal)

	require.Len(t, outcome.Fast, 1)
	assert.Equal(t, "pkg.B#x", outcome.Fast[0].Name)
	assert.Equal(t, int64(50), outcome.FastTotal)

	assert.Equal(t, int64(350), outcome.SlowAverage())
	assert.Equal(t, int64(50), outcome.FastAverage())
}

func TestPartitionAuthoritativeCountWins(t *testing.T) {
	// Only two occurrences were fetched, but the authoritative suite size
	// is four, so the threshold divides across four.
	occ := []Occurrence{
		{Name: "pkg.A.x", Duration: 300},
		{Name: "pkg.B.y", Duration: 100},
	}

	outcome := Partition(occ, 4, ptr(int64(1000)))
	require.NotNil(t, outcome)
	assert.Equal(t, int64(250), outcome.Threshold)
	assert.Len(t, outcome.Slow, 1)
	assert.Len(t, outcome.Fast, 1)
}

func TestSlowFastClasses(t *testing.T) {
	occ := []Occurrence{
		{Name: "pkg.A.quick", Duration: 1},
		{Name: "pkg.A.slow", Duration: 900},
		{Name: "pkg.B.x", Duration: 10},
		{Name: "pkg.C.slow", Duration: 700},
		{Name: "pkg.C.other", Duration: 5},
	}

	outcome := Partition(occ, 5, ptr(int64(2500)))
	require.NotNil(t, outcome)

	assert.Equal(t, []string{"pkg.A", "pkg.C"}, outcome.SlowClasses())

	// pkg.A.quick ran before its class turned slow; the class still must
	// not surface on the fast side of the split.
	assert.Equal(t, []string{"pkg.B"}, outcome.FastClasses())
}

func TestHypotheticalBuildTimes(t *testing.T) {
	occ := []Occurrence{
		{Name: "pkg.A.slow", Duration: 600},
		{Name: "pkg.B.x", Duration: 50},
	}

	outcome := Partition(occ, 2, ptr(int64(1000)))
	require.NotNil(t, outcome)

	slowOnly, fastOnly := outcome.HypotheticalBuildTimes(5000)
	assert.Equal(t, int64(4600), slowOnly)
	assert.Equal(t, int64(4050), fastOnly)
}
