package remap

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/23skdu/contextrank/internal/errors"
	"github.com/23skdu/contextrank/internal/sampler"
)

func TestMap_Masked(t *testing.T) {
	subset := []int32{7, 2, 3, 0}

	rel, err := Map([]int32{3, 9, 7, 7, 1}, subset, 10, false)
	require.NoError(t, err)
	assert.Equal(t, []int32{2, Absent, 0, 0, Absent}, rel.Positions)
	assert.Equal(t, []bool{true, false, true, true, false}, rel.Mask)
	assert.Equal(t, 2, rel.Missing)
	assert.False(t, rel.Total())
	assert.Equal(t, []int32{2, 0, 0}, rel.Compact())
}

func TestMap_Inclusive(t *testing.T) {
	subset := []int32{7, 2, 3, 0}

	rel, err := Map([]int32{0, 7}, subset, 10, true)
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 0}, rel.Positions)
	assert.Nil(t, rel.Mask)
	assert.True(t, rel.Total())
	assert.Equal(t, rel.Positions, rel.Compact())
}

func TestMap_FastPathAgreesWithMasked(t *testing.T) {
	subset := []int32{4, 1, 8, 5}
	ids := []int32{8, 4, 5, 1, 8}

	fast, err := Map(ids, subset, 9, true)
	require.NoError(t, err)
	slow, err := Map(ids, subset, 9, false)
	require.NoError(t, err)

	assert.Equal(t, slow.Positions, fast.Positions)
	assert.Equal(t, slow.Compact(), fast.Compact())
	assert.Zero(t, slow.Missing)
}

func TestMap_OutOfRange(t *testing.T) {
	_, err := Map([]int32{10}, []int32{1}, 10, false)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeIndexOutOfRange))

	_, err = Map([]int32{-2}, []int32{1}, 10, true)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeIndexOutOfRange))

	_, err = NewIndex([]int32{3, 12}, 10)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeIndexOutOfRange))
}

func TestFilterAndKept(t *testing.T) {
	mask := []bool{true, false, true}
	assert.Equal(t, []string{"a", "c"}, Filter([]string{"a", "b", "c"}, mask))
	assert.Equal(t, []int{0, 2}, Kept(mask, 3))

	vals := []int32{4, 5}
	assert.Equal(t, vals, Filter(vals, nil))
	assert.Equal(t, []int{0, 1}, Kept(nil, 2))
}

func TestIndexReuse(t *testing.T) {
	x, err := NewIndex([]int32{5, 6}, 8)
	require.NoError(t, err)
	assert.Equal(t, 2, x.Len())

	a, err := x.Map([]int32{6}, false)
	require.NoError(t, err)
	b, err := x.Map([]int32{5, 7}, false)
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, a.Positions)
	assert.Equal(t, []int32{0, Absent}, b.Positions)
}

func TestScenarioFromSampler(t *testing.T) {
	s, err := sampler.New(10, 4, 3)
	require.NoError(t, err)
	sample, err := s.Sample([]int32{2, 3}, []int32{7})
	require.NoError(t, err)

	rel, err := Map([]int32{7}, sample.IDs, 10, true)
	require.NoError(t, err)
	require.GreaterOrEqual(t, rel.Positions[0], int32(0))
	require.Less(t, rel.Positions[0], int32(4))
	assert.Equal(t, int32(7), sample.IDs[rel.Positions[0]])

	rel, err = Map([]int32{9}, sample.IDs, 10, false)
	require.NoError(t, err)
	if sample.Set().Contains(9) {
		assert.True(t, rel.Mask[0])
	} else {
		assert.False(t, rel.Mask[0])
		assert.Equal(t, Absent, rel.Positions[0])
	}
}

// TestRoundTripProperties checks that every sampled id maps back to its position
// and that ids outside the sample are flagged absent.
func TestRoundTripProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	const numCandidates = 40

	properties.Property("sampled ids round trip", prop.ForAll(
		func(size int, seed int64, required []int32) bool {
			s, err := sampler.New(numCandidates, size, seed)
			if err != nil {
				return false
			}
			sample, err := s.Sample(nil, required)
			if err != nil {
				return false
			}

			all := make([]int32, numCandidates)
			for i := range all {
				all[i] = int32(i)
			}
			rel, err := Map(all, sample.IDs, numCandidates, false)
			if err != nil {
				return false
			}
			for p, id := range sample.IDs {
				if rel.Positions[id] != int32(p) || !rel.Mask[id] {
					return false
				}
			}
			set := sample.Set()
			for id := range all {
				if !set.Contains(uint32(id)) && (rel.Mask[id] || rel.Positions[id] != Absent) {
					return false
				}
			}
			return rel.Missing == numCandidates-size
		},
		gen.IntRange(1, numCandidates),
		gen.Int64(),
		gen.SliceOf(gen.Int32Range(0, numCandidates-1)),
	))

	properties.TestingRun(t)
}
