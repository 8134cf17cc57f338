package diff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/lineage-engine/internal/models"
)

// reconstruct rebuilds one side of the diff by kind-filtering hunks.
func reconstruct(hunks []models.DiffHunk, keep models.HunkKind) string {
	var lines []string
	for _, h := range hunks {
		if h.Kind == models.HunkUnchanged || h.Kind == keep {
			lines = append(lines, h.Lines...)
		}
	}
	return strings.Join(lines, "\n")
}

func TestComputeReconstructsBothSides(t *testing.T) {
	cases := []struct {
		name     string
		old, new string
	}{
		{"disjoint", "a\nb\nc", "x\ny"},
		{"insertion", "a\nc", "a\nb\nc"},
		{"deletion", "a\nb\nc", "a\nc"},
		{"replacement", "a\nb\nc", "a\nx\nc"},
		{"identical", "a\nb", "a\nb"},
		{"empty old", "", "a\nb"},
		{"empty new", "a\nb", ""},
		{"both empty", "", ""},
		{"trailing newline", "a\nb\n", "a\nb"},
		{"repeated lines", "a\na\nb\na", "a\nb\na\na"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hunks := Compute(tc.old, tc.new)
			assert.Equal(t, tc.old, reconstruct(hunks, models.HunkRemoved))
			assert.Equal(t, tc.new, reconstruct(hunks, models.HunkAdded))
		})
	}
}

func TestComputeIdenticalInputs(t *testing.T) {
	text := "alpha\nbeta\ngamma"
	hunks := Compute(text, text)

	require.Len(t, hunks, 1)
	assert.Equal(t, models.HunkUnchanged, hunks[0].Kind)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, hunks[0].Lines)
}

func TestComputeDeterminism(t *testing.T) {
	old := "a\nb\nc\nd"
	new := "a\nc\nb\nd"

	first := Compute(old, new)
	second := Compute(old, new)
	assert.Equal(t, first, second)
}

func TestComputeNoAdjacentHunksShareKind(t *testing.T) {
	hunks := Compute("a\nb\nc\nd\ne", "a\nx\nc\ny\ne")
	for i := 1; i < len(hunks); i++ {
		assert.NotEqual(t, hunks[i-1].Kind, hunks[i].Kind,
			"hunks %d and %d share kind %s", i-1, i, hunks[i].Kind)
	}
}

func TestComputeEmptyStringIsSingleEmptyLine(t *testing.T) {
	hunks := Compute("", "a")

	// "" splits to [""], so the empty side shows up as one removed empty
	// line, not as nothing.
	require.Len(t, hunks, 2)
	assert.Equal(t, models.DiffHunk{Kind: models.HunkRemoved, Lines: []string{""}}, hunks[0])
	assert.Equal(t, models.DiffHunk{Kind: models.HunkAdded, Lines: []string{"a"}}, hunks[1])
}

func TestComputeMidDocumentChange(t *testing.T) {
	old := "clause one\nclause two\nclause three"
	new := "clause one\nclause two revised\nclause three"

	hunks := Compute(old, new)

	require.Len(t, hunks, 4)
	assert.Equal(t, models.HunkUnchanged, hunks[0].Kind)
	assert.Equal(t, []string{"clause one"}, hunks[0].Lines)
	assert.ElementsMatch(t,
		[]models.HunkKind{models.HunkRemoved, models.HunkAdded},
		[]models.HunkKind{hunks[1].Kind, hunks[2].Kind})
	assert.Equal(t, models.HunkUnchanged, hunks[3].Kind)
	assert.Equal(t, []string{"clause three"}, hunks[3].Lines)
}

func TestComputeSizeGuard(t *testing.T) {
	lines := make([]string, MaxLines+1)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}
	big := strings.Join(lines, "\n")

	hunks := Compute(big, "")

	require.Len(t, hunks, 2)
	assert.Equal(t, models.HunkRemoved, hunks[0].Kind)
	assert.Equal(t, lines, hunks[0].Lines)
	assert.Equal(t, models.HunkAdded, hunks[1].Kind)
	assert.Empty(t, hunks[1].Lines)
}

func TestComputeGuardBoundary(t *testing.T) {
	// Exactly MaxLines on both sides still takes the exact path.
	lines := make([]string, MaxLines)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}
	text := strings.Join(lines, "\n")

	hunks := Compute(text, text)
	require.Len(t, hunks, 1)
	assert.Equal(t, models.HunkUnchanged, hunks[0].Kind)
}

func TestComputeTieBreakOrdering(t *testing.T) {
	// Replacing a lone line: ties move in the new-text direction during the
	// backward walk, which puts the removed hunk before the added one in
	// document order. The exact shape is load-bearing for rendered output.
	hunks := Compute("a", "b")

	require.Equal(t, []models.DiffHunk{
		{Kind: models.HunkRemoved, Lines: []string{"a"}},
		{Kind: models.HunkAdded, Lines: []string{"b"}},
	}, hunks)
}
