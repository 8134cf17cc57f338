package diff

import (
	"strings"

	"github.com/feichai0017/lineage-engine/internal/models"
)

// MaxLines bounds the O(m*n) LCS table. Inputs with more lines on either
// side skip the algorithm and degrade to a whole-document replace, so no
// external timeout is needed to bound diff cost.
const MaxLines = 3000

// Compute returns the line diff between two texts as an ordered hunk
// sequence. Lines are split on '\n' ("" splits to one empty line) and
// compared by exact string equality, so output is fully deterministic.
//
// Over the size guard the result is always exactly two hunks, removed then
// added; a side that is the empty string contributes an empty hunk there,
// which is kept rather than omitted.
func Compute(oldText, newText string) []models.DiffHunk {
	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")

	if len(oldLines) > MaxLines || len(newLines) > MaxLines {
		return []models.DiffHunk{
			{Kind: models.HunkRemoved, Lines: guardLines(oldText, oldLines)},
			{Kind: models.HunkAdded, Lines: guardLines(newText, newLines)},
		}
	}

	table := lcsTable(oldLines, newLines)
	return backtrack(table, oldLines, newLines)
}

func guardLines(text string, lines []string) []string {
	if text == "" {
		return []string{}
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

// lcsTable fills the standard longest-common-subsequence DP table over
// lines: table[i][j] is the LCS length of the first i old lines and the
// first j new lines.
func lcsTable(oldLines, newLines []string) [][]int {
	m, n := len(oldLines), len(newLines)
	table := make([][]int, m+1)
	for i := range table {
		table[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if oldLines[i-1] == newLines[j-1] {
				table[i][j] = table[i-1][j-1] + 1
			} else if table[i-1][j] > table[i][j-1] {
				table[i][j] = table[i-1][j]
			} else {
				table[i][j] = table[i][j-1]
			}
		}
	}
	return table
}

// backtrack walks the table from (m,n) to (0,0), emitting hunks. On a tie
// the new-text direction wins (table[i][j-1] >= table[i-1][j] emits added);
// this picks one specific minimal edit script and must not change, since
// hunk boundaries depend on it.
func backtrack(table [][]int, oldLines, newLines []string) []models.DiffHunk {
	type step struct {
		kind models.HunkKind
		line string
	}

	i, j := len(oldLines), len(newLines)
	steps := make([]step, 0, i+j)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && oldLines[i-1] == newLines[j-1]:
			steps = append(steps, step{models.HunkUnchanged, oldLines[i-1]})
			i--
			j--
		case j > 0 && (i == 0 || table[i][j-1] >= table[i-1][j]):
			steps = append(steps, step{models.HunkAdded, newLines[j-1]})
			j--
		default:
			steps = append(steps, step{models.HunkRemoved, oldLines[i-1]})
			i--
		}
	}

	// steps are in reverse order; walk backwards and coalesce runs of the
	// same kind so no two adjacent hunks share a kind.
	var hunks []models.DiffHunk
	for k := len(steps) - 1; k >= 0; k-- {
		s := steps[k]
		if len(hunks) == 0 || hunks[len(hunks)-1].Kind != s.kind {
			hunks = append(hunks, models.DiffHunk{Kind: s.kind})
		}
		last := &hunks[len(hunks)-1]
		last.Lines = append(last.Lines, s.line)
	}
	return hunks
}
