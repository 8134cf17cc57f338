package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Contract_v2_final.pdf", "contract"},
		{"Policy v1.pdf", "policy"},
		{"NDA.docx", "nda"},
		{"Sales Agreement.docx", "sales agreement"},
		{"Annual Report 2023 DRAFT", "annual report"},
		{"lease---agreement__copy", "lease agreement"},
		{"version 12 backup", ""},
		{"report.PDF", "report"},
		{"v2 final", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "Normalize(%q)", tc.in)
	}
}

func TestScoreIdentity(t *testing.T) {
	for _, name := range []string{"Contract.pdf", "x", "Sales Agreement"} {
		assert.Equal(t, 1.0, Score(name, name))
	}
}

func TestScoreVersionMarkersStripped(t *testing.T) {
	// Stripping "v2", "final" and the extension leaves identical names.
	assert.Equal(t, 1.0, Score("Contract_v2_final.pdf", "Contract.pdf"))
	assert.Greater(t, Score("Policy v2.pdf", "Policy v1.pdf"), 0.55)
}

func TestScoreUnrelatedNames(t *testing.T) {
	assert.Less(t, Score("NDA.docx", "Sales Agreement.docx"), 0.55)
}

func TestScoreEmptyAfterNormalization(t *testing.T) {
	// Names that strip to nothing must not look similar to anything,
	// including each other.
	assert.Equal(t, 0.0, Score("v2 final", "v3 draft"))
	assert.Equal(t, 0.0, Score("", "Contract.pdf"))
	assert.Equal(t, 0.0, Score("", ""))
}

func TestScoreRange(t *testing.T) {
	cases := [][2]string{
		{"Contract A", "Contract B"},
		{"short", "a considerably longer document name"},
		{"Invoice March", "Invoice April"},
	}
	for _, c := range cases {
		s := Score(c[0], c[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestScoreSymmetry(t *testing.T) {
	a, b := "Master Services Agreement", "Master Service Agreement v3"
	assert.Equal(t, Score(a, b), Score(b, a))
}
