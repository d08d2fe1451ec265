package monitorparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_KeyValuePairs(t *testing.T) {
	pairs := Parse("starting up\nOUT=cpu=23.5\ttemp=67.2\ndone\n")
	assert.Equal(t, []Pair{{"cpu", 23.5}, {"temp", 67.2}}, pairs)
}

func TestParse_BareNumberBecomesValue(t *testing.T) {
	pairs := Parse("OUT=42\n")
	assert.Equal(t, []Pair{{"value", 42}}, pairs)
}

func TestParse_LastOutLineWins(t *testing.T) {
	pairs := Parse("OUT=old=1\nnoise\nOUT=new=2\n")
	assert.Equal(t, []Pair{{"new", 2}}, pairs)
}

func TestParse_DiscardsNonNumericTokens(t *testing.T) {
	pairs := Parse("OUT=cpu=abc\tok=5\tjunk\n")
	assert.Equal(t, []Pair{{"ok", 5}}, pairs)
}

func TestParse_NoOutLineReturnsNil(t *testing.T) {
	assert.Nil(t, Parse("hello\nworld\n"))
}

func TestParse_TrimsWhitespaceAroundKeyAndValue(t *testing.T) {
	pairs := Parse("OUT= cpu = 12.0 \n")
	assert.Equal(t, []Pair{{"cpu", 12.0}}, pairs)
}
