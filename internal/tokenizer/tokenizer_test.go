package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	zipPattern = `^([A-Z]+)_(\d{4})(\d{2})(\d{2})_(\d+)\.zip$`
	xmlPattern = `^([A-Z]+)_(\d{4})(\d{2})(\d{2})_(\d+)_(specimen|experiment)\.xml$`
)

func newTestTokenizer(t *testing.T) *Tokenizer {
	tok, err := New(zipPattern, xmlPattern, func(centre string) bool {
		return centre == "ABCD"
	})
	require.NoError(t, err)
	return tok
}

func TestTokenize_Zip(t *testing.T) {
	tok := newTestTokenizer(t)
	got := tok.Tokenize("ABCD_20140115_1.zip")
	assert.Equal(t, KindZip, got.Kind)
	assert.Equal(t, "ABCD", got.Centre)
	assert.Equal(t, 2014, got.Year)
	assert.Equal(t, 1, got.Month)
	assert.Equal(t, 15, got.Day)
	assert.Equal(t, 1, got.Increment)
}

func TestTokenize_XML_Specimen(t *testing.T) {
	tok := newTestTokenizer(t)
	got := tok.Tokenize("ABCD_20140115_1_specimen.xml")
	assert.Equal(t, KindXML, got.Kind)
	assert.Equal(t, DocKindSpecimen, got.Doc)
}

func TestTokenize_XML_Experiment(t *testing.T) {
	tok := newTestTokenizer(t)
	got := tok.Tokenize("ABCD_20140115_1_experiment.xml")
	assert.Equal(t, KindXML, got.Kind)
	assert.Equal(t, DocKindExperiment, got.Doc)
}

func TestTokenize_UnknownCentre(t *testing.T) {
	tok := newTestTokenizer(t)
	got := tok.Tokenize("ZZZZ_20140115_1.zip")
	assert.Equal(t, KindNone, got.Kind)
}

func TestTokenize_MonthOutOfRange(t *testing.T) {
	tok := newTestTokenizer(t)
	got := tok.Tokenize("ABCD_20141315_1.zip")
	assert.Equal(t, KindNone, got.Kind)
}

func TestTokenize_DayOutOfRange(t *testing.T) {
	tok := newTestTokenizer(t)
	got := tok.Tokenize("ABCD_20140199_1.zip")
	assert.Equal(t, KindNone, got.Kind)
}

func TestTokenize_NoMatch(t *testing.T) {
	tok := newTestTokenizer(t)
	got := tok.Tokenize("not-a-recognisable-name.txt")
	assert.Equal(t, KindNone, got.Kind)
}

func TestTokenize_RoundTrip(t *testing.T) {
	tok := newTestTokenizer(t)
	for _, inc := range []int{0, 1, 42} {
		name := "ABCD_20200229_" + itoa(inc) + ".zip"
		got := tok.Tokenize(name)
		assert.Equal(t, KindZip, got.Kind)
		assert.Equal(t, inc, got.Increment)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
