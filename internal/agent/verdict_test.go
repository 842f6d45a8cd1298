package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/review-orchestrator/constants"
)

func TestDecodeItemVerdictFull(t *testing.T) {
	v, err := DecodeItemVerdict([]byte(`{
		"result": "pass",
		"confidence": 0.95,
		"explanation": "Contractor info present in Article 3",
		"shortExplanation": "Pass: contractor info present",
		"extractedText": ["Article 3 (Contractor Information)"],
		"reviewType": "PDF",
		"inputTokens": 1200,
		"outputTokens": 80,
		"totalCost": 0.0042
	}`), nil)
	require.NoError(t, err)

	assert.Equal(t, constants.VerdictPass, v.Verdict)
	assert.InDelta(t, 0.95, v.Confidence, 1e-9)
	assert.Equal(t, `["Article 3 (Contractor Information)"]`, v.ExtractedText)
	assert.EqualValues(t, 1200, v.Usage.InputTokens)
	assert.EqualValues(t, 80, v.Usage.OutputTokens)
	assert.InDelta(t, 0.0042, v.Usage.TotalCost, 1e-12)
	assert.Empty(t, v.Defaulted)
}

func TestDecodeItemVerdictDefaults(t *testing.T) {
	v, err := DecodeItemVerdict([]byte(`{}`), nil)
	require.NoError(t, err)

	assert.Equal(t, constants.VerdictFail, v.Verdict)
	assert.Equal(t, DefaultConfidence, v.Confidence)
	assert.Equal(t, DefaultExplanation, v.Explanation)
	assert.Equal(t, DefaultShortExplanation, v.ShortExplanation)
	assert.ElementsMatch(t, []string{"result", "confidence", "explanation", "shortExplanation"}, v.Defaulted)
}

func TestDecodeItemVerdictLenientValues(t *testing.T) {
	v, err := DecodeItemVerdict([]byte(`{"result":" Warn ","confidence":"1.7","explanation":"x","shortExplanation":"y"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, constants.VerdictWarning, v.Verdict)
	assert.Equal(t, 1.0, v.Confidence)

	v, err = DecodeItemVerdict([]byte(`{"result":"maybe","explanation":"x","shortExplanation":"y","confidence":0.2}`), nil)
	require.NoError(t, err)
	assert.Equal(t, constants.VerdictFail, v.Verdict)
	assert.Equal(t, []string{"result(maybe)"}, v.Defaulted)
}

func TestDecodeItemVerdictRejectsNonObject(t *testing.T) {
	for _, body := range []string{`not json`, `[1,2]`, `{"result":42}`} {
		_, err := DecodeItemVerdict([]byte(body), nil)
		assert.True(t, errors.Is(err, ErrMalformedResponse), body)
	}
}

func TestDecodeNextAction(t *testing.T) {
	res, err := DecodeNextAction([]byte(`{"status":"success","nextAction":"Ask the vendor for a signed copy.","metrics":{"inputTokens":300,"outputTokens":40,"totalCost":0.01}}`))
	require.NoError(t, err)
	assert.Equal(t, "Ask the vendor for a signed copy.", res.Text)
	assert.EqualValues(t, 300, res.Usage.InputTokens)

	for _, body := range []string{`{"status":"error","message":"boom"}`, `{"status":"success"}`, `<html>`} {
		_, err := DecodeNextAction([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedResponse, body)
	}
}
