package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerUnmarshalShapes(t *testing.T) {
	var a Answer

	require.NoError(t, json.Unmarshal([]byte(`{"text":"Paris"}`), &a))
	assert.Equal(t, AnswerOpen, a.Kind)
	assert.Equal(t, "Paris", a.Text)

	require.NoError(t, json.Unmarshal([]byte(`{"optionId":"b"}`), &a))
	assert.Equal(t, AnswerSingle, a.Kind)
	assert.Equal(t, "b", a.OptionID)

	require.NoError(t, json.Unmarshal([]byte(`{"optionIds":["a","c"]}`), &a))
	assert.Equal(t, AnswerMulti, a.Kind)
	assert.Equal(t, []string{"a", "c"}, a.OptionIDs)
}

func TestAnswerUnmarshalEmptyOptionIDs(t *testing.T) {
	// An explicitly empty list is a valid multi submission.
	var a Answer
	require.NoError(t, json.Unmarshal([]byte(`{"optionIds":[]}`), &a))
	assert.Equal(t, AnswerMulti, a.Kind)
	assert.Empty(t, a.OptionIDs)
}

func TestAnswerUnmarshalAmbiguous(t *testing.T) {
	cases := []string{
		`{}`,
		`{"text":"x","optionId":"a"}`,
		`{"text":"x","optionIds":["a"]}`,
		`{"optionId":"a","optionIds":["a"]}`,
		`{"text":"x","optionId":"a","optionIds":["a"]}`,
	}
	for _, raw := range cases {
		var a Answer
		err := json.Unmarshal([]byte(raw), &a)
		assert.ErrorIs(t, err, ErrAmbiguousAnswer, raw)
	}
}

func TestAnswerMarshalRoundTrip(t *testing.T) {
	orig := Answer{Kind: AnswerMulti, OptionIDs: []string{"a", "b"}}
	raw, err := json.Marshal(orig)
	require.NoError(t, err)
	assert.JSONEq(t, `{"optionIds":["a","b"]}`, string(raw))

	var back Answer
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, orig, back)
}

func TestAnswerMarshalUnknownKind(t *testing.T) {
	_, err := json.Marshal(Answer{})
	assert.Error(t, err)
}
