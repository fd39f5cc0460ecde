package rag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		query string
		want  Intent
	}{
		{"", IntentDocumentQuery},
		{"   ", IntentDocumentQuery},
		{"hi", IntentGreeting},
		{"Hello there!", IntentGreeting},
		{"good morning", IntentGreeting},
		{"thanks!", IntentGratitude},
		{"Thank you so much", IntentGratitude},
		{"thanks for the help", IntentGratitude},
		{"bye", IntentFarewell},
		{"See you later!", IntentFarewell},
		{"who are you", IntentMeta},
		{"What can you do for me?", IntentMeta},
		{"how does this work?", IntentMeta},
		{"help", IntentMeta},
		{"What is my deductible?", IntentDocumentQuery},
		{"hi, what is my deductible?", IntentDocumentQuery},
		{"thanks, but what does section 4 cover?", IntentDocumentQuery},
		{"thanks for that, what is the premium?", IntentDocumentQuery},
		{"helpful coverages in my policy", IntentDocumentQuery},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ClassifyIntent(tc.query), "query=%q", tc.query)
	}
}

func TestIntentIsConversational(t *testing.T) {
	require.False(t, IntentDocumentQuery.IsConversational())
	for _, it := range []Intent{IntentGreeting, IntentGratitude, IntentFarewell, IntentMeta} {
		require.True(t, it.IsConversational())
	}
}
