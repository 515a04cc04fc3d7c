package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/price-publisher/internal/db"
	"github.com/jonathan/price-publisher/internal/llm"
)

// fp builds a syntactically valid 64-char fingerprint from a single hex digit
func fp(c string) string {
	return strings.Repeat(c, 64)
}

// fakeLLM returns queued responses in order, then errors
type fakeLLM struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeLLM) GenerateJSON(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no response queued")
}

func (f *fakeLLM) Close() error { return nil }

// countingPacer records waits and optionally fails
type countingPacer struct {
	waits int
	err   error
}

func (p *countingPacer) Wait(_ context.Context) error {
	p.waits++
	return p.err
}

func listings(fps ...string) []db.Listing {
	out := make([]db.Listing, len(fps))
	for i, f := range fps {
		out[i] = db.Listing{Fingerprint: f, Name: fmt.Sprintf("item-%d", i), PriceCents: 100, Currency: "USD"}
	}
	return out
}

func TestClassifySingleChunk(t *testing.T) {
	response := fmt.Sprintf(`{"groups": {"electronics": [%q, %q], "home": [%q]}}`,
		fp("a"), fp("b"), fp("c"))
	client := &fakeLLM{responses: []string{response}}
	pacer := &countingPacer{}

	c := New(client, pacer)
	groups, failures := c.Classify(context.Background(), listings(fp("a"), fp("b"), fp("c")))

	assert.Empty(t, failures)
	assert.Equal(t, 1, pacer.waits)
	require.Len(t, groups, 2)
	assert.ElementsMatch(t, []string{fp("a"), fp("b")}, groups["electronics"])
	assert.Equal(t, []string{fp("c")}, groups["home"])
}

func TestClassifyStripsMarkdownFence(t *testing.T) {
	response := fmt.Sprintf("```json\n{\"groups\": {\"deals\": [%q]}}\n```", fp("a"))
	client := &fakeLLM{responses: []string{response}}

	c := New(client, &countingPacer{})
	groups, failures := c.Classify(context.Background(), listings(fp("a")))

	assert.Empty(t, failures)
	assert.Equal(t, []string{fp("a")}, groups["deals"])
}

func TestClassifyDropsUnknownFingerprints(t *testing.T) {
	response := fmt.Sprintf(`{"groups": {"deals": [%q, %q]}}`, fp("a"), fp("f"))
	client := &fakeLLM{responses: []string{response}}

	c := New(client, &countingPacer{})
	groups, failures := c.Classify(context.Background(), listings(fp("a")))

	assert.Empty(t, failures)
	assert.Equal(t, []string{fp("a")}, groups["deals"], "invented fingerprints must be dropped")
}

func TestClassifyMalformedChunkIsIsolated(t *testing.T) {
	good := fmt.Sprintf(`{"groups": {"deals": [%q]}}`, fp("b"))
	client := &fakeLLM{responses: []string{"not json at all", good}}

	c := New(client, &countingPacer{})
	c.chunkSize = 1

	groups, failures := c.Classify(context.Background(), listings(fp("a"), fp("b")))

	require.Len(t, failures, 1)
	assert.Equal(t, 0, failures[0].Chunk)
	assert.Equal(t, []string{fp("b")}, groups["deals"], "the good chunk must survive")
}

func TestClassifySchemaViolationFailsChunk(t *testing.T) {
	// Members must be fingerprint strings, not objects.
	client := &fakeLLM{responses: []string{`{"groups": {"deals": [{"bad": true}]}}`}}

	c := New(client, &countingPacer{})
	groups, failures := c.Classify(context.Background(), listings(fp("a")))

	require.Len(t, failures, 1)
	assert.ErrorContains(t, &failures[0], "malformed classification output")
	assert.Empty(t, groups)
}

func TestClassifyCallErrorFailsChunk(t *testing.T) {
	client := &fakeLLM{errs: []error{errors.New("quota exceeded")}}

	c := New(client, &countingPacer{})
	groups, failures := c.Classify(context.Background(), listings(fp("a")))

	require.Len(t, failures, 1)
	assert.Empty(t, groups)
}

func TestClassifyMergesChunks(t *testing.T) {
	first := fmt.Sprintf(`{"groups": {"deals": [%q, %q]}}`, fp("a"), fp("b"))
	second := fmt.Sprintf(`{"groups": {"deals": [%q], "home": [%q]}}`, fp("c"), fp("d"))
	client := &fakeLLM{responses: []string{first, second}}
	pacer := &countingPacer{}

	c := New(client, pacer)
	c.chunkSize = 2

	groups, failures := c.Classify(context.Background(), listings(fp("a"), fp("b"), fp("c"), fp("d")))

	assert.Empty(t, failures)
	assert.Equal(t, 2, pacer.waits)
	assert.ElementsMatch(t, []string{fp("a"), fp("b"), fp("c")}, groups["deals"])
	assert.Equal(t, []string{fp("d")}, groups["home"])
}

func TestClassifyPacerErrorStops(t *testing.T) {
	client := &fakeLLM{}
	pacer := &countingPacer{err: context.Canceled}

	c := New(client, pacer)
	groups, failures := c.Classify(context.Background(), listings(fp("a")))

	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Cause, context.Canceled)
	assert.Empty(t, groups)
	assert.Equal(t, 0, client.calls, "no call after the pacer rejects")
}

func TestClassifyEmptyInput(t *testing.T) {
	client := &fakeLLM{}
	pacer := &countingPacer{}

	c := New(client, pacer)
	groups, failures := c.Classify(context.Background(), nil)

	assert.Empty(t, groups)
	assert.Empty(t, failures)
	assert.Equal(t, 0, pacer.waits)
}
