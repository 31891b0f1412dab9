package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cuttlefish/core"
)

func TestParseResponse(t *testing.T) {
	t.Run("bare task array", func(t *testing.T) {
		items, errs, ok := parseResponse([]byte(`[{"taskType":"imageInference","taskUUID":"a","imageURL":"http://x/1.jpg"}]`))
		require.True(t, ok)
		require.Empty(t, errs)
		require.Len(t, items, 1)
		assert.Equal(t, "a", items[0].TaskUUID)
		assert.Equal(t, "http://x/1.jpg", items[0].ImageURL)
	})

	t.Run("data envelope", func(t *testing.T) {
		items, errs, ok := parseResponse([]byte(`{"data":[{"taskType":"imageInference","taskUUID":"b","status":"processing"}]}`))
		require.True(t, ok)
		require.Empty(t, errs)
		require.Len(t, items, 1)
		assert.Equal(t, "processing", items[0].Status)
	})

	t.Run("error pulled out of the item", func(t *testing.T) {
		items, errs, ok := parseResponse([]byte(`{"data":[
			{"taskType":"imageInference","taskUUID":"c","error":{"code":"invalidModel","message":"unknown model"}},
			{"taskType":"imageInference","taskUUID":"d","imageURL":"http://x/2.jpg"}
		]}`))
		require.True(t, ok)
		require.Len(t, errs, 1)
		assert.Equal(t, "invalidModel", errs[0].Code)
		require.Len(t, items, 1)
		assert.Equal(t, "d", items[0].TaskUUID)
	})

	t.Run("top level error object", func(t *testing.T) {
		_, errs, ok := parseResponse([]byte(`{"error":{"code":"invalidApiKey","message":"bad key"}}`))
		require.True(t, ok)
		require.Len(t, errs, 1)
		assert.Equal(t, "invalidApiKey", errs[0].Code)
	})

	t.Run("top level errors list", func(t *testing.T) {
		_, errs, ok := parseResponse([]byte(`{"errors":[{"code":"one"},{"code":"two"}]}`))
		require.True(t, ok)
		require.Len(t, errs, 2)
	})

	t.Run("string error form", func(t *testing.T) {
		_, errs, ok := parseResponse([]byte(`{"error":"something broke"}`))
		require.True(t, ok)
		require.Len(t, errs, 1)
		assert.Equal(t, "something broke", errs[0].Message)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, _, ok := parseResponse([]byte(`<html>Bad Gateway</html>`))
		assert.False(t, ok)
	})
}

func TestClassifyTaskError(t *testing.T) {
	tests := []struct {
		name string
		err  TaskError
		want core.Kind
	}{
		{"rate limit", TaskError{Code: "rateLimitExceeded"}, core.KindRateLimited},
		{"quota", TaskError{Message: "monthly quota exhausted"}, core.KindRateLimited},
		{"credits", TaskError{Message: "insufficient credits"}, core.KindRateLimited},
		{"timeout", TaskError{Code: "serverTimeout"}, core.KindTransient},
		{"internal", TaskError{Message: "internal error"}, core.KindTransient},
		{"unavailable", TaskError{Message: "service unavailable"}, core.KindTransient},
		{"moderation", TaskError{Code: "contentModeration", Message: "prompt was flagged"}, core.KindRejected},
		{"unknown code", TaskError{Code: "somethingElse"}, core.KindRejected},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, core.KindOf(classifyTaskError(tc.err)))
		})
	}
}

func TestErrText(t *testing.T) {
	assert.Equal(t, "code: message", errText(TaskError{Code: "code", Message: "message"}))
	assert.Equal(t, "code", errText(TaskError{Code: "code"}))
	assert.Equal(t, "message", errText(TaskError{Message: "message"}))
}

func TestFindResult(t *testing.T) {
	items := []TaskResult{
		{TaskType: taskAuthentication, TaskUUID: "a"},
		{TaskType: taskImageInference, TaskUUID: "a", ImageURL: "http://x/1.jpg"},
		{TaskType: taskImageInference, TaskUUID: "b"},
	}

	got := findResult(items, "a")
	require.NotNil(t, got)
	assert.Equal(t, "http://x/1.jpg", got.ImageURL)

	assert.Nil(t, findResult(items, "missing"))
}

func TestStillRunning(t *testing.T) {
	assert.True(t, stillRunning("pending"))
	assert.True(t, stillRunning("processing"))
	assert.True(t, stillRunning("Scheduled"))
	assert.False(t, stillRunning("success"))
	assert.False(t, stillRunning(""))
}
