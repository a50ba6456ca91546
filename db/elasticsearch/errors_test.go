package elasticsearch

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResponse(statusCode int, body string) *esapi.Response {
	return &esapi.Response{
		StatusCode: statusCode,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestResponseError(t *testing.T) {
	testCases := []struct {
		name             string
		response         *esapi.Response
		expectedMessages []string
	}{
		{
			name: "error with root causes",
			response: newResponse(
				http.StatusBadRequest,
				`{"error":{"type":"search_phase_execution_exception","reason":"all shards failed",`+
					`"root_cause":[{"type":"query_shard_exception","reason":"failed to create query"}]},`+
					`"status":400}`,
			),
			expectedMessages: []string{
				"all shards failed (search_phase_execution_exception, status 400)",
				"failed to create query (query_shard_exception)",
			},
		},
		{
			name: "error without reason",
			response: newResponse(
				http.StatusNotFound,
				`{"error":{"type":"index_not_found_exception"},"status":404}`,
			),
			expectedMessages: []string{"(index_not_found_exception, status 404)"},
		},
		{
			name:             "non-JSON body",
			response:         newResponse(http.StatusBadGateway, "upstream unavailable\n"),
			expectedMessages: []string{"request failed with status 502: upstream unavailable"},
		},
		{
			name:             "empty body",
			response:         newResponse(http.StatusServiceUnavailable, ""),
			expectedMessages: []string{"request failed with status 503"},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := responseError(testCase.response)
			require.Error(t, err)

			for _, message := range testCase.expectedMessages {
				assert.Contains(t, err.Error(), message)
			}
		})
	}
}

func TestResponseErrorOnSuccess(t *testing.T) {
	assert.NoError(t, responseError(newResponse(http.StatusOK, `{"hits":{}}`)))
}

func TestFormatElasticErrorUsesCausedBy(t *testing.T) {
	reason := "mapping failed"
	causeReason := "unknown field type"

	err := wrapElasticError(&types.ElasticsearchError{
		Status: 400,
		ErrorCause: types.ErrorCause{
			Type:     "mapper_parsing_exception",
			Reason:   &reason,
			CausedBy: &types.ErrorCause{Type: "illegal_argument_exception", Reason: &causeReason},
		},
	}, "create index request failed")

	assert.Contains(t, err.Error(), "create index request failed")
	assert.Contains(t, err.Error(), "mapping failed (mapper_parsing_exception, status 400)")
	assert.Contains(t, err.Error(), "unknown field type (illegal_argument_exception)")
}

func TestFormatElasticErrorPassesOtherErrorsThrough(t *testing.T) {
	err := errors.New("connection refused")
	assert.Equal(t, err, formatElasticError(err))
}
