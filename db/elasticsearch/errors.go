package elasticsearch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"hermannm.dev/wrap"
)

func wrapElasticError(wrapped error, message string) error {
	return wrap.Error(formatElasticError(wrapped), message)
}

func wrapElasticErrorf(wrapped error, format string, args ...any) error {
	return wrap.Errorf(formatElasticError(wrapped), format, args...)
}

// Decodes an error response from the untyped client. Returns nil for successful responses.
func responseError(res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return wrap.Errorf(err, "request failed with status %d", res.StatusCode)
	}

	var elasticErr types.ElasticsearchError
	if err := json.Unmarshal(body, &elasticErr); err != nil || elasticErr.ErrorCause.Type == "" {
		message := strings.TrimSpace(string(body))
		if message == "" {
			return fmt.Errorf("request failed with status %d", res.StatusCode)
		}
		return fmt.Errorf("request failed with status %d: %s", res.StatusCode, message)
	}
	elasticErr.Status = res.StatusCode

	return formatElasticError(&elasticErr)
}

// Flattens an Elasticsearch error into its reason, type and status, with root causes as wrapped
// errors. Other errors are returned as-is.
func formatElasticError(err error) error {
	var elasticErr *types.ElasticsearchError
	if !errors.As(err, &elasticErr) {
		return err
	}

	message := describeErrorCause(elasticErr.ErrorCause)
	message = fmt.Sprintf("%s, status %d)", strings.TrimSuffix(message, ")"), elasticErr.Status)

	causes := make([]error, 0, len(elasticErr.ErrorCause.RootCause)+1)
	for _, cause := range elasticErr.ErrorCause.RootCause {
		causes = append(causes, errors.New(describeErrorCause(cause)))
	}
	if cause := elasticErr.ErrorCause.CausedBy; cause != nil && len(causes) == 0 {
		causes = append(causes, errors.New(describeErrorCause(*cause)))
	}

	if len(causes) == 0 {
		return errors.New(message)
	}
	return wrap.Errors(message, causes...)
}

// Returns "<reason> (<type>)", or just the type in parentheses if there is no reason.
func describeErrorCause(cause types.ErrorCause) string {
	if cause.Reason == nil {
		return fmt.Sprintf("(%s)", cause.Type)
	}
	return fmt.Sprintf("%s (%s)", *cause.Reason, cause.Type)
}
