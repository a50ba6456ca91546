package elasticsearch

import (
	"context"
	"errors"

	"github.com/elastic/go-elasticsearch/v8"
	elastictypes "github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"hermannm.dev/gridbase/config"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/wrap"
)

// Implements db.AnalyticsDB for Elasticsearch, with one index per table.
type ElasticsearchDB struct {
	client        *elasticsearch.TypedClient
	untypedClient *elasticsearch.Client
}

var _ db.AnalyticsDB = ElasticsearchDB{}

func NewElasticsearchDB(conf config.Config) (ElasticsearchDB, error) {
	clientConfig := elasticsearch.Config{
		Addresses:         []string{conf.Elasticsearch.Address},
		EnableDebugLogger: conf.Elasticsearch.Debug,
	}

	client, err := elasticsearch.NewTypedClient(clientConfig)
	if err != nil {
		return ElasticsearchDB{}, wrap.Error(err, "failed to connect to Elasticsearch")
	}

	untypedClient, err := elasticsearch.NewClient(clientConfig)
	if err != nil {
		return ElasticsearchDB{}, wrap.Error(err, "failed to connect to Elasticsearch")
	}

	return ElasticsearchDB{client: client, untypedClient: untypedClient}, nil
}

const elasticIndexNotFoundException = "index_not_found_exception"

func (elastic ElasticsearchDB) DropTable(
	ctx context.Context,
	table db.Table,
) (alreadyDropped bool, err error) {
	if _, err := elastic.client.Indices.Delete(table.DBTableName).Do(ctx); err != nil {
		var elasticErr *elastictypes.ElasticsearchError
		if errors.As(err, &elasticErr) && elasticErr.ErrorCause.Type == elasticIndexNotFoundException {
			return true, nil
		}

		return false, wrapElasticError(err, "delete index request failed")
	}

	return false, nil
}
