package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"

	escfg "github.com/jonesrussell/nmls-crawler/internal/config/elasticsearch"
	"github.com/jonesrussell/nmls-crawler/internal/domain"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

// NewElasticsearchClient creates a client for the addresses in cfg.
func NewElasticsearchClient(cfg *escfg.Config) (*es.Client, error) {
	client, err := es.NewClient(es.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return client, nil
}

// Elasticsearch mirrors advertisements into a search index keyed by
// advertisement id. Images and phones are not mirrored.
type Elasticsearch struct {
	client *es.Client
	index  string
	logger logger.Logger
}

// NewElasticsearch creates an advertisement mirror writing to index.
func NewElasticsearch(client *es.Client, index string, log logger.Logger) *Elasticsearch {
	if log == nil {
		log = logger.NewNop()
	}
	return &Elasticsearch{
		client: client,
		index:  index,
		logger: log.With(logger.Component("es_mirror")),
	}
}

// Write indexes rec when it is an advertisement.
func (e *Elasticsearch) Write(ctx context.Context, rec domain.Record) error {
	advt, ok := rec.(*domain.Advertisement)
	if !ok {
		return nil
	}

	doc, err := json.Marshal(advt)
	if err != nil {
		return fmt.Errorf("failed to marshal advertisement: %w", err)
	}

	res, err := e.client.Index(
		e.index,
		bytes.NewReader(doc),
		e.client.Index.WithContext(ctx),
		e.client.Index.WithDocumentID(advt.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to index advertisement: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing advertisement: %s", res.String())
	}

	e.logger.Debug("Advertisement mirrored", logger.String("id", advt.ID))
	return nil
}

// TestConnection checks that the cluster answers.
func (e *Elasticsearch) TestConnection(ctx context.Context) error {
	res, err := e.client.Info(e.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error response from Elasticsearch: %s", res.String())
	}
	return nil
}
