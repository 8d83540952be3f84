// Package dynimport copies items of a DynamoDB table into a store.
//
// Each item contributes one record: a string attribute supplies the key
// and a string or binary attribute supplies the value. The import is a
// single pass over a Scan; it does not follow later table changes.
package dynimport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/fskv/store"
)

var (
	// ErrMissingAttribute is returned for items lacking the key or value attribute.
	ErrMissingAttribute = errors.New("dynimport: missing attribute")

	// ErrUnsupportedValue is returned for value attributes that are neither S nor B.
	ErrUnsupportedValue = errors.New("dynimport: unsupported value type")
)

// Stats counts the outcome of an import.
type Stats struct {
	// Scanned is the number of items read from the table.
	Scanned int
	// Imported is the number of records written.
	Imported int
	// Skipped is the number of items whose key already had a record.
	Skipped int
	// Invalid is the number of items that couldn't be mapped to a record.
	Invalid int
}

// Importer copies a DynamoDB table into a Store.
type Importer struct {
	client dynamodb.ScanAPIClient
	store  *store.Store
	config Config
}

// New creates an Importer. client is usually a *dynamodb.Client.
func New(client dynamodb.ScanAPIClient, s *store.Store, config Config) *Importer {
	config.validate()
	return &Importer{
		client: client,
		store:  s,
		config: config,
	}
}

// counters is Stats updated from concurrent writers.
type counters struct {
	scanned, imported, skipped, invalid atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Scanned:  int(c.scanned.Load()),
		Imported: int(c.imported.Load()),
		Skipped:  int(c.skipped.Load()),
		Invalid:  int(c.invalid.Load()),
	}
}

// Run scans the table and writes every item. The returned Stats are valid
// even when an error stops the import early.
func (im *Importer) Run(ctx context.Context) (Stats, error) {
	if im.config.Table == "" {
		return Stats{}, errors.New("dynimport: table name is required")
	}

	input := &dynamodb.ScanInput{
		TableName:            aws.String(im.config.Table),
		ProjectionExpression: aws.String("#k, #v"),
		ExpressionAttributeNames: map[string]string{
			"#k": im.config.KeyAttr,
			"#v": im.config.ValueAttr,
		},
	}
	if im.config.PageSize > 0 {
		input.Limit = aws.Int32(im.config.PageSize)
	}

	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.config.Workers)

	var scanErr error
	paginator := dynamodb.NewScanPaginator(im.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(gctx)
		if err != nil {
			scanErr = fmt.Errorf("scan %s: %w", im.config.Table, err)
			break
		}
		for _, item := range page.Items {
			c.scanned.Add(1)
			key, value, err := decodeItem(item, im.config.KeyAttr, im.config.ValueAttr)
			if err != nil {
				c.invalid.Add(1)
				im.config.Logger.Warn("skipping item", "table", im.config.Table, "error", err)
				continue
			}
			g.Go(func() error {
				return im.write(key, value, &c)
			})
		}
		im.config.Logger.Debug("scanned page", "table", im.config.Table, "items", len(page.Items))
	}

	// A write error cancels gctx, which surfaces as a scan error too.
	if err := g.Wait(); err != nil {
		return c.snapshot(), err
	}
	if scanErr != nil {
		return c.snapshot(), scanErr
	}

	stats := c.snapshot()
	im.config.Logger.Info("import completed", "table", im.config.Table, "stats", stats)
	return stats, nil
}

// write stores one record, classifying expected failures into c.
func (im *Importer) write(key string, value []byte, c *counters) error {
	var err error
	if im.config.Overwrite {
		err = im.store.Update(key, value)
	} else {
		err = im.store.Put(key, value)
	}

	switch {
	case err == nil:
		c.imported.Add(1)
		return nil
	case errors.Is(err, store.ErrAlreadyExists):
		c.skipped.Add(1)
		return nil
	case errors.Is(err, store.ErrInvalidKey):
		c.invalid.Add(1)
		im.config.Logger.Warn("skipping item", "key", key, "error", err)
		return nil
	default:
		return fmt.Errorf("import %q: %w", key, err)
	}
}

// decodeItem extracts the record key and value from a DynamoDB item.
func decodeItem(item map[string]types.AttributeValue, keyAttr, valueAttr string) (string, []byte, error) {
	av, ok := item[keyAttr]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrMissingAttribute, keyAttr)
	}
	var key string
	if err := attributevalue.Unmarshal(av, &key); err != nil {
		return "", nil, fmt.Errorf("decode key attribute %s: %w", keyAttr, err)
	}

	switch v := item[valueAttr].(type) {
	case *types.AttributeValueMemberS:
		return key, []byte(v.Value), nil
	case *types.AttributeValueMemberB:
		return key, v.Value, nil
	case nil:
		return "", nil, fmt.Errorf("%w: %s (key %q)", ErrMissingAttribute, valueAttr, key)
	default:
		return "", nil, fmt.Errorf("%w: %s is %T (key %q)", ErrUnsupportedValue, valueAttr, v, key)
	}
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("scanned", s.Scanned),
		slog.Int("imported", s.Imported),
		slog.Int("skipped", s.Skipped),
		slog.Int("invalid", s.Invalid),
	)
}
