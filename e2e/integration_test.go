//go:build e2e

// Package e2e contains end-to-end tests using real processes and, optionally, DynamoDB Local.
// Run with: go test -tags=e2e -v ./e2e/...
//
// Set FSKV_E2E_DYNAMODB_ENDPOINT (e.g. http://localhost:8000) to run the import tests.
package e2e

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/fskv/dynimport"
	"github.com/jacentio/fskv/store"
)

const (
	// Environment of helper processes spawned by the tests.
	envHelper = "FSKV_E2E_HELPER"
	envRoot   = "FSKV_E2E_ROOT"
	envKey    = "FSKV_E2E_KEY"
	envValue  = "FSKV_E2E_VALUE"

	envEndpoint = "FSKV_E2E_DYNAMODB_ENDPOINT"

	// Exit code of a helper whose Put lost the race.
	exitAlreadyExists = 3

	tablePrefix = "fskv-e2e-test"
)

var (
	testID    string
	testRoot  string
	ddbClient *dynamodb.Client
)

func TestMain(m *testing.M) {
	if mode := os.Getenv(envHelper); mode != "" {
		os.Exit(runHelper(mode))
	}

	testID = uuid.New().String()[:8]
	testRoot = filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s", tablePrefix, testID))
	fmt.Printf("Test ID: %s\n", testID)
	fmt.Printf("Root: %s\n", testRoot)

	if endpoint := os.Getenv(envEndpoint); endpoint != "" {
		client, err := dynimport.NewClient(context.Background(), dynimport.ClientOptions{
			Region:   "us-east-1",
			Endpoint: endpoint,
		})
		if err != nil {
			fmt.Printf("Failed to create DynamoDB client: %v\n", err)
			os.Exit(1)
		}
		ddbClient = client
	}

	code := m.Run()

	if err := os.RemoveAll(testRoot); err != nil {
		fmt.Printf("Warning: failed to remove %s: %v\n", testRoot, err)
	}
	os.Exit(code)
}

// runHelper is the body of a spawned helper process.
func runHelper(mode string) int {
	s, err := store.New(os.Getenv(envRoot), store.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		return 1
	}
	key, value := os.Getenv(envKey), []byte(os.Getenv(envValue))

	switch mode {
	case "open":
	case "put":
		err = s.Put(key, value)
	case "update":
		for i := 0; i < 50 && err == nil; i++ {
			err = s.Update(key, value)
		}
	default:
		err = fmt.Errorf("unknown helper mode %q", mode)
	}
	if errors.Is(err, store.ErrAlreadyExists) {
		return exitAlreadyExists
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", mode, err)
		return 1
	}
	return 0
}

// spawn starts n helper processes and returns their exit codes.
func spawn(t *testing.T, n int, mode, root, key string, value func(i int) string) []int {
	t.Helper()
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		cmd := exec.Command(os.Args[0], "-test.run=^$")
		cmd.Env = append(os.Environ(),
			envHelper+"="+mode,
			envRoot+"="+root,
			envKey+"="+key,
			envValue+"="+value(i),
		)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Start(); err != nil {
			t.Fatalf("start helper %d: %v", i, err)
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := cmd.Wait()
			var exitErr *exec.ExitError
			switch {
			case err == nil:
			case errors.As(err, &exitErr):
				codes[i] = exitErr.ExitCode()
			default:
				codes[i] = -1
			}
			if codes[i] != 0 && codes[i] != exitAlreadyExists {
				t.Errorf("helper %d exited %d: %s", i, codes[i], stderr.String())
			}
		}(i)
	}
	wg.Wait()
	return codes
}

func newRoot(t *testing.T, name string) string {
	t.Helper()
	root := filepath.Join(testRoot, name)
	_, err := store.New(root, store.DefaultConfig())
	require.NoError(t, err, "create store")
	return root
}

// --- Filesystem Tests ---

func TestScenario_SeparateHandles(t *testing.T) {
	root := newRoot(t, "scenario")
	open := func() *store.Store {
		s, err := store.New(root, store.DefaultConfig())
		require.NoError(t, err, "open")
		return s
	}
	get := func(key string) string {
		v, err := open().Get(key)
		require.NoError(t, err, "get %s", key)
		return string(v)
	}

	require.NoError(t, open().Put("foo", []byte("bar")))
	require.Equal(t, "bar", get("foo"))
	require.ErrorIs(t, open().Put("foo", []byte("baz")), store.ErrAlreadyExists)
	require.NoError(t, open().Update("foo", []byte("baz")))
	require.Equal(t, "baz", get("foo"))
	require.NoError(t, open().Delete("foo"))
	_, err := open().Get("foo")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestNew_CrossProcessCreate(t *testing.T) {
	root := filepath.Join(testRoot, "create-race")

	codes := spawn(t, 8, "open", root, "", func(int) string { return "" })
	for i, code := range codes {
		assert.Zero(t, code, "helper %d", i)
	}
	assert.DirExists(t, filepath.Join(root, store.DefaultMarker))
}

func TestPut_CrossProcessRace(t *testing.T) {
	root := newRoot(t, "put-race")
	const helpers = 8

	codes := spawn(t, helpers, "put", root, "contended", func(i int) string {
		return "helper-" + strconv.Itoa(i)
	})

	winners := 0
	winner := -1
	for i, code := range codes {
		if code == 0 {
			winners++
			winner = i
		}
	}
	require.Equal(t, 1, winners, "exactly one winning process (codes %v)", codes)

	s, err := store.New(root, store.DefaultConfig())
	require.NoError(t, err)
	v, err := s.Get("contended")
	require.NoError(t, err)
	assert.Equal(t, "helper-"+strconv.Itoa(winner), string(v))
}

func TestUpdate_CrossProcessReaders(t *testing.T) {
	root := newRoot(t, "update-race")
	s, err := store.New(root, store.DefaultConfig())
	require.NoError(t, err)

	size := 32 * 1024
	values := map[string]bool{}
	for i := 0; i < 4; i++ {
		values[string(bytes.Repeat([]byte{byte('a' + i)}, size))] = true
	}
	require.NoError(t, s.Put("atomic", bytes.Repeat([]byte{'a'}, size)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		spawn(t, 4, "update", root, "atomic", func(i int) string {
			return string(bytes.Repeat([]byte{byte('a' + i)}, size))
		})
	}()

	deadline := time.After(2 * time.Minute)
	for {
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatal("helpers did not finish")
		default:
		}
		v, err := s.Get("atomic")
		require.NoError(t, err, "get during update")
		require.True(t, values[string(v)], "observed mixed or truncated value of %d bytes", len(v))
	}
}

// --- DynamoDB Import Tests ---

func TestImport_DynamoDBLocal(t *testing.T) {
	if ddbClient == nil {
		t.Skip(envEndpoint + " not set")
	}
	ctx := context.Background()
	table := fmt.Sprintf("%s-%s-records", tablePrefix, testID)

	_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	require.NoError(t, err, "create table")
	t.Cleanup(func() {
		if _, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(table)}); err != nil {
			t.Logf("Warning: failed to delete table %s: %v", table, err)
		}
	})
	waiter := dynamodb.NewTableExistsWaiter(ddbClient)
	err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, 2*time.Minute)
	require.NoError(t, err, "wait for table")

	const items = 120
	for i := 0; i < items; i++ {
		_, err := ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(table),
			Item: map[string]types.AttributeValue{
				"pk":    &types.AttributeValueMemberS{Value: fmt.Sprintf("key-%03d", i)},
				"value": &types.AttributeValueMemberS{Value: fmt.Sprintf("value-%03d", i)},
			},
		})
		require.NoError(t, err, "put item %d", i)
	}

	s, err := store.New(newRoot(t, "import"), store.DefaultConfig())
	require.NoError(t, err)
	cfg := dynimport.DefaultConfig()
	cfg.Table = table
	cfg.PageSize = 25

	stats, err := dynimport.New(ddbClient, s, cfg).Run(ctx)
	require.NoError(t, err, "import")
	assert.Equal(t, dynimport.Stats{Scanned: items, Imported: items}, stats)
	v, err := s.Get("key-042")
	require.NoError(t, err)
	assert.Equal(t, "value-042", string(v))

	// A second run skips everything.
	stats, err = dynimport.New(ddbClient, s, cfg).Run(ctx)
	require.NoError(t, err, "second import")
	assert.Equal(t, dynimport.Stats{Scanned: items, Skipped: items}, stats)
}
