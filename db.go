// Package neograph maps strongly-typed Go entities onto a Neo4j property
// graph and compiles typed query plans into Cypher. It provides CRUD
// operations for nodes and relationships, LINQ-style queryables with
// traversal support, and transaction management over the official driver.
package neograph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DBRunner defines the interface for a generic query executor. It abstracts
// the execution of a Cypher query, allowing for different implementations or
// mocking in tests. Implementations fully drain the result cursor into
// memory before returning; no retries happen at this layer.
type DBRunner interface {
	// Run executes a given Cypher query with parameters and returns the
	// fully-buffered records.
	Run(ctx context.Context, query string, params map[string]interface{}) ([]*neo4j.Record, error)
}

//---

// Neo4jExecutor is a concrete implementation of the DBRunner interface that
// uses the official Neo4j Go driver with auto-managed sessions. It holds the
// driver instance and the target database name.
type Neo4jExecutor struct {
	Driver neo4j.DriverWithContext
	DBName string
}

// NewNeo4jExecutor creates and initializes a new Neo4jExecutor.
// It establishes a connection driver with the provided credentials.
//
// Parameters:
//   - uri: The connection URI for the Neo4j instance (e.g., "neo4j://localhost:7687").
//   - username: The username for authentication.
//   - password: The password for authentication.
//   - dbName: The name of the database to connect to (e.g., "neo4j").
//
// Returns:
//
//	A pointer to the newly created Neo4jExecutor or an error if the driver creation fails.
func NewNeo4jExecutor(uri, username, password, dbName string) (*Neo4jExecutor, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	return &Neo4jExecutor{Driver: driver, DBName: dbName}, nil
}

// Verify checks the connectivity to the Neo4j database.
//
// Returns:
//
//	An error if the connection cannot be established.
func (e *Neo4jExecutor) Verify(ctx context.Context) error {
	return e.Driver.VerifyConnectivity(ctx)
}

// Run executes a Cypher query using the driver's ExecuteQuery function, which
// handles session and transaction management automatically. Suitable for
// both read and write operations outside an explicit transaction.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - query: The Cypher query string to execute.
//   - params: A map of parameters to be used in the query.
//
// Returns:
//
//	The buffered records from the query, or an error if the execution fails.
func (e *Neo4jExecutor) Run(ctx context.Context, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	result, err := neo4j.ExecuteQuery(
		ctx,
		e.Driver,
		query,
		params,
		neo4j.EagerResultTransformer, // Buffers all results in memory before returning.
		neo4j.ExecuteQueryWithDatabase(e.DBName),
	)
	if err != nil {
		return nil, fmt.Errorf("error executing neo4j query: %w", err)
	}
	return result.Records, nil
}

//---

// Transaction wraps an explicit driver transaction and the session that owns
// it. Retry and backoff for transient failures belong to the driver's
// transaction functions, not to the operations running inside.
type Transaction struct {
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
	done    bool
}

// Commit commits the transaction and releases its session.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	err := t.tx.Commit(ctx)
	closeErr := t.session.Close(ctx)
	if err != nil {
		return err
	}
	return closeErr
}

// Rollback aborts the transaction and releases its session.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.tx.Rollback(ctx)
	closeErr := t.session.Close(ctx)
	if err != nil {
		return err
	}
	return closeErr
}

// Run implements DBRunner inside the transaction, draining the cursor into
// memory with a cancellation check between records.
func (t *Transaction) Run(ctx context.Context, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	result, err := t.tx.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("error executing neo4j query: %w", err)
	}
	return drainRecords(ctx, result)
}

// drainRecords consumes a result cursor fully, respecting cancellation
// between records.
func drainRecords(ctx context.Context, result neo4j.ResultWithContext) ([]*neo4j.Record, error) {
	var records []*neo4j.Record
	for result.Next(ctx) {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		records = append(records, result.Record())
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
