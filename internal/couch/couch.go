// Package couch is the low-level document store client. It wraps a CouchDB
// database behind find/insert/get primitives plus the changes feed used by
// the client-side replica pull.
//
// The client is a stateless transport: it owns no retry policy and no
// domain knowledge. Errors from the store (network, conflict, validation)
// propagate to the caller unmodified; the interaction store decides what is
// fatal and what is logged-and-skipped. There are no transactions — every
// multi-document update made on top of this package is a sequence of
// independent calls.
package couch

import (
	"context"
	"encoding/json"
	"fmt"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb" // registers the "couch" driver
)

// ViewRow is one reduced row returned by a design-document view query:
// the emitted key and the summed occurrence count.
type ViewRow struct {
	Key   string
	Value int64
}

// Client is a handle to one named database on one CouchDB server.
type Client struct {
	client *kivik.Client
	db     *kivik.DB
	name   string
}

// Open connects to the CouchDB server at url and binds the named database.
// The database is not created here; call EnsureDB before first use.
func Open(url, dbName string) (*Client, error) {
	kc, err := kivik.New("couch", url)
	if err != nil {
		return nil, fmt.Errorf("connect to couchdb: %w", err)
	}
	return &Client{client: kc, db: kc.DB(dbName), name: dbName}, nil
}

// EnsureDB creates the database if it does not exist yet.
func (c *Client) EnsureDB(ctx context.Context) error {
	exists, err := c.client.DBExists(ctx, c.name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return c.client.CreateDB(ctx, c.name)
}

// FindOne runs a Mango selector query and scans the first matching document
// into dest. It reports whether a document was found; dest is untouched
// when no document matches.
func (c *Client) FindOne(ctx context.Context, selector map[string]any, dest any) (bool, error) {
	rs := c.db.Find(ctx, map[string]any{
		"selector": selector,
		"limit":    1,
	})
	defer rs.Close()
	if rs.Next() {
		if err := rs.ScanDoc(dest); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, rs.Err()
}

// Insert stores a new document and returns the identifier and revision
// assigned by the store.
func (c *Client) Insert(ctx context.Context, doc any) (id, rev string, err error) {
	return c.db.CreateDoc(ctx, doc)
}

// Put writes a document under a known identifier and returns the new
// revision. Used both for whole-document updates (the document must carry
// its current _rev) and for design documents, whose identifiers live in the
// _design namespace and cannot be store-assigned.
func (c *Client) Put(ctx context.Context, id string, doc any) (rev string, err error) {
	return c.db.Put(ctx, id, doc)
}

// Get fetches the latest revision of a document by identifier.
func (c *Client) Get(ctx context.Context, id string, dest any) error {
	return c.db.Get(ctx, id).ScanDoc(dest)
}

// View queries a reduced design-document view with grouping enabled and
// returns one row per distinct key.
func (c *Client) View(ctx context.Context, design, view string) ([]ViewRow, error) {
	rs := c.db.Query(ctx, "_design/"+design, view, kivik.Params(map[string]any{
		"group":  true,
		"reduce": true,
	}))
	defer rs.Close()

	var rows []ViewRow
	for rs.Next() {
		var row ViewRow
		if err := rs.ScanKey(&row.Key); err != nil {
			return nil, err
		}
		if err := rs.ScanValue(&row.Value); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, rs.Err()
}

// PullChanges reads the changes feed through the named server-side filter,
// invoking fn once per changed document, and returns the sequence token to
// resume from on the next pull. Deleted documents are skipped. A since of
// "" starts from the beginning of the feed.
func (c *Client) PullChanges(ctx context.Context, filter, since string, fn func(id string, doc json.RawMessage) error) (lastSeq string, err error) {
	params := map[string]any{
		"filter":       filter,
		"include_docs": true,
	}
	if since != "" {
		params["since"] = since
	}
	changes := c.db.Changes(ctx, kivik.Params(params))
	defer changes.Close()

	lastSeq = since
	for changes.Next() {
		if changes.Deleted() {
			lastSeq = changes.Seq()
			continue
		}
		var doc json.RawMessage
		if err := changes.ScanDoc(&doc); err != nil {
			return lastSeq, err
		}
		if err := fn(changes.ID(), doc); err != nil {
			return lastSeq, err
		}
		lastSeq = changes.Seq()
	}
	return lastSeq, changes.Err()
}
