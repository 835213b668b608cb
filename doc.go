/*
Package ss is an embedded document store with CouchDB-style views.

Documents are appended to a versioned log, and views replay that log through
map functions into sorted secondary indexes.

We implement:

1. A document store (DB): an append-only log of document versions with
optimistic-concurrency revisions and a change feed.

2. Views: incrementally maintained indexes keyed by the collation order of
package collation, queried by key ranges with CouchDB query options.

3. Map functions (Indexer), either compiled Go code or sandboxed JavaScript.

4. A Catalog of named databases for servers.

# Technical Details

**Storage.**
Each DB and each view lives in its own Bolt file. Buckets of a DB:
“log” maps a big-endian oid to a record, “heads” maps a document id to the oid
of its current record plus a deleted flag. Oids come from the log bucket's
sequence, so they are unique and increasing.

**Record**: msgpack of {t: timestamp, i: id, r: rev, d: deleted, b: body}, where
the body is the msgpack-encoded document wrapped in a value header.

**Value header**:
1. Flags (uvarint): format version and compression method.
2. Uncompressed size (uvarint).
3. Stored size (uvarint).
Then the stored bytes, compressed with zstd or LZ4 above a size threshold.

**Revisions** are “<generation>-<hash>”, where hash is the xxhash64 of the
msgpack-encoded body without _rev, as 16 hex digits.

**View rows** are keyed by collated key, then document id, then emit index
(see rowKey); a “docs” bucket remembers the row keys of each document so that
re-indexing replaces them wholesale, and a “state” bucket holds the high-water
mark and row count. A flush commits row changes and the new high-water mark
together.
*/
package ss
