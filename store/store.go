package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/msztolcman/sendria/internal/apperr"
)

const schema = `
CREATE TABLE IF NOT EXISTS message (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_envelope TEXT,
	sender_message TEXT,
	recipients_envelope TEXT,
	recipients_message_to TEXT,
	recipients_message_cc TEXT,
	recipients_message_bcc TEXT,
	subject TEXT,
	source BLOB,
	size INTEGER,
	type TEXT,
	peer TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS message_part (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id INTEGER NOT NULL,
	cid TEXT,
	type TEXT,
	is_attachment INTEGER NOT NULL DEFAULT 0,
	filename TEXT,
	charset TEXT,
	body BLOB,
	size INTEGER,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS message_part_message_cid ON message_part (message_id, cid);
CREATE INDEX IF NOT EXISTS message_part_attachment ON message_part (message_id, is_attachment, filename);
`

// Store is the single serialized access path to the database. Every
// write goes through the same *sql.DB, capped to one open connection so
// that SQLite's own locking -- not an extra mutex -- orders writers;
// reads share the same single connection, so they are serialized with
// writes and with each other.
type Store struct {
	db *sql.DB
}

// Open creates (or attaches to) the database at path. An empty path (or
// ":memory:") opens a private in-memory database, used by tests.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "opening database", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.KindStore, "creating schema", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts msg and its parts in a single transaction and returns the
// new message id.
func (s *Store) Add(ctx context.Context, msg *Message, parts []NewPart) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStore, "beginning transaction", err)
	}
	defer tx.Rollback()

	createdAt := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO message
			(sender_envelope, sender_message, recipients_envelope, recipients_message_to,
			 recipients_message_cc, recipients_message_bcc, subject, source, size, type, peer, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.SenderEnvelope, msg.SenderMessage,
		mustJSON(msg.RecipientsEnvelope), mustJSON(msg.RecipientsTo),
		mustJSON(msg.RecipientsCc), mustJSON(msg.RecipientsBcc),
		msg.Subject, msg.Source, len(msg.Source), msg.ContentType, msg.Peer, createdAt,
	)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStore, "inserting message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStore, "reading inserted id", err)
	}

	for _, p := range parts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO message_part
				(message_id, cid, type, is_attachment, filename, charset, body, size, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, p.CID, p.ContentType, p.IsAttachment, nullIfEmpty(p.Filename), nullIfEmpty(p.Charset),
			p.Body, len(p.Body), createdAt,
		); err != nil {
			return 0, apperr.Wrap(apperr.KindStore, "inserting message part", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.Wrap(apperr.KindStore, "committing transaction", err)
	}
	return id, nil
}

// Get returns the message identified by id, or an apperr.KindNotFound
// error if it does not exist.
func (s *Store) Get(ctx context.Context, id int64) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, sender_envelope, sender_message, recipients_envelope, recipients_message_to,
		recipients_message_cc, recipients_message_bcc, subject, source, size, type, peer, created_at
		FROM message WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// List returns every message ordered oldest-first.
func (s *Store) List(ctx context.Context) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, sender_envelope, sender_message, recipients_envelope, recipients_message_to,
		recipients_message_cc, recipients_message_bcc, subject, source, size, type, peer, created_at
		FROM message ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "listing messages", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "listing messages", err)
	}
	return out, nil
}

// Delete removes a message and its parts transactionally. It is a no-op
// if the message does not exist.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "beginning transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_part WHERE message_id = ?`, id); err != nil {
		return apperr.Wrap(apperr.KindStore, "deleting message parts", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM message WHERE id = ?`, id); err != nil {
		return apperr.Wrap(apperr.KindStore, "deleting message", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindStore, "committing transaction", err)
	}
	return nil
}

// DeleteAll truncates both tables.
func (s *Store) DeleteAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "beginning transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_part`); err != nil {
		return apperr.Wrap(apperr.KindStore, "deleting all parts", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM message`); err != nil {
		return apperr.Wrap(apperr.KindStore, "deleting all messages", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindStore, "committing transaction", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row scanner) (*Message, error) {
	var (
		m                                              Message
		recipEnv, recipTo, recipCc, recipBcc            sql.NullString
		subject, senderEnvelope, senderMessage, contentType, peer sql.NullString
	)
	err := row.Scan(&m.ID, &senderEnvelope, &senderMessage, &recipEnv, &recipTo, &recipCc, &recipBcc,
		&subject, &m.Source, &m.Size, &contentType, &peer, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("message not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "scanning message", err)
	}
	m.SenderEnvelope = senderEnvelope.String
	m.SenderMessage = senderMessage.String
	m.Subject = subject.String
	m.ContentType = contentType.String
	m.Peer = peer.String
	m.RecipientsEnvelope = parseJSONList(recipEnv.String)
	m.RecipientsTo = parseJSONList(recipTo.String)
	m.RecipientsCc = parseJSONList(recipCc.String)
	m.RecipientsBcc = parseJSONList(recipBcc.String)
	return &m, nil
}

func mustJSON(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func parseJSONList(s string) []string {
	if s == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return []string{}
	}
	return out
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
