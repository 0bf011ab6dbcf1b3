package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/msztolcman/sendria/internal/apperr"
)

// GetPartByCID returns the part of msgID whose CID matches cid, or an
// apperr.KindNotFound error. When more than one part shares a CID, the first inserted
// (lowest id) wins.
func (s *Store) GetPartByCID(ctx context.Context, msgID int64, cid string) (*Part, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, message_id, cid, type, is_attachment, filename, charset, body, size, created_at
		FROM message_part WHERE message_id = ? AND cid = ? ORDER BY id ASC LIMIT 1`, msgID, cid)
	return scanPart(row)
}

// GetFirstPartByTypes returns the first non-attachment part of msgID
// whose content type is one of types, ordered by insertion, or an
// apperr.KindNotFound error.
func (s *Store) GetFirstPartByTypes(ctx context.Context, msgID int64, types []string) (*Part, error) {
	query, args := inClause(`SELECT
		id, message_id, cid, type, is_attachment, filename, charset, body, size, created_at
		FROM message_part WHERE message_id = ? AND is_attachment = 0 AND type IN (%s) ORDER BY id ASC LIMIT 1`,
		msgID, types)
	row := s.db.QueryRowContext(ctx, query, args...)
	return scanPart(row)
}

// HasAnyType reports whether msgID has a non-attachment part whose
// content type is one of types.
func (s *Store) HasAnyType(ctx context.Context, msgID int64, types []string) (bool, error) {
	query, args := inClause(`SELECT 1 FROM message_part
		WHERE message_id = ? AND is_attachment = 0 AND type IN (%s) LIMIT 1`, msgID, types)
	var dummy int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(apperr.KindStore, "checking message type", err)
	}
	return true, nil
}

// Attachments returns the attachment parts of msgID ordered by filename.
func (s *Store) Attachments(ctx context.Context, msgID int64) ([]*Part, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, message_id, cid, type, is_attachment, filename, charset, body, size, created_at
		FROM message_part WHERE message_id = ? AND is_attachment = 1 ORDER BY filename ASC`, msgID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "listing attachments", err)
	}
	defer rows.Close()

	var out []*Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPart(row scanner) (*Part, error) {
	var (
		p                     Part
		cid, contentType      sql.NullString
		filename, charset     sql.NullString
		isAttachment          int
	)
	err := row.Scan(&p.ID, &p.MessageID, &cid, &contentType, &isAttachment, &filename, &charset,
		&p.Body, &p.Size, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("part not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "scanning part", err)
	}
	p.CID = cid.String
	p.ContentType = contentType.String
	p.Filename = filename.String
	p.Charset = charset.String
	p.IsAttachment = isAttachment != 0
	return &p, nil
}

// inClause renders a query with a "type IN (?,?,...)" placeholder list,
// returning the final SQL and the full bound argument slice (message id
// first, then one arg per type).
func inClause(tmpl string, msgID int64, types []string) (string, []interface{}) {
	placeholders := make([]string, len(types))
	args := make([]interface{}, 0, len(types)+1)
	args = append(args, msgID)
	for i, t := range types {
		placeholders[i] = "?"
		args = append(args, t)
	}
	return fmt.Sprintf(tmpl, strings.Join(placeholders, ",")), args
}
