package db

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"cycleconnect/internal/app/message"
	"cycleconnect/internal/app/store"
)

func (s *Store) CreateMessage(ctx context.Context, m *message.Message) error {
	var metadata []byte
	if m.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(m.Metadata); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `INSERT INTO messages (id, ride_id, sender_id, content, type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.RideID, m.Sender, m.Content, string(m.Type), metadata, m.CreatedAt)
	if IsForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, rideID string, limit int) ([]*message.Message, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, ride_id, sender_id, content, type, metadata, created_at
		FROM messages WHERE ride_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, rideID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var (
		out  []*message.Message
		byID = make(map[string]*message.Message)
		ids  []string
	)
	for rows.Next() {
		var (
			m        message.Message
			typ      string
			metadata []byte
		)
		if err := rows.Scan(&m.ID, &m.RideID, &m.Sender, &m.Content, &typ, &metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Type = message.Type(typ)
		m.ReadBy = []message.Receipt{}
		if len(metadata) > 0 {
			m.Metadata = &message.Metadata{}
			if err := json.Unmarshal(metadata, m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of message %s: %w", m.ID, err)
			}
		}
		out = append(out, &m)
		byID[m.ID] = &m
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(ids) > 0 {
		receipts, err := s.pool.Query(ctx, `SELECT message_id, user_id, read_at FROM message_reads
			WHERE message_id = ANY($1) ORDER BY read_at`, ids)
		if err != nil {
			return nil, fmt.Errorf("query receipts: %w", err)
		}
		defer receipts.Close()

		for receipts.Next() {
			var (
				messageID string
				rc        message.Receipt
			)
			if err := receipts.Scan(&messageID, &rc.User, &rc.ReadAt); err != nil {
				return nil, fmt.Errorf("scan receipt: %w", err)
			}
			if m, ok := byID[messageID]; ok {
				m.ReadBy = append(m.ReadBy, rc)
			}
		}
		if err := receipts.Err(); err != nil {
			return nil, err
		}
	}

	slices.Reverse(out)
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, rideID, userID string, messageIDs []string, at time.Time) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, $2, $3 FROM messages m
		WHERE m.ride_id = $1 AND m.id = ANY($4)
		ON CONFLICT (message_id, user_id) DO NOTHING`,
		rideID, userID, at, messageIDs)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
