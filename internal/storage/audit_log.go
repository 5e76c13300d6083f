package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aktrade/tradecore/internal/domain"
)

type auditLogRepo struct{ db *sql.DB }

// Append inserts an audit trail row. Metadata is stored as a JSON blob;
// marshal failures fall back to an empty object rather than losing the
// event entirely.
func (r *auditLogRepo) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		metaJSON = []byte("{}")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_log (user_id, event, severity, message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.UserID, entry.Event, string(entry.Severity), entry.Message, string(metaJSON), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage.auditLogRepo.Append: %w", err)
	}
	return nil
}
