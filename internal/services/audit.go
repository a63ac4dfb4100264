package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/herderhub/herderhub-api/internal/models"
	repo "github.com/herderhub/herderhub-api/internal/repository"
	"github.com/herderhub/herderhub-api/internal/worker"
)

// Auditor writes audit_logs rows off the request path. With a nil pool it
// writes synchronously.
type Auditor struct {
	repo   repo.AuditLogs
	pool   *worker.Pool
	logger *slog.Logger
}

func NewAuditor(r repo.AuditLogs, p *worker.Pool, l *slog.Logger) *Auditor {
	if l == nil {
		l = slog.Default()
	}
	return &Auditor{repo: r, pool: p, logger: l}
}

func (a *Auditor) Record(entityType, entityID, action string, details map[string]any) {
	if a == nil || a.repo == nil {
		return
	}
	entry := models.AuditLog{EntityType: entityType, Action: action, Details: details}
	if entityID != "" {
		entry.EntityID = &entityID
	}
	write := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.repo.Create(ctx, entry); err != nil {
			a.logger.Error("audit write failed", "action", action, "entity_id", entityID, "err", err)
		}
	}
	if a.pool == nil || !a.pool.Submit(write) {
		write()
	}
}
