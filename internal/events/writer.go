package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tourdesk/internal/domain"
)

// Log records portal actions in the local database and fans them out to the
// configured publisher. The database row is authoritative; publish failures
// are logged and swallowed.
type Log struct {
	DB        *sql.DB
	Publisher Publisher
	Exchange  string
	Logger    *zap.Logger
	Now       func() time.Time
}

type EventPayload map[string]any

func (l Log) Append(ctx context.Context, evtType, entityKind, entityID, actorID string, payload EventPayload) (domain.Event, error) {
	if l.DB == nil {
		return domain.Event{}, fmt.Errorf("event log has no database")
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	evt := domain.Event{
		TS:         now().UTC().Format(time.RFC3339),
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    string(data),
	}
	res, err := l.DB.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		evt.TS, evt.Type, evt.EntityKind, nullable(evt.EntityID), evt.ActorID, evt.Payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("insert event: %w", err)
	}
	if evt.ID, err = res.LastInsertId(); err != nil {
		return domain.Event{}, err
	}
	if l.Publisher != nil {
		if err := l.Publisher.Publish(ctx, l.exchange(), evt.Type, evt); err != nil {
			l.logger().Warn("publish event failed",
				zap.Int64("event_id", evt.ID),
				zap.String("type", evt.Type),
				zap.Error(err),
			)
		}
	}
	return evt, nil
}

func (l Log) exchange() string {
	if l.Exchange == "" {
		return DefaultExchange
	}
	return l.Exchange
}

func (l Log) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
