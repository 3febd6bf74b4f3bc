package delivery

import (
	"context"
	"log/slog"
)

// LogSender is the development collaborator: it logs that a token was handed
// off instead of sending anything. The token and recipient are deliberately
// left out of the log line.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	s.Logger.InfoContext(ctx, "invitation handed to delivery",
		"invitation_id", msg.InvitationID,
		"tenant_id", msg.TenantID,
	)
	return nil
}
