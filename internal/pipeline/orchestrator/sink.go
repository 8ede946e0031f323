package orchestrator

import (
	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
)

// LogSink writes stage updates to the structured log at debug level.
type LogSink struct {
	Logger logger.Logger
}

func (s LogSink) Emit(update models.StageUpdate) {
	s.Logger.Debug("stage update", map[string]interface{}{
		"stage":  string(update.Stage),
		"status": string(update.Status),
		"data":   update.Data,
	})
}

// ChannelSink forwards updates to a buffered channel without ever blocking;
// updates overflowing the buffer are dropped.
type ChannelSink struct {
	C chan models.StageUpdate
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan models.StageUpdate, buffer)}
}

func (s *ChannelSink) Emit(update models.StageUpdate) {
	select {
	case s.C <- update:
	default:
	}
}
