package handlers

import (
	"github.com/feichai0017/lineage-engine/internal/lineage"
	"github.com/feichai0017/lineage-engine/pkg/logger"
)

type Handlers struct {
	Lineage *LineageHandler
}

func NewHandlers(
	lineageService lineage.LineageManager,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Lineage: NewLineageHandler(lineageService, logger),
	}
}
