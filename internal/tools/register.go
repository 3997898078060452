package tools

import (
	"github.com/kibocha/orderdesk/internal/log"
	"github.com/kibocha/orderdesk/internal/order"
	"github.com/kibocha/orderdesk/internal/security"
)

// Config carries the settings the handlers need beyond their collaborators.
type Config struct {
	DeletePassword string
	WritePassword  string
	Defaults       OrderDefaults
}

// NewDefaultRegistry builds the registry with the full tool set: the four
// order tools and the four code-inspection tools.
func NewDefaultRegistry(
	store order.Store,
	readPaths *security.Path,
	writePaths *security.Path,
	cfg Config,
	logger log.Logger,
) (*Registry, error) {
	return NewRegistry(
		NewCreateOrder(store, cfg.Defaults, logger),
		NewUpdateOrder(store, logger),
		NewDeleteOrder(store, cfg.DeletePassword, logger),
		NewViewOrder(store, logger),
		NewReadFile(readPaths, logger),
		NewListFiles(readPaths, logger),
		NewWriteFile(writePaths, cfg.WritePassword, logger),
		NewAnalyzeCode(readPaths, logger),
	)
}
