package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenCellBench/internal/config"
	"github.com/KevinKickass/OpenCellBench/internal/directory"
	"github.com/KevinKickass/OpenCellBench/internal/sequence"
	"github.com/KevinKickass/OpenCellBench/internal/storage"
	"github.com/KevinKickass/OpenCellBench/internal/templates"
	"github.com/google/uuid"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State          string `json:"state"`
	Sessions       int    `json:"sessions"`
	LiveClients    int    `json:"live_clients"`
	HistoryEnabled bool   `json:"history_enabled"`
	ControllerURL  string `json:"controller_url"`
	DirectoryURL   string `json:"directory_url"`
}

// DeviceDirectory lists the devices the controller knows about.
type DeviceDirectory interface {
	ListDevices(ctx context.Context) ([]directory.DeviceSummary, error)
	FindDevice(ctx context.Context, ipAddress string) (directory.DeviceSummary, error)
}

type DispatchHistory interface {
	GetDispatch(ctx context.Context, id uuid.UUID) (*storage.DispatchRecord, error)
	ListDispatches(ctx context.Context, deviceIP string, limit int) ([]*storage.DispatchRecord, error)
}

type LifecycleManager interface {
	Config() *config.Config
	Sessions() *sequence.Registry
	Directory() DeviceDirectory
	Dispatcher() sequence.Submitter
	Templates() *templates.Loader
	// History is nil when the database is disabled.
	History() DispatchHistory
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
