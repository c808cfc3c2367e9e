package port

import (
	"github.com/vertextoedge/batchfetch/internal/domain/repository"
)

// FileRecordRepository is an alias to domain repository interface
type FileRecordRepository = repository.FileRecordRepository

// TaskRepository is an alias to domain repository interface
type TaskRepository = repository.TaskRepository

// PlanRepository is an alias to domain repository interface
type PlanRepository = repository.PlanRepository

// Store is an alias to domain repository interface
type Store = repository.Store
