package resource

import (
	"context"
	"log"

	"github.com/nupi-ai/shellboot/internal/actions"
	"github.com/nupi-ai/shellboot/internal/constants"
	"github.com/nupi-ai/shellboot/internal/epics"
)

// EpicRequestResourceConfig is the processor name owned by this package.
const EpicRequestResourceConfig = "gnRequestResourceConfig"

// Getter reads stored resources.
type Getter interface {
	Get(ctx context.Context, rt actions.ResourceType, id string) (Record, error)
}

// Epics returns the resource domain processors backed by repo.
func Epics(repo Getter, logger *log.Logger) epics.Set {
	if logger == nil {
		logger = log.Default()
	}
	return epics.Set{
		EpicRequestResourceConfig: func(ctx context.Context, action actions.Action, _ epics.StateGetter, dispatch epics.Dispatch) {
			req, ok := action.Payload.(actions.ResourceRequest)
			if action.Type != actions.TypeRequestResourceConfig || !ok {
				return
			}

			loadCtx, cancel := context.WithTimeout(ctx, constants.ResourceLoadTimeout)
			defer cancel()

			rec, err := repo.Get(loadCtx, req.ResourceType, req.ResourceID)
			if err != nil {
				logger.Printf("[Resources] load %s %s failed: %v", req.ResourceType, req.ResourceID, err)
				dispatch(actions.ResourceConfigFailed(req.ResourceType, req.ResourceID, err))
				return
			}
			dispatch(actions.ResourceConfigLoaded(actions.ResourceConfig{
				ResourceType: rec.Type,
				ResourceID:   rec.ID,
				ReadOnly:     req.ReadOnly,
				Data:         rec.Data,
			}))
		},
	}
}
