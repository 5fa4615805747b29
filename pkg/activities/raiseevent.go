package activities

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/affandar/toygres/pkg/history"
)

// RaiseEvent lets one orchestration signal another purely through the
// Event-History Store, without either side holding a direct reference to
// the other's runtime state. DeleteInstance uses this to raise
// InstanceDeleted on the running actor-<k8s_name> InstanceActor so it
// stops.
func RaiseEvent(store history.Store) func(context.Context, RaiseEventInput) (RaiseEventOutput, error) {
	return func(ctx context.Context, input RaiseEventInput) (RaiseEventOutput, error) {
		var payload json.RawMessage
		if input.EventData != "" {
			payload = json.RawMessage(input.EventData)
		} else {
			payload = json.RawMessage("null")
		}
		if err := store.RaiseEvent(input.InstanceID, input.EventName, payload); err != nil {
			return RaiseEventOutput{}, fmt.Errorf("raise event %q on %q: %w", input.EventName, input.InstanceID, err)
		}
		return RaiseEventOutput{Raised: true}, nil
	}
}
