package memory

import (
	"testing"

	"task-manager/internal/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.ClockStore {
		return NewStore()
	})
}
