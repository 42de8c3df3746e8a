package memory_test

import (
	"testing"

	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/agent/memory/memorytest"
)

func TestInMemoryPlans(t *testing.T) {
	memorytest.RunPlansSuite(t, func(t *testing.T) memory.GptsPlansMemory {
		return memory.NewInMemoryPlans()
	})
}

func TestInMemoryMessages(t *testing.T) {
	memorytest.RunMessagesSuite(t, func(t *testing.T) memory.GptsMessageMemory {
		return memory.NewInMemoryMessages()
	})
}
