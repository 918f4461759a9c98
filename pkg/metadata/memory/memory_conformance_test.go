package memory_test

import (
	"testing"

	"github.com/marmos91/tabletd/pkg/metadata"
	"github.com/marmos91/tabletd/pkg/metadata/memory"
	"github.com/marmos91/tabletd/pkg/metadata/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) metadata.Store {
		return memory.New()
	})
}
