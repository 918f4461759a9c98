package memory

import (
	"testing"

	"github.com/marmos91/tabletd/pkg/blocks"
	"github.com/marmos91/tabletd/pkg/blocks/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) blocks.Store {
		return New()
	})
}
