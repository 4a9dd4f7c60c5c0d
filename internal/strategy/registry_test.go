package strategy

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/hostbackup/internal/model"
)

func TestNewRegistry_CoversEveryProjectType(t *testing.T) {
	r := NewRegistry(zerolog.Nop(), Options{})

	for _, pt := range model.ProjectTypes {
		s, err := r.Get(model.Project{ID: "p", Type: pt})
		require.NoError(t, err, pt)
		assert.NotEmpty(t, s.Extension())
	}
	assert.ElementsMatch(t, model.ProjectTypes, r.Types())
}
